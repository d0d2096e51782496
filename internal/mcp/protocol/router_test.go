package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct {
	fail bool
}

func (e *echoTool) HandleTool(_ context.Context, req *JSONRPC2Request) *JSONRPC2Response {
	if e.fail {
		return NewErrorResponse(nil, InvalidParams, "bad input", nil)
	}
	return &JSONRPC2Response{Result: req.Params}
}

func (e *echoTool) GetToolInfo() ToolInfo {
	return ToolInfo{Name: "echo", InputSchema: map[string]interface{}{"type": "object"}}
}

func (e *echoTool) ValidateParams(interface{}) error {
	if e.fail {
		return errors.New("bad input")
	}
	return nil
}

func TestMessageRouter_CallTool(t *testing.T) {
	logger, hook := test.NewNullLogger()
	router := NewMessageRouter(logger)
	router.RegisterToolHandler("echo", &echoTool{})
	router.RegisterToolHandler("broken", &echoTool{fail: true})

	// Act
	resp := router.CallTool(context.Background(), &JSONRPC2Request{Method: "echo", Params: "hi", ID: 7})

	// Assert
	require.Nil(t, resp.Error)
	assert.Equal(t, "hi", resp.Result)
	assert.Equal(t, 7, resp.ID)
	assert.Equal(t, "2.0", resp.JSONRPC)

	resp = router.CallTool(context.Background(), &JSONRPC2Request{Method: "broken", ID: 8})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)
	assert.Equal(t, 8, resp.ID)
	assert.Equal(t, "Tool call failed", hook.LastEntry().Message)

	resp = router.CallTool(context.Background(), &JSONRPC2Request{Method: "missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
}

func TestMessageRouter_ToolNames(t *testing.T) {
	logger, _ := test.NewNullLogger()
	router := NewMessageRouter(logger)
	router.RegisterToolHandler("b", &echoTool{})
	router.RegisterToolHandler("a", &echoTool{})

	assert.Equal(t, []string{"a", "b"}, router.ToolNames())
	assert.Len(t, router.GetToolHandlers(), 2)
}
