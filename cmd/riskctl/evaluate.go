package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/periop-risk-mcp-server/internal/calculator"
	"github.com/periop-risk-mcp-server/internal/domain"
)

func calculatorsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "calculators [type]",
		Short: "List calculators, or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := calculator.LoadCatalog(opts.logger(), opts.calculatorsFile)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				def, err := catalog.Get(domain.CalculationType(args[0]))
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), def)
			}

			out := cmd.OutOrStdout()
			for _, def := range catalog.List() {
				fmt.Fprintf(out, "%-22s %s\n", def.Type, def.Name)
			}
			return nil
		},
	}
}

func evaluateCmd(opts *rootOptions) *cobra.Command {
	var (
		pairs     []string
		inputFile string
	)

	cmd := &cobra.Command{
		Use:   "evaluate <type>",
		Short: "Evaluate a calculator and classify the result",
		Example: `  riskctl evaluate rcri --input high_risk_surgery=true --input heart_failure=false ...
  riskctl evaluate ariscat --json inputs.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := calculator.LoadCatalog(opts.logger(), opts.calculatorsFile)
			if err != nil {
				return err
			}
			def, err := catalog.Get(domain.CalculationType(args[0]))
			if err != nil {
				return err
			}

			inputs, err := readInputs(def, inputFile, pairs)
			if err != nil {
				return err
			}

			result, err := calculator.NewEngine(catalog).Evaluate(def, inputs)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"calculation_type": def.Type,
				"calculator_name":  def.Name,
				"result":           result,
				"risk_band":        calculator.ClassifyResult(result).Info(),
			})
		},
	}
	cmd.Flags().StringArrayVarP(&pairs, "input", "i", nil, "input as name=value; repeatable")
	cmd.Flags().StringVar(&inputFile, "json", "", "JSON object of inputs; - reads stdin")
	return cmd
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <percentage|null>",
		Short: "Map a risk percentage to its band",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pct *float64
			if args[0] != "null" {
				v, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fmt.Errorf("invalid percentage %q", args[0])
				}
				pct = &v
			}
			return writeJSON(cmd.OutOrStdout(), calculator.Classify(pct).Info())
		},
	}
}

// readInputs merges the JSON file, if any, with name=value pairs. Pairs win.
func readInputs(def *domain.CalculatorDefinition, path string, pairs []string) (map[string]domain.Value, error) {
	inputs := make(map[string]domain.Value)

	if path != "" {
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading inputs: %w", err)
		}
		if err := json.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("parsing inputs: %w", err)
		}
	}

	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid input %q: expected name=value", pair)
		}
		inputs[name] = parseValue(def, name, raw)
	}
	return inputs, nil
}

// parseValue types raw by the parameter's declared kind. Unknown names and
// unparseable values are passed through as text so the engine reports them.
func parseValue(def *domain.CalculatorDefinition, name, raw string) domain.Value {
	spec, ok := def.Parameter(name)
	if !ok {
		return domain.TextValue(raw)
	}

	switch spec.Kind {
	case domain.KindBoolean:
		if b, err := strconv.ParseBool(raw); err == nil {
			return domain.BoolValue(b)
		}
	case domain.KindNumber:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return domain.NumberValue(n)
		}
	}
	return domain.TextValue(raw)
}
