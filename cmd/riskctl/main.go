// Command riskctl evaluates perioperative risk calculators and summarizes
// measurement series from the command line, and manages the PostgreSQL
// schema used by the servers.
package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/periop-risk-mcp-server/internal/app"
	"github.com/periop-risk-mcp-server/internal/domain"
)

type rootOptions struct {
	calculatorsFile string
	logLevel        string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "riskctl",
		Short:        "Perioperative risk calculators and measurement trends",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.calculatorsFile, "calculators", os.Getenv("PERIOP_CALCULATORS_FILE"), "YAML or JSON file with additional points calculators")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(calculatorsCmd(opts))
	rootCmd.AddCommand(evaluateCmd(opts))
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(trendCmd())
	rootCmd.AddCommand(migrateCmd(opts))

	return rootCmd
}

func (o *rootOptions) logger() *logrus.Logger {
	return app.NewLogger(domain.LoggingConfig{Level: o.logLevel, Format: "text"}, true)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
