package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/trends"
)

func trendCmd() *cobra.Command {
	var (
		samplesFile string
		xlsxFile    string
	)

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Summarize a series of measurements",
		Long: `Summarize a JSON array of {"date", "value"} samples, taken in the order
given. With --xlsx the report is also written as a spreadsheet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if samplesFile == "" || samplesFile == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(samplesFile)
			}
			if err != nil {
				return fmt.Errorf("reading samples: %w", err)
			}

			var samples []domain.ParameterDataPoint
			if err := json.Unmarshal(data, &samples); err != nil {
				return fmt.Errorf("parsing samples: %w", err)
			}

			report, err := trends.NewService(nil, nil).Compute(samples)
			if err != nil {
				return err
			}

			if xlsxFile != "" {
				if err := writeReport(report, xlsxFile); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVarP(&samplesFile, "samples", "f", "", "JSON samples file; default stdin")
	cmd.Flags().StringVar(&xlsxFile, "xlsx", "", "also write the report to this spreadsheet")
	return cmd
}

func writeReport(report *domain.TrendReport, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := trends.WriteXLSX(report, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
