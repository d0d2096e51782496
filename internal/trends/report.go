package trends

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/periop-risk-mcp-server/internal/domain"
)

const (
	summarySheet = "Summary"
	samplesSheet = "Samples"
	monthlySheet = "Monthly"

	dateTimeLayout = "2006-01-02 15:04:05"
)

// WriteXLSX renders report as a workbook with Summary, Samples and Monthly
// sheets. Abnormal samples are highlighted.
func WriteXLSX(report *domain.TrendReport, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	summaryIdx, err := f.NewSheet(summarySheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	for _, name := range []string{samplesSheet, monthlySheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(summaryIdx)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	abnormalStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#9C0006"},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#FFC7CE"},
			Pattern: 1,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create abnormal style: %w", err)
	}

	if err := writeSummarySheet(f, report, headerStyle); err != nil {
		return err
	}
	if err := writeSamplesSheet(f, report.Samples, headerStyle, abnormalStyle); err != nil {
		return err
	}
	if err := writeMonthlySheet(f, report.Monthly, headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, report *domain.TrendReport, headerStyle int) error {
	rows := [][]interface{}{
		{"Patient", report.Query.PatientID},
		{"Parameter", report.Query.ParameterName},
		{"Status", string(report.Status)},
		{"Generated", report.GeneratedAt.Format(dateTimeLayout)},
		{"Samples", len(report.Samples)},
		{"Abnormal", report.Counts.Abnormal},
		{"Normal", report.Counts.Normal},
	}
	if s := report.Summary; s != nil {
		rows = append(rows,
			[]interface{}{"Minimum", s.Min},
			[]interface{}{"Maximum", s.Max},
			[]interface{}{"Mean", s.Mean},
			[]interface{}{"Median", s.Median},
			[]interface{}{"Standard deviation", s.StandardDeviation},
			[]interface{}{"Percent change", s.PercentChange},
			[]interface{}{"Trend", string(s.Trend)},
		)
	}

	if err := writeHeader(f, summarySheet, []string{"Metric", "Value"}, headerStyle); err != nil {
		return err
	}
	for i, row := range rows {
		if err := writeRow(f, summarySheet, i+2, row); err != nil {
			return err
		}
	}
	return setColumnWidths(f, summarySheet, []float64{22, 30})
}

func writeSamplesSheet(f *excelize.File, samples []domain.ParameterDataPoint, headerStyle, abnormalStyle int) error {
	headers := []string{"Date", "Value", "Unit", "Low", "High", "Abnormal", "Measurement ID"}
	if err := writeHeader(f, samplesSheet, headers, headerStyle); err != nil {
		return err
	}

	for i, s := range samples {
		row := i + 2
		var unit string
		var low, high interface{}
		if r := s.ReferenceRange; r != nil {
			unit = r.Unit
			if r.Low != nil {
				low = *r.Low
			}
			if r.High != nil {
				high = *r.High
			}
		}
		abnormal := "no"
		if s.IsAbnormal {
			abnormal = "yes"
		}
		values := []interface{}{s.Date.UTC().Format(dateTimeLayout), s.Value, unit, low, high, abnormal, s.MeasurementID}
		if err := writeRow(f, samplesSheet, row, values); err != nil {
			return err
		}
		if s.IsAbnormal {
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(len(headers), row)
			if err := f.SetCellStyle(samplesSheet, first, last, abnormalStyle); err != nil {
				return fmt.Errorf("failed to style row %d: %w", row, err)
			}
		}
	}

	if err := f.SetPanes(samplesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return setColumnWidths(f, samplesSheet, []float64{20, 12, 10, 10, 10, 10, 38})
}

func writeMonthlySheet(f *excelize.File, months []domain.MonthlyAverage, headerStyle int) error {
	if err := writeHeader(f, monthlySheet, []string{"Month", "Average", "Samples"}, headerStyle); err != nil {
		return err
	}
	for i, m := range months {
		if err := writeRow(f, monthlySheet, i+2, []interface{}{m.Month, m.Average, m.Count}); err != nil {
			return err
		}
	}
	return setColumnWidths(f, monthlySheet, []float64{12, 12, 10})
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to get cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header: %w", err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, v := range values {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func setColumnWidths(f *excelize.File, sheet string, widths []float64) error {
	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	return nil
}
