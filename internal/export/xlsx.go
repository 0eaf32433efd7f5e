package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/fwittke/kitahours/internal/report"
)

const reportSheet = "Familienstunden"

// WriteXLSX writes the family report as a single-sheet workbook with a bold,
// frozen header row.
func WriteXLSX(path string, records []report.FamilyRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headers := []string{
		report.ColFamily,
		report.ColGuardian1,
		report.ColGuardian2,
		report.ColActual,
		report.ColTarget,
		report.ColProgress,
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(reportSheet, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(reportSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, rec := range records {
		rowNum := i + 2
		values := []any{
			rec.Family,
			rec.Guardian1Hours,
			rec.Guardian2Hours,
			rec.TotalHours,
			rec.TargetHours,
			rec.Progress,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return fmt.Errorf("row %d cell: %w", rowNum, err)
			}
			if err := f.SetCellValue(reportSheet, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", rowNum, err)
			}
		}
	}

	if err := f.SetPanes(reportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if err := f.SetColWidth(reportSheet, "A", "A", 28); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
