package export

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/fwittke/kitahours/internal/report"
)

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	records := []report.FamilyRecord{
		{Family: "Meier", Guardian1Hours: 40, TotalHours: 40, TargetHours: 50, Progress: 80},
		{Family: "Schulz & Weber", Guardian1Hours: 10, Guardian2Hours: 5, TotalHours: 15, TargetHours: 102, Progress: 15},
	}

	if err := WriteXLSX(path, records); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	if got, _ := f.GetCellValue("Familienstunden", "A1"); got != report.ColFamily {
		t.Errorf("A1 = %q, want %q", got, report.ColFamily)
	}
	if got, _ := f.GetCellValue("Familienstunden", "A2"); got != "Meier" {
		t.Errorf("A2 = %q, want Meier", got)
	}
	if got, _ := f.GetCellValue("Familienstunden", "F2"); got != "80" {
		t.Errorf("F2 = %q, want 80", got)
	}
	if got, _ := f.GetCellValue("Familienstunden", "A3"); got != "Schulz & Weber" {
		t.Errorf("A3 = %q, want Schulz & Weber", got)
	}
}
