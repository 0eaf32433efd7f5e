// Package export renders decoded tables and family reports to local files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fwittke/kitahours/internal/nctables"
)

// WriteCSV writes the table as delimited text: one header row in table
// column order followed by one line per row. Nil cells become empty fields;
// structured cells are rendered as JSON.
func WriteCSV(w io.Writer, table *nctables.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(table.Columns))
	for _, r := range table.Rows {
		for i, col := range table.Columns {
			record[i] = cellString(r[col])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to a new file at path.
func WriteCSVFile(path string, table *nctables.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(f, table); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		encoded, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(encoded)
	}
}
