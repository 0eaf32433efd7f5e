// Package report derives the per-family hours report from the raw hours and
// names tables.
package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fwittke/kitahours/internal/nctables"
)

// Column titles of the source tables. The pipeline targets this one fixed
// schema; the account column is the flattened id of the exploded "wer?"
// user cell in the hours table.
const (
	colDate          = "Datum"
	colHours         = "Stunden"
	colAccount       = "wer?_id"
	colMotherLast    = "Nachname Mutter"
	colFatherLast    = "Nachname Vater"
	colChildFirst    = "Vorname Kind"
	colMotherAccount = "Nextcloudaccount Mutter"
	colFatherAccount = "Nextcloudaccount Vater"
)

// Column titles of the uploaded report.
const (
	ColFamily    = "Familie"
	ColGuardian1 = "Stunden Elternteil 1"
	ColGuardian2 = "Stunden Elternteil 2"
	ColActual    = "Stunden IST"
	ColTarget    = "Stunden SOLL"
	ColProgress  = "Fortschritt"
)

// FamilyRecord is the derived per-family aggregate. Records are computed
// fresh on every run and only ever uploaded, never stored locally.
type FamilyRecord struct {
	Family         string
	SingleParent   bool
	Guardian1Hours float64
	Guardian2Hours float64
	TotalHours     float64
	ChildCount     int
	TargetHours    float64
	Progress       int
}

// targetHours maps (single parent, child count) to the hours a family owes
// per Kita year. Combinations outside this table are a hard error.
var targetHours = map[targetKey]float64{
	{false, 1}: 102,
	{false, 2}: 132,
	{false, 3}: 132,
	{true, 1}:  50,
	{true, 2}:  60,
}

type targetKey struct {
	singleParent bool
	children     int
}

// ValidationError reports source data the aggregation cannot work with.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Build merges the hours and names tables into one record per family.
// Hours outside the window are ignored; a guardian without any hours rows
// contributes zero. The result is sorted by progress, highest first, with
// stable order on ties.
func Build(hours, names *nctables.Table, window Window) ([]FamilyRecord, error) {
	perAccount, err := sumHoursByAccount(hours, window)
	if err != nil {
		return nil, err
	}

	families, order := groupFamilies(names)

	records := make([]FamilyRecord, 0, len(order))
	for _, name := range order {
		fam := families[name]
		target, ok := targetHours[targetKey{fam.singleParent, fam.children}]
		if !ok {
			return nil, validationf(
				"family %q: no target hours defined for single_parent=%t with %d children",
				name, fam.singleParent, fam.children,
			)
		}

		g1 := perAccount[fam.motherAccount]
		var g2 float64
		if fam.fatherAccount != "" {
			g2 = perAccount[fam.fatherAccount]
		}
		total := g1 + g2

		progress := int(math.Round(total / target * 100))
		if progress > 100 {
			progress = 100
		}

		records = append(records, FamilyRecord{
			Family:         name,
			SingleParent:   fam.singleParent,
			Guardian1Hours: g1,
			Guardian2Hours: g2,
			TotalHours:     total,
			ChildCount:     fam.children,
			TargetHours:    target,
			Progress:       progress,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Progress > records[j].Progress
	})
	return records, nil
}

// ReportTable shapes the records into the upload schema of the report table.
func ReportTable(records []FamilyRecord) *nctables.Table {
	t := &nctables.Table{
		Columns: []string{ColFamily, ColGuardian1, ColGuardian2, ColActual, ColTarget, ColProgress},
	}
	for _, r := range records {
		t.Rows = append(t.Rows, map[string]any{
			ColFamily:    r.Family,
			ColGuardian1: r.Guardian1Hours,
			ColGuardian2: r.Guardian2Hours,
			ColActual:    r.TotalHours,
			ColTarget:    r.TargetHours,
			ColProgress:  r.Progress,
		})
	}
	return t
}

// sumHoursByAccount totals the hours column per account id, ignoring rows
// outside the window. A row whose date cannot be parsed is an error, never a
// silent drop. Rows without an account id carry no attributable hours and
// are skipped.
func sumHoursByAccount(hours *nctables.Table, window Window) (map[string]float64, error) {
	sums := make(map[string]float64)
	for i, r := range hours.Rows {
		ts, err := parseDate(r[colDate])
		if err != nil {
			return nil, validationf("hours row %d: %v", i, err)
		}
		if !window.Contains(ts) {
			continue
		}
		account := stringValue(r[colAccount])
		if account == "" {
			continue
		}
		h, err := numberValue(r[colHours])
		if err != nil {
			return nil, validationf("hours row %d: %v", i, err)
		}
		sums[account] += h
	}
	return sums, nil
}

// familyAgg accumulates the names rows of one family. One names row is one
// child; guardian fields come from the first row seen for the family.
type familyAgg struct {
	singleParent  bool
	children      int
	motherAccount string
	fatherAccount string
}

// groupFamilies derives the family key for every names row and collapses
// rows sharing a key. Two guardians form one family when they share a last
// name or the father's last name is absent (single parent); otherwise the
// display name joins both last names.
func groupFamilies(names *nctables.Table) (map[string]*familyAgg, []string) {
	families := make(map[string]*familyAgg)
	var order []string

	for _, r := range names.Rows {
		mother := stringValue(r[colMotherLast])
		father := stringValue(r[colFatherLast])

		name := mother
		if father != "" && father != mother {
			name = mother + " & " + father
		}

		fam, ok := families[name]
		if !ok {
			fam = &familyAgg{
				singleParent:  father == "",
				motherAccount: stringValue(r[colMotherAccount]),
				fatherAccount: stringValue(r[colFatherAccount]),
			}
			families[name] = fam
			order = append(order, name)
		}
		fam.children++
	}
	return families, order
}

// dateLayouts are the wire formats the Tables API emits for datetime cells.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(v any) (time.Time, error) {
	s := stringValue(v)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing %s value", colDate)
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable %s value %q", colDate, s)
}

func numberValue(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		trimmed := strings.TrimSpace(x)
		if trimmed == "" {
			return 0, nil
		}
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable %s value %q", colHours, x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected %s value of type %T", colHours, v)
	}
}

func stringValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
