package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwittke/kitahours/internal/config"
	"github.com/fwittke/kitahours/internal/database"
	"github.com/fwittke/kitahours/internal/logging"
	"github.com/fwittke/kitahours/internal/nctables"
	"github.com/fwittke/kitahours/internal/report"
	"github.com/fwittke/kitahours/internal/store"
)

// tablesFixture serves the hours, names and report tables of one configured
// Nextcloud instance and records inserts into the report table.
type tablesFixture struct {
	reportPosts []map[string]any
}

const hoursColumnsJSON = `[
	{"id": 1, "title": "Datum", "type": "datetime"},
	{"id": 2, "title": "Stunden", "type": "number"},
	{"id": 3, "title": "wer?", "type": "text"}
]`

const hoursRowsJSON = `[
	{"id": 1, "data": [
		{"columnId": 1, "value": "2025-10-05 12:00:00"},
		{"columnId": 2, "value": 25},
		{"columnId": 3, "value": "[{'id': 'm.meier', 'displayName': 'Maria Meier'}]"}
	]},
	{"id": 2, "data": [
		{"columnId": 1, "value": "2026-02-10 09:00:00"},
		{"columnId": 2, "value": 15},
		{"columnId": 3, "value": "[{'id': 'm.meier', 'displayName': 'Maria Meier'}]"}
	]},
	{"id": 3, "data": [
		{"columnId": 1, "value": "2025-03-01 10:00:00"},
		{"columnId": 2, "value": 99},
		{"columnId": 3, "value": "[{'id': 'm.meier', 'displayName': 'Maria Meier'}]"}
	]}
]`

const namesColumnsJSON = `[
	{"id": 11, "title": "Vorname Kind", "type": "text"},
	{"id": 12, "title": "Nachname Mutter", "type": "text"},
	{"id": 13, "title": "Nachname Vater", "type": "text"},
	{"id": 14, "title": "Nextcloudaccount Mutter", "type": "text"},
	{"id": 15, "title": "Nextcloudaccount Vater", "type": "text"}
]`

const namesRowsJSON = `[
	{"id": 1, "data": [
		{"columnId": 11, "value": "Kim"},
		{"columnId": 12, "value": "Mutters Nachname"},
		{"columnId": 14, "value": "m.meier"}
	]}
]`

const reportColumnsJSON = `[
	{"id": 21, "title": "Familie", "type": "text"},
	{"id": 22, "title": "Stunden Elternteil 1", "type": "number"},
	{"id": 23, "title": "Stunden Elternteil 2", "type": "number"},
	{"id": 24, "title": "Stunden IST", "type": "number"},
	{"id": 25, "title": "Stunden SOLL", "type": "number"},
	{"id": 26, "title": "Fortschritt", "type": "number"}
]`

func (f *tablesFixture) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	serve := func(path, body string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("offset") != "" && r.URL.Query().Get("offset") != "0" {
				fmt.Fprint(w, "[]")
				return
			}
			fmt.Fprint(w, body)
		})
	}
	serve("/index.php/apps/tables/api/1/tables/13/columns", hoursColumnsJSON)
	serve("/index.php/apps/tables/api/1/tables/13/rows", hoursRowsJSON)
	serve("/index.php/apps/tables/api/1/tables/8/columns", namesColumnsJSON)
	serve("/index.php/apps/tables/api/1/tables/8/rows", namesRowsJSON)
	serve("/index.php/apps/tables/api/1/tables/72/columns", reportColumnsJSON)
	mux.HandleFunc("/index.php/apps/tables/api/1/tables/72/rows", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, "[]") // report table starts empty
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			var payload map[string]any
			if err := json.Unmarshal(body, &payload); err != nil {
				t.Errorf("bad report POST: %v", err)
			}
			f.reportPosts = append(f.reportPosts, payload)
			fmt.Fprintf(w, `{"id": %d}`, 300+len(f.reportPosts))
		}
	})
	return mux
}

func testRunner(t *testing.T, runs *store.RunStore) (*Runner, *tablesFixture) {
	t.Helper()
	fixture := &tablesFixture{}
	srv := httptest.NewServer(fixture.handler(t))
	t.Cleanup(srv.Close)

	client, err := nctables.NewClient(nctables.Config{
		BaseURL:  srv.URL,
		Username: "user",
		Password: "pass",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	cfg := &config.Config{
		HoursTableID:  13,
		NamesTableID:  8,
		ReportTableID: 72,
		KitaYear:      2025,
	}
	return &Runner{
		Client: client,
		Runs:   runs,
		Logger: logging.New(io.Discard, "error"),
		Config: cfg,
	}, fixture
}

func TestRunEndToEnd(t *testing.T) {
	runner, fixture := testRunner(t, nil)

	summary, err := runner.Run(t.Context())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Families != 1 || summary.RowsUploaded != 1 {
		t.Fatalf("summary = %+v, want 1 family, 1 row", summary)
	}
	if summary.RunID == "" {
		t.Error("run id is empty")
	}

	if len(fixture.reportPosts) != 1 {
		t.Fatalf("report posts = %d, want 1", len(fixture.reportPosts))
	}
	data := fixture.reportPosts[0]["data"].(map[string]any)
	// 25 + 15 in-window hours against a single-parent one-child target of 50.
	if data["21"] != "Mutters Nachname" {
		t.Errorf("Familie = %v, want Mutters Nachname", data["21"])
	}
	if data["22"] != float64(40) {
		t.Errorf("Stunden Elternteil 1 = %v, want 40", data["22"])
	}
	if data["24"] != float64(40) {
		t.Errorf("Stunden IST = %v, want 40", data["24"])
	}
	if data["25"] != float64(50) {
		t.Errorf("Stunden SOLL = %v, want 50", data["25"])
	}
	if data["26"] != float64(80) {
		t.Errorf("Fortschritt = %v, want 80", data["26"])
	}
	// Guardian 2 has no hours; an explicit zero is still sent.
	if data["23"] != float64(0) {
		t.Errorf("Stunden Elternteil 2 = %v, want 0", data["23"])
	}
}

func TestRunRecordsHistory(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	runs := store.NewRunStore(db)

	runner, _ := testRunner(t, runs)
	summary, err := runner.Run(t.Context())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	r, err := runs.GetByID(summary.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if r == nil {
		t.Fatal("run not recorded")
	}
	if r.Status != store.RunStatusOK || r.Families != 1 || r.RowsUploaded != 1 {
		t.Errorf("run = %+v, want ok with 1 family", r)
	}
}

func TestRunRecordsFailure(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	runs := store.NewRunStore(db)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client, err := nctables.NewClient(nctables.Config{BaseURL: srv.URL, Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	runner := &Runner{
		Client: client,
		Runs:   runs,
		Logger: logging.New(io.Discard, "error"),
		Config: &config.Config{HoursTableID: 13, NamesTableID: 8, ReportTableID: 72, KitaYear: 2025},
	}

	if _, err := runner.Run(t.Context()); err == nil {
		t.Fatal("expected error from failing server")
	}

	recent, err := runs.ListRecent(1)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("runs = %d, want the failed run recorded", len(recent))
	}
	if recent[0].Status != store.RunStatusError || recent[0].Error == "" {
		t.Errorf("run = %+v, want error status with message", recent[0])
	}
}

func TestBuildReportDoesNotUpload(t *testing.T) {
	runner, fixture := testRunner(t, nil)

	records, err := runner.BuildReport(t.Context())
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if len(records) != 1 || records[0].Progress != 80 {
		t.Fatalf("records = %+v, want one family at 80%%", records)
	}
	if len(fixture.reportPosts) != 0 {
		t.Errorf("report posts = %d, want none", len(fixture.reportPosts))
	}

	table := report.ReportTable(records)
	if len(table.Rows) != 1 || table.Rows[0][report.ColFamily] != "Mutters Nachname" {
		t.Errorf("report table rows = %+v", table.Rows)
	}
}
