package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alfredjeanlab/charters/internal/charter"
	"github.com/alfredjeanlab/charters/internal/events"
	"github.com/alfredjeanlab/charters/internal/schema"
	"github.com/alfredjeanlab/charters/internal/server"
	"github.com/alfredjeanlab/charters/internal/store/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// startServer runs the real HTTP handler over a temporary SQLite database.
func startServer(t *testing.T) string {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "charters.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	sch, err := schema.New()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := charter.New(st, sch, charter.WithLogger(logger))
	srv := server.NewCharterServer(st, coord, sch, events.NoopPublisher{})
	ts := httptest.NewServer(srv.NewHTTPHandler(""))
	t.Cleanup(ts.Close)
	return ts.URL
}

// resetFlags puts every flag back to its default so runs do not leak state
// into each other through the package-level command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// runCLI executes charterctl with args and returns what it printed.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	jsonOutput = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCLI_CreateUpdateHistory(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	url := startServer(t)

	createDoc := writeFile(t, "charter.json", `{"objectives":["launch"],"timeline":{"start":"2026-01"}}`)
	out, err := runCLI(t, "", "--url", url, "--actor", "pipeline", "--json",
		"create", "--file", createDoc, "--seed-sections")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created struct {
		Charter struct {
			ID string `json:"charter_id"`
		} `json:"charter"`
		Sections []string `json:"sections"`
	}
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("create output is not JSON: %v\n%s", err, out)
	}
	id := created.Charter.ID
	if !strings.HasPrefix(id, "ch-") {
		t.Fatalf("charter id = %q", id)
	}
	if len(created.Sections) != 2 {
		t.Errorf("seeded sections = %v, want 2", created.Sections)
	}

	yamlDoc := writeFile(t, "edit.yaml", "objectives:\n  - launch\n  - grow\ntimeline:\n  start: \"2026-02\"\n")
	out, err = runCLI(t, "", "--url", url, "--actor", "alice",
		"update", id, "--file", yamlDoc, "--section", "objectives")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(out, "version 1") || !strings.Contains(out, "section objectives") {
		t.Errorf("update output = %q", out)
	}

	out, err = runCLI(t, `{"objectives":["launch","grow","keep"]}`, "--url", url, "--actor", "bob",
		"update", id, "--file", "-", "--expected-version", "1")
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if !strings.Contains(out, "version 2") {
		t.Errorf("second update output = %q", out)
	}

	out, err = runCLI(t, "", "--url", url, "versions", id)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if !strings.Contains(out, "2 versions (2 total)") {
		t.Errorf("versions output = %q", out)
	}

	out, err = runCLI(t, "", "--url", url, "--json", "version", id, "1")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var v struct {
		Version   int             `json:"version"`
		VersionBy string          `json:"version_by"`
		Snapshot  json.RawMessage `json:"document_snapshot"`
	}
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("version output is not JSON: %v", err)
	}
	if v.Version != 1 || v.VersionBy != "alice" || !strings.Contains(string(v.Snapshot), "grow") {
		t.Errorf("version 1 = %+v", v)
	}

	out, err = runCLI(t, "", "--url", url, "show", id, "--section", "objectives")
	if err != nil {
		t.Fatalf("show section: %v", err)
	}
	if !strings.Contains(out, `"grow"`) {
		t.Errorf("section output = %q", out)
	}
}

func TestCLI_UpdateErrors(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	url := startServer(t)
	doc := writeFile(t, "doc.json", `{"objectives":["a"]}`)

	_, err := runCLI(t, "", "--url", url, "update", "ch-missing", "--file", doc)
	if err == nil || !strings.Contains(err.Error(), "NotFound") {
		t.Errorf("missing charter error = %v", err)
	}

	_, err = runCLI(t, "", "--url", url, "update", "ch-missing", "--file", doc, "--section", "nonsense")
	if err == nil || !strings.Contains(err.Error(), "InvalidSection") {
		t.Errorf("invalid section error = %v", err)
	}

	_, err = runCLI(t, "not json", "--url", url, "update", "ch-x", "--file", "-")
	if err == nil || !strings.Contains(err.Error(), "not a JSON object") {
		t.Errorf("bad document error = %v", err)
	}
}

func TestCLI_Sections(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	url := startServer(t)

	out, err := runCLI(t, "", "--url", url, "sections")
	if err != nil {
		t.Fatalf("sections: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "current_state" {
		t.Errorf("first section = %q, want current_state", lines[0])
	}
	if !strings.Contains(out, "risks_and_mitigation\n") {
		t.Errorf("sections output missing risks_and_mitigation: %q", out)
	}
}

func TestCLI_Health(t *testing.T) {
	url := startServer(t)
	out, err := runCLI(t, "", "--url", url, "health", "--grpc", "")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if strings.TrimSpace(out) != "HTTP: ok" {
		t.Errorf("health output = %q", out)
	}
}
