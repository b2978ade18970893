package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestReadDocument(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
		wantErr string
	}{
		{
			name:    "json passes through",
			file:    "doc.json",
			content: `{"objectives":["a"],"budget_breakdown":{"total":10}}`,
			want:    `{"budget_breakdown":{"total":10},"objectives":["a"]}`,
		},
		{
			name:    "yaml becomes json",
			file:    "doc.yaml",
			content: "objectives:\n  - a\nbudget_breakdown:\n  total: 10\n",
			want:    `{"budget_breakdown":{"total":10},"objectives":["a"]}`,
		},
		{
			name:    "yaml timestamps stay as written",
			file:    "doc.yml",
			content: "timeline:\n  kickoff: 2025-03-14T15:30:00+05:30\n",
			want:    `{"timeline":{"kickoff":"2025-03-14T15:30:00+05:30"}}`,
		},
		{
			name:    "json array rejected",
			file:    "doc.json",
			content: `["a"]`,
			wantErr: "not a JSON object",
		},
		{
			name:    "yaml scalar rejected",
			file:    "doc.yaml",
			content: "just text\n",
			wantErr: "must be an object",
		},
		{
			name:    "yaml non-string keys rejected",
			file:    "doc.yaml",
			content: "1: one\n",
			wantErr: "not a string",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, tc.file, tc.content)
			got, err := readDocument(path, nil)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !jsonEqual(t, got, tc.want) {
				t.Errorf("document = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestReadDocument_Stdin(t *testing.T) {
	got, err := readDocument("-", strings.NewReader(`{"risks_and_mitigation":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !jsonEqual(t, got, `{"risks_and_mitigation":[]}`) {
		t.Errorf("document = %s", got)
	}
}

func TestReadDocument_MissingFile(t *testing.T) {
	if _, err := readDocument("/nonexistent/doc.json", nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func jsonEqual(t *testing.T, got json.RawMessage, want string) bool {
	t.Helper()
	var a, b any
	if err := json.Unmarshal(got, &a); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(want), &b); err != nil {
		t.Fatalf("want is not JSON: %v", err)
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) == string(jb)
}
