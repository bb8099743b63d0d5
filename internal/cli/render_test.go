package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantName  string
		wantValue string
		wantErr   bool
	}{
		{"simple", "JOB_PARTITION=batch", "JOB_PARTITION", "batch", false},
		{"empty value", "KEY=", "KEY", "", false},
		{"value with equals", "CMD=a=b", "CMD", "a=b", false},
		{"missing equals", "invalid", "", "", true},
		{"empty key", "=value", "", "", true},
		{"whitespace key", "  KEY  =v", "KEY", "v", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, value, err := parseAssignment(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAssignment(%q) error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if name != tt.wantName || value != tt.wantValue {
				t.Errorf("parseAssignment(%q) = (%q, %q), want (%q, %q)", tt.input, name, value, tt.wantName, tt.wantValue)
			}
		})
	}
}

func TestCollectVars(t *testing.T) {
	dir := t.TempDir()
	varsFile := filepath.Join(dir, "vars.env")
	content := "# defaults for the nightly batch\nJOB_PARTITION=batch\nPARALLEL=4\n\nNOTIFICATIONS_EMAIL=ops@example.com\n"
	if err := os.WriteFile(varsFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write vars file: %v", err)
	}

	vars, err := collectVars([]string{"PARALLEL=8", "JOBS_OUTPUT_FILENAME=out.log"}, varsFile)
	if err != nil {
		t.Fatalf("collectVars failed: %v", err)
	}

	if len(vars) != 4 {
		t.Fatalf("expected 4 variables, got %d: %v", len(vars), vars)
	}
	if vars["JOB_PARTITION"] != "batch" {
		t.Errorf("JOB_PARTITION = %q, want %q", vars["JOB_PARTITION"], "batch")
	}
	// Flags override the file
	if vars["PARALLEL"] != "8" {
		t.Errorf("PARALLEL = %q, want %q", vars["PARALLEL"], "8")
	}
	if vars["NOTIFICATIONS_EMAIL"] != "ops@example.com" {
		t.Errorf("NOTIFICATIONS_EMAIL = %q, want %q", vars["NOTIFICATIONS_EMAIL"], "ops@example.com")
	}
}

func TestCollectVarsBadFile(t *testing.T) {
	dir := t.TempDir()
	varsFile := filepath.Join(dir, "vars.env")
	if err := os.WriteFile(varsFile, []byte("VALID=1\nnot an assignment\n"), 0o644); err != nil {
		t.Fatalf("failed to write vars file: %v", err)
	}

	if _, err := collectVars(nil, varsFile); err == nil {
		t.Fatal("expected error for malformed vars file line")
	}
}

func TestCollectVarsMissingFile(t *testing.T) {
	if _, err := collectVars(nil, filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Fatal("expected error for missing vars file")
	}
}
