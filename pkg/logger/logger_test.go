package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "agent.log")

	if err := Init(Config{Level: "debug", Format: "json", OutputPaths: []string{path}}); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	Named("dispatch").Info("blob uploaded", "blob_id", "abc")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(content))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", line)
	}
	if entry["component"] != "dispatch" || entry["blob_id"] != "abc" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestAuditRequiresPath(t *testing.T) {
	if err := Init(Config{Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatalf("expected error for empty audit path")
	}
}

func TestAuditFallsBackToDefault(t *testing.T) {
	if err := Init(Config{Format: "text", OutputPaths: []string{"stderr"}}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if Audit() != L() {
		t.Fatalf("audit logger should reuse the default logger when disabled")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "": "INFO"}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestProcessAttribute(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	if err := Init(Config{OutputPaths: []string{path}, Process: "askworld"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	L().Info("started")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(content), `"process":"askworld"`) {
		t.Fatalf("process attribute missing: %s", content)
	}
}
