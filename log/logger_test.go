package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/justapithecus/tractography/types"
)

func decodeLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", line, err)
	}
	return entry
}

func TestLogger_RunContextFields(t *testing.T) {
	var buf bytes.Buffer
	meta := &types.RunMeta{RunID: "20240101-000000_01", Subject: "01", Session: "pre", Stages: []string{"reconstruction"}}
	logger := NewLoggerWithWriter(meta, &buf)

	logger.WithStage("shrink_surface_lh").Info("stage finished", map[string]any{"steps": 20})

	entry := decodeLine(t, strings.TrimSpace(buf.String()))
	if entry["run_id"] != meta.RunID {
		t.Errorf("run_id = %v, want %s", entry["run_id"], meta.RunID)
	}
	if entry["subject"] != "01" || entry["session"] != "pre" {
		t.Errorf("subject/session = %v/%v", entry["subject"], entry["session"])
	}
	if entry["stage"] != "shrink_surface_lh" {
		t.Errorf("stage = %v", entry["stage"])
	}
	if entry["level"] != "info" || entry["message"] != "stage finished" {
		t.Errorf("level/message = %v/%v", entry["level"], entry["message"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["steps"] != float64(20) {
		t.Errorf("fields = %v", entry["fields"])
	}
}

func TestLogger_SessionOmittedWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&types.RunMeta{RunID: "r", Subject: "01"}, &buf)
	logger.Warn("no session", nil)

	entry := decodeLine(t, strings.TrimSpace(buf.String()))
	if _, ok := entry["session"]; ok {
		t.Errorf("session should be absent, got %v", entry["session"])
	}
}

func TestLogger_WithOutput(t *testing.T) {
	var first, second bytes.Buffer
	logger := NewLoggerWithWriter(&types.RunMeta{RunID: "r", Subject: "01"}, &first)
	logger.WithOutput(&second).Error("moved", nil)

	if first.Len() != 0 {
		t.Errorf("original writer received output: %q", first.String())
	}
	entry := decodeLine(t, strings.TrimSpace(second.String()))
	if entry["run_id"] != "r" {
		t.Errorf("run context lost after WithOutput: %v", entry)
	}
}

func TestSugaredLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter(nil, &buf).Sugar().With("component", "cli").Infof("resolved %d datasets", 3)

	entry := decodeLine(t, strings.TrimSpace(buf.String()))
	if entry["message"] != "resolved 3 datasets" || entry["component"] != "cli" {
		t.Errorf("unexpected entry %v", entry)
	}
}
