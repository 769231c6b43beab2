package obslog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_WritesOneJSONLinePerEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.log")
	l, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Stage("receive").Info("stored", Fields{"study_uid": "1.2.3", "sop_uid": "1.2.3.4"})
	l.Stage("forward").Error("forward failed", Fields{"outcome": "failed", "error": "timeout"})

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), raw)
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal line 1: %v", err)
	}
	for _, key := range []string{"timestamp", "level", "stage", "study_uid", "sop_uid"} {
		if _, ok := first[key]; !ok {
			t.Errorf("line 1 missing field %q: %v", key, first)
		}
	}
	if first["stage"] != "receive" {
		t.Errorf("stage = %v, want receive", first["stage"])
	}

	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal line 2: %v", err)
	}
	if second["level"] != "error" {
		t.Errorf("level = %v, want error", second["level"])
	}
}
