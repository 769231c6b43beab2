package admission

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/egosumscientia/mini-pacs-edge/internal/store/memstore"
)

func writeTestConfig(t *testing.T, dataRoot string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
edge:
  ae_title: EDGE
  port: 0
  data_root: ` + dataRoot + `
forwarder:
  mode: dummy
  max_retries: 3
  backoff_base_seconds: 1
  poll_interval_seconds: 1
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestNew_ProvisionsDirectoriesAndWiresComponents(t *testing.T) {
	dataRoot := t.TempDir()
	configPath := writeTestConfig(t, dataRoot)

	gw, err := New(context.Background(), configPath, memstore.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if gw.listener == nil || gw.forward == nil {
		t.Fatal("expected listener and forwarder to be wired")
	}
	for _, dir := range dataDirs {
		if _, err := os.Stat(filepath.Join(dataRoot, dir)); err != nil {
			t.Errorf("expected directory %s to exist: %v", dir, err)
		}
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	dataRoot := t.TempDir()
	configPath := writeTestConfig(t, dataRoot)

	gw, err := New(context.Background(), configPath, memstore.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil && err != context.DeadlineExceeded {
			t.Fatalf("Run returned %v, want nil or context.DeadlineExceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
