package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const validConfig = `
edge:
  ae_title: EDGE
  port: 11112
  data_root: /tmp/edge-data
  allowed_calling_aets: ["SENDER"]
forwarder:
  mode: archive
  max_retries: 3
  backoff_base_seconds: 1
  poll_interval_seconds: 2
  archive:
    host: 127.0.0.1
    port: 4242
    ae_title: ARCHIVE
    timeout_s: 10
fault_injection:
  reject_all: false
`

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Edge().AETitle != "EDGE" {
		t.Errorf("AETitle = %q", s.Edge().AETitle)
	}
	if s.Routing().Mode != ModeArchive {
		t.Errorf("Mode = %q", s.Routing().Mode)
	}
	if s.Faults().RejectAll {
		t.Errorf("RejectAll = true, want false")
	}
}

func TestLoad_RejectsMissingRequiredField(t *testing.T) {
	path := writeTestConfig(t, "edge:\n  port: 11112\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected schema validation error for missing ae_title/data_root/forwarder")
	}
}

func TestLoad_RejectsUnknownMode(t *testing.T) {
	path := writeTestConfig(t, `
edge:
  ae_title: EDGE
  port: 11112
  data_root: /tmp/edge-data
forwarder:
  mode: teleport
  max_retries: 3
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected schema validation error for unknown mode")
	}
}

func TestFaults_ReReadsFromDiskOnEveryCall(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Faults().RejectAll {
		t.Fatal("expected no faults initially")
	}

	if err := InjectFault(path, "reject_all"); err != nil {
		t.Fatalf("InjectFault: %v", err)
	}
	if !s.Faults().RejectAll {
		t.Fatal("expected RejectAll after InjectFault without reloading the Store")
	}

	if err := ClearFaults(path); err != nil {
		t.Fatalf("ClearFaults: %v", err)
	}
	if s.Faults().RejectAll {
		t.Fatal("expected RejectAll cleared")
	}
}

func TestInjectFault_UnknownPresetErrors(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	if err := InjectFault(path, "bogus"); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}
