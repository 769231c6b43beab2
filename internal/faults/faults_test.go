package faults

import (
	"errors"
	"testing"
	"time"

	"github.com/egosumscientia/mini-pacs-edge/internal/config"
)

type fixedSource struct{ f config.FaultConfig }

func (s fixedSource) Faults() config.FaultConfig { return s.f }

func TestApply_RejectAll(t *testing.T) {
	err := Apply(fixedSource{config.FaultConfig{RejectAll: true}}, "receive")
	var fe *FaultError
	if !errors.As(err, &fe) || fe.Name != "reject_all" {
		t.Fatalf("Apply() = %v, want reject_all FaultError", err)
	}
}

func TestApply_NoFaults_ReturnsNil(t *testing.T) {
	if err := Apply(fixedSource{config.FaultConfig{}}, "receive"); err != nil {
		t.Fatalf("Apply() = %v, want nil", err)
	}
}

func TestApply_IODelay_Sleeps(t *testing.T) {
	start := time.Now()
	if err := Apply(fixedSource{config.FaultConfig{IODelayMS: 20}}, "receive"); err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("expected Apply to sleep at least io_delay_ms")
	}
}

func TestApply_RandomFailRateOne_AlwaysFails(t *testing.T) {
	err := Apply(fixedSource{config.FaultConfig{RandomFailRate: 1.0}}, "receive")
	var fe *FaultError
	if !errors.As(err, &fe) {
		t.Fatalf("Apply() = %v, want FaultError", err)
	}
}

func TestSimulateDiskFull(t *testing.T) {
	err := SimulateDiskFull(fixedSource{config.FaultConfig{DiskFull: true}}, "/tmp/x.dcm")
	var fe *FaultError
	if !errors.As(err, &fe) {
		t.Fatalf("SimulateDiskFull() = %v, want FaultError", err)
	}
	if err := SimulateDiskFull(fixedSource{config.FaultConfig{}}, "/tmp/x.dcm"); err != nil {
		t.Fatalf("SimulateDiskFull() = %v, want nil", err)
	}
}
