// Package faults is the fault injection harness: every stage of the
// receive/forward path calls Apply before doing real work, and any
// operation that writes a file calls SimulateDiskFull first. Both read
// the live fault configuration fresh on each call.
package faults

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/egosumscientia/mini-pacs-edge/internal/config"
)

// FaultError marks a deliberately injected failure, distinct from a
// genuine transport or filesystem error, so callers and logs can tell
// the two apart.
type FaultError struct {
	Name string
}

func (e *FaultError) Error() string { return fmt.Sprintf("fault:%s", e.Name) }

// Source supplies the current fault configuration. *config.Store
// satisfies this.
type Source interface {
	Faults() config.FaultConfig
}

// Apply runs the reject_all, io_delay_ms, and random_fail_rate checks,
// in that order, for the named stage. stage is carried only for the
// resulting error/log context; the faults are global, not per-stage.
func Apply(src Source, stage string) error {
	f := src.Faults()
	if f.RejectAll {
		return &FaultError{Name: "reject_all"}
	}
	if f.IODelayMS > 0 {
		time.Sleep(time.Duration(f.IODelayMS) * time.Millisecond)
	}
	if f.RandomFailRate > 0 && rand.Float64() < f.RandomFailRate {
		return &FaultError{Name: fmt.Sprintf("random_fail_rate:%v", f.RandomFailRate)}
	}
	return nil
}

// SimulateDiskFull fails if the disk_full fault is active, before any
// attempt to write path.
func SimulateDiskFull(src Source, path string) error {
	if src.Faults().DiskFull {
		return &FaultError{Name: fmt.Sprintf("disk_full:%s", path)}
	}
	return nil
}
