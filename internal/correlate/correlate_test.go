package correlate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/egosumscientia/mini-pacs-edge/internal/obslog"
	"github.com/egosumscientia/mini-pacs-edge/internal/store/memstore"
)

func testLogger(t *testing.T) *obslog.Logger {
	t.Helper()
	log, err := obslog.New(filepath.Join(t.TempDir(), "edge.log"))
	if err != nil {
		t.Fatalf("obslog.New: %v", err)
	}
	return log
}

func TestCorrelate_MatchesOldestPending(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	id, _ := st.Enqueue(ctx, "study", "sop-1", "/x")
	if err := st.MarkWorkerSent(ctx, id, "h", "W1"); err != nil {
		t.Fatalf("MarkWorkerSent: %v", err)
	}

	c := New(st, testLogger(t))
	corr, err := c.Correlate(ctx, "study", "result-sop")
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if corr == nil || corr.OriginalSOP != "sop-1" {
		t.Fatalf("Correlate() = %+v, want sop-1", corr)
	}
}

func TestCorrelate_NoMatchReturnsNilNotError(t *testing.T) {
	st := memstore.New()
	c := New(st, testLogger(t))
	corr, err := c.Correlate(context.Background(), "study-with-no-pending", "result-sop")
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if corr != nil {
		t.Fatalf("Correlate() = %+v, want nil", corr)
	}
}
