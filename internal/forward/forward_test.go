package forward

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/egosumscientia/mini-pacs-edge/internal/config"
	"github.com/egosumscientia/mini-pacs-edge/internal/dcmobject"
	"github.com/egosumscientia/mini-pacs-edge/internal/dimse"
	"github.com/egosumscientia/mini-pacs-edge/internal/obslog"
	"github.com/egosumscientia/mini-pacs-edge/internal/store"
	"github.com/egosumscientia/mini-pacs-edge/internal/store/memstore"
)

type noFaults struct{}

func (noFaults) Faults() config.FaultConfig { return config.FaultConfig{} }

type fakeAssociator struct {
	status dimse.Status
	err    error
}

func (a *fakeAssociator) SendCStore(ctx context.Context, obj *dcmobject.Object) (dimse.Status, error) {
	return a.status, a.err
}
func (a *fakeAssociator) SendCEcho(ctx context.Context) (dimse.Status, error) { return a.status, a.err }
func (a *fakeAssociator) Release() error                                     { return nil }

type fakeDialer struct {
	status    dimse.Status
	assocErr  error
	sendErr   error
}

func (d *fakeDialer) Associate(ctx context.Context, cfg dimse.AssociationConfig) (dimse.Associator, error) {
	if d.assocErr != nil {
		return nil, d.assocErr
	}
	return &fakeAssociator{status: d.status, err: d.sendErr}, nil
}

func testLogger(t *testing.T) *obslog.Logger {
	t.Helper()
	log, err := obslog.New(filepath.Join(t.TempDir(), "edge.log"))
	if err != nil {
		t.Fatalf("obslog.New: %v", err)
	}
	return log
}

func writeIncoming(t *testing.T, dataRoot, study, sop string) string {
	t.Helper()
	path := filepath.Join(dataRoot, "incoming", study, sop+".dcm")
	obj := &dcmobject.Object{Header: dcmobject.Header{
		StudyInstanceUID: study,
		SOPInstanceUID:   sop,
		SOPClassUID:      "1.2.840.10008.5.1.4.1.1.2",
		Modality:         "CT",
	}}
	if err := dcmobject.WriteFile(path, obj); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestForwardOne_DummyMode_MovesToSent(t *testing.T) {
	dataRoot := t.TempDir()
	incoming := writeIncoming(t, dataRoot, "1.2.3", "1.2.3.4")

	st := memstore.New()
	ctx := context.Background()
	id, err := st.Enqueue(ctx, "1.2.3", "1.2.3.4", incoming)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	fw, err := New("EDGE", dataRoot, config.RoutingConfig{Mode: config.ModeDummy, MaxRetries: 3, PollIntervalSeconds: 1}, st, noFaults{}, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	item, err := st.GetNextQueued(ctx)
	if err != nil || item == nil {
		t.Fatalf("GetNextQueued: %v, %v", item, err)
	}
	fw.forwardOne(ctx, item)

	got, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != store.StateSent {
		t.Fatalf("State = %v, want sent", got.State)
	}
	if _, err := os.Stat(got.FilePath); err != nil {
		t.Fatalf("sent file missing: %v", err)
	}
}

func TestForwardOne_ArchiveMode_Success(t *testing.T) {
	dataRoot := t.TempDir()
	incoming := writeIncoming(t, dataRoot, "1.2.3", "1.2.3.4")
	st := memstore.New()
	ctx := context.Background()
	id, _ := st.Enqueue(ctx, "1.2.3", "1.2.3.4", incoming)

	fw, err := New("EDGE", dataRoot, config.RoutingConfig{
		Mode: config.ModeArchive, MaxRetries: 3,
		Archive: config.EndpointConfig{Host: "127.0.0.1", Port: 4242, AETitle: "ARCHIVE", TimeoutSeconds: 5},
	}, st, noFaults{}, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fw.Dial = func(time.Duration) dimse.Dialer { return &fakeDialer{status: dimse.StatusSuccess} }

	item, _ := st.GetNextQueued(ctx)
	fw.forwardOne(ctx, item)

	got, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != store.StateSent {
		t.Fatalf("State = %v, want sent", got.State)
	}
}

func TestForwardOne_ArchiveMode_FailureRetriesThenFails(t *testing.T) {
	dataRoot := t.TempDir()
	incoming := writeIncoming(t, dataRoot, "1.2.3", "1.2.3.4")
	st := memstore.New()
	ctx := context.Background()
	id, _ := st.Enqueue(ctx, "1.2.3", "1.2.3.4", incoming)

	fw, err := New("EDGE", dataRoot, config.RoutingConfig{
		Mode: config.ModeArchive, MaxRetries: 1, BackoffBaseSeconds: 0,
		Archive: config.EndpointConfig{Host: "127.0.0.1", Port: 4242, AETitle: "ARCHIVE", TimeoutSeconds: 5},
	}, st, noFaults{}, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fw.Dial = func(time.Duration) dimse.Dialer {
		return &fakeDialer{assocErr: dimse.ErrAssociationRefused}
	}

	item, _ := st.GetNextQueued(ctx)
	fw.forwardOne(ctx, item)

	got, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != store.StateFailed {
		t.Fatalf("State = %v, want failed (max_retries=1)", got.State)
	}
	if got.LastError == nil {
		t.Fatal("expected LastError to be set")
	}
}

func TestForwardOne_Workers_RoundRobinsAcrossCalls(t *testing.T) {
	dataRoot := t.TempDir()
	st := memstore.New()
	ctx := context.Background()

	fw, err := New("EDGE", dataRoot, config.RoutingConfig{
		Mode: config.ModeWorkers, MaxRetries: 3,
		Workers: []config.EndpointConfig{
			{Host: "w1", Port: 1, AETitle: "W1", TimeoutSeconds: 1},
			{Host: "w2", Port: 2, AETitle: "W2", TimeoutSeconds: 1},
		},
	}, st, noFaults{}, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fw.Dial = func(time.Duration) dimse.Dialer { return &fakeDialer{status: dimse.StatusSuccess} }

	var seenAEs []string
	for i := 0; i < 2; i++ {
		incoming := writeIncoming(t, dataRoot, "1.2.3", "sop-"+string(rune('a'+i)))
		id, _ := st.Enqueue(ctx, "1.2.3", "sop-"+string(rune('a'+i)), incoming)
		item, _ := st.GetNextQueued(ctx)
		fw.forwardOne(ctx, item)
		got, _ := st.Get(ctx, id)
		if got.WorkerAE != nil {
			seenAEs = append(seenAEs, *got.WorkerAE)
		}
	}
	if len(seenAEs) != 2 || seenAEs[0] == seenAEs[1] {
		t.Fatalf("expected round-robin across distinct workers, got %v", seenAEs)
	}
}

func TestNew_WorkersModeWithNoWorkers_FailsFast(t *testing.T) {
	st := memstore.New()
	_, err := New("EDGE", t.TempDir(), config.RoutingConfig{Mode: config.ModeWorkers}, st, noFaults{}, testLogger(t))
	if err == nil {
		t.Fatal("expected New to fail fast with an empty worker list")
	}
}
