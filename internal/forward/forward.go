// Package forward implements the background forwarder: it claims
// queued items, moves their file through the on-disk state directories,
// dispatches them to the archive and/or worker endpoints per the
// active routing mode, and retries failures with bounded exponential
// backoff.
package forward

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/egosumscientia/mini-pacs-edge/internal/backoff"
	"github.com/egosumscientia/mini-pacs-edge/internal/config"
	"github.com/egosumscientia/mini-pacs-edge/internal/dcmobject"
	"github.com/egosumscientia/mini-pacs-edge/internal/dimse"
	"github.com/egosumscientia/mini-pacs-edge/internal/faults"
	"github.com/egosumscientia/mini-pacs-edge/internal/obslog"
	"github.com/egosumscientia/mini-pacs-edge/internal/router"
	"github.com/egosumscientia/mini-pacs-edge/internal/store"
)

// postFaultPause paces bursts after the per-stage fault check, matching
// the original forwarder's fixed 200ms pause.
const postFaultPause = 200 * time.Millisecond

// DialerFactory builds a Dialer bound to a per-endpoint timeout.
type DialerFactory func(timeout time.Duration) dimse.Dialer

func defaultDialerFactory(timeout time.Duration) dimse.Dialer {
	return dimse.TCPDialer{Timeout: timeout}
}

// Forwarder is the background dispatch loop.
type Forwarder struct {
	AETitle  string
	DataRoot string
	Routing  config.RoutingConfig
	Store    store.Store
	Faults   faults.Source
	Log      *obslog.Logger
	Dial     DialerFactory

	workers *roundRobin
}

// New validates the routing config (failing fast on an empty worker
// list when one is required, per spec.md §4.E) and constructs a
// Forwarder.
func New(aeTitle, dataRoot string, routing config.RoutingConfig, st store.Store, faultSrc faults.Source, log *obslog.Logger) (*Forwarder, error) {
	if requiresWorkers(routing.Mode) && len(routing.Workers) == 0 {
		return nil, fmt.Errorf("forward: mode %q requires at least one configured worker", routing.Mode)
	}
	dial := defaultDialerFactory
	return &Forwarder{
		AETitle:  aeTitle,
		DataRoot: dataRoot,
		Routing:  routing,
		Store:    st,
		Faults:   faultSrc,
		Log:      log.Stage("forward"),
		Dial:     dial,
		workers:  newRoundRobin(routing.Workers),
	}, nil
}

func requiresWorkers(mode config.RoutingMode) bool {
	return mode == config.ModeWorkers || mode == config.ModeGateway || mode == config.ModeParallel
}

// Run claims and forwards queued items until ctx is canceled.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		item, err := f.Store.GetNextQueued(ctx)
		if err != nil {
			f.Log.Error("get_next_queued failed", obslog.Fields{"error": err.Error()})
			item = nil
		}
		if item == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(f.Routing.PollIntervalSeconds) * time.Second):
			}
			continue
		}
		f.forwardOne(ctx, item)
	}
}

func (f *Forwarder) forwardOne(ctx context.Context, item *store.Item) {
	queuedPath, err := f.moveTo("queued", item.StudyUID, item.SOPUID, item.FilePath)
	if err != nil {
		f.handleFailure(ctx, item, err.Error())
		return
	}
	// The record is already in forwarding from GetNextQueued; the new
	// path is recorded with the next state transition.
	item.FilePath = queuedPath

	if err := faults.Apply(f.Faults, "forward"); err != nil {
		f.handleFailure(ctx, item, err.Error())
		return
	}
	time.Sleep(postFaultPause)

	destination := string(f.Routing.Mode)
	if err := f.dispatch(ctx, item, &destination); err != nil {
		f.handleFailure(ctx, item, err.Error())
		return
	}

	sentPath, err := f.moveTo("sent", item.StudyUID, item.SOPUID, item.FilePath)
	if err != nil {
		f.handleFailure(ctx, item, err.Error())
		return
	}
	if err := f.Store.UpdateState(ctx, item.ID, store.StateSent, &sentPath, nil); err != nil {
		f.handleFailure(ctx, item, err.Error())
		return
	}
	f.Log.Info("sent", obslog.Fields{
		"study_uid":   item.StudyUID,
		"sop_uid":     item.SOPUID,
		"destination": destination,
		"outcome":     "sent",
	})
}

func (f *Forwarder) dispatch(ctx context.Context, item *store.Item, destination *string) error {
	switch f.Routing.Mode {
	case config.ModeDummy:
		return nil
	case config.ModeArchive:
		obj, err := dcmobject.ReadFile(item.FilePath)
		if err != nil {
			return err
		}
		return f.sendArchive(ctx, obj)
	case config.ModeWorkers:
		return f.sendToRoundRobinWorker(ctx, item)
	case config.ModeGateway, config.ModeParallel:
		header, err := dcmobject.ReadHeaderFile(item.FilePath)
		if err != nil {
			return err
		}
		route := router.Decide(*header)
		*destination = string(route)
		if route == router.RouteWorker {
			return f.sendToRoundRobinWorker(ctx, item)
		}
		obj, err := dcmobject.ReadFile(item.FilePath)
		if err != nil {
			return err
		}
		return f.sendArchive(ctx, obj)
	default:
		return &ForwardError{Code: fmt.Sprintf("unknown_route:%s", f.Routing.Mode)}
	}
}

func (f *Forwarder) sendArchive(ctx context.Context, obj *dcmobject.Object) error {
	return f.send(ctx, f.Routing.Archive, obj, false)
}

// SendArchive sends obj to the configured archive endpoint. Exported
// for the receive path's synchronous parallel-mode archive send.
func (f *Forwarder) SendArchive(ctx context.Context, obj *dcmobject.Object) error {
	return f.sendArchive(ctx, obj)
}

// SendWorker picks the next round-robin worker, marks the item
// worker-sent, and sends it. Exported for the receive path's
// asynchronous parallel-mode worker send.
func (f *Forwarder) SendWorker(ctx context.Context, item *store.Item) error {
	return f.sendToRoundRobinWorker(ctx, item)
}

func (f *Forwarder) sendToRoundRobinWorker(ctx context.Context, item *store.Item) error {
	worker, ok := f.workers.pick()
	if !ok {
		return &ForwardError{Code: "workers_unconfigured"}
	}
	if err := f.Store.MarkWorkerSent(ctx, item.ID, worker.Host, worker.AETitle); err != nil {
		return err
	}
	obj, err := dcmobject.ReadFile(item.FilePath)
	if err != nil {
		return err
	}
	if err := f.send(ctx, worker, obj, true); err != nil {
		return err
	}
	f.Log.Info("worker delivered", obslog.Fields{
		"study_uid": item.StudyUID,
		"sop_uid":   item.SOPUID,
		"worker":    worker.AETitle,
		"outcome":   "delivered",
	})
	return nil
}

func (f *Forwarder) send(ctx context.Context, ep config.EndpointConfig, obj *dcmobject.Object, worker bool) error {
	timeout := time.Duration(ep.TimeoutSeconds) * time.Second
	assoc, err := f.Dial(timeout).Associate(ctx, dimse.AssociationConfig{
		Host: ep.Host, Port: ep.Port, CallingAE: f.AETitle, CalledAE: ep.AETitle,
	})
	if err != nil {
		return classifyAssociateErr(err, worker)
	}
	defer assoc.Release()

	status, sendErr := assoc.SendCStore(ctx, obj)
	if fe := classifyStoreErr(status, sendErr, worker); fe != nil {
		return fe
	}
	return nil
}

func (f *Forwarder) handleFailure(ctx context.Context, item *store.Item, errMsg string) {
	f.Log.Error("forward failed", obslog.Fields{
		"study_uid": item.StudyUID,
		"sop_uid":   item.SOPUID,
		"outcome":   "failed",
		"error":     errMsg,
	})
	if err := f.Store.IncrementRetry(ctx, item.ID, errMsg); err != nil {
		f.Log.Error("increment_retry failed", obslog.Fields{"error": err.Error()})
	}
	newRetries := item.Retries + 1

	if newRetries >= maxRetries(f.Routing) {
		failedPath, err := f.moveTo("failed", item.StudyUID, item.SOPUID, item.FilePath)
		if err != nil {
			annotated := fmt.Sprintf("%s;move_failed:%s", errMsg, err)
			if uerr := f.Store.UpdateState(ctx, item.ID, store.StateFailed, &item.FilePath, &annotated); uerr != nil {
				f.Log.Error("update_state(failed) failed", obslog.Fields{"error": uerr.Error()})
			}
			return
		}
		if err := f.Store.UpdateState(ctx, item.ID, store.StateFailed, &failedPath, &errMsg); err != nil {
			f.Log.Error("update_state(failed) failed", obslog.Fields{"error": err.Error()})
		}
		return
	}

	if err := f.Store.UpdateState(ctx, item.ID, store.StateQueued, &item.FilePath, &errMsg); err != nil {
		f.Log.Error("update_state(queued) failed", obslog.Fields{"error": err.Error()})
	}
	f.Log.Warn("retry", obslog.Fields{
		"study_uid": item.StudyUID,
		"sop_uid":   item.SOPUID,
		"outcome":   "retry",
		"error":     errMsg,
	})

	delay := backoff.DelayForAttempt(newRetries, backoff.Config{
		BaseSeconds: f.Routing.BackoffBaseSeconds,
		Factor:      2.0,
	}, fmt.Sprintf("%s:%d", item.StudyUID, item.ID))
	time.Sleep(delay)
}

func maxRetries(r config.RoutingConfig) int {
	if r.MaxRetries <= 0 {
		return 1
	}
	return r.MaxRetries
}

func (f *Forwarder) moveTo(stateDir, studyUID, sopUID, sourcePath string) (string, error) {
	destDir := filepath.Join(f.DataRoot, stateDir, studyUID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	destPath := filepath.Join(destDir, sopUID+".dcm")
	if err := faults.SimulateDiskFull(f.Faults, destPath); err != nil {
		return "", err
	}
	if err := os.Rename(sourcePath, destPath); err != nil {
		return "", err
	}
	return destPath, nil
}
