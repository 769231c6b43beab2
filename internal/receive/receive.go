// Package receive implements the inbound C-STORE/C-ECHO handling:
// allow-list enforcement, fault checks, staging the object to disk, and
// dispatch into the queue or a parallel-mode synchronous/async send.
package receive

import (
	"context"
	"path/filepath"

	"github.com/egosumscientia/mini-pacs-edge/internal/config"
	"github.com/egosumscientia/mini-pacs-edge/internal/correlate"
	"github.com/egosumscientia/mini-pacs-edge/internal/dcmobject"
	"github.com/egosumscientia/mini-pacs-edge/internal/dimse"
	"github.com/egosumscientia/mini-pacs-edge/internal/faults"
	"github.com/egosumscientia/mini-pacs-edge/internal/forward"
	"github.com/egosumscientia/mini-pacs-edge/internal/obslog"
	"github.com/egosumscientia/mini-pacs-edge/internal/store"
)

const aiResultSeriesDescription = "AI_RESULT"

// Handler is the receive-path entry point, wired to dimse.Listener as
// its EchoHandler/StoreHandler pair.
type Handler struct {
	AETitle            string
	AllowedCallingAETs []string
	DataRoot           string
	Routing            config.RoutingConfig
	Store              store.Store
	Faults             faults.Source
	Correlator         *correlate.Correlator
	Forwarder          *forward.Forwarder
	Log                *obslog.Logger
}

// New returns a Handler scoped to the "receive" log stage.
func New(aeTitle string, allowed []string, dataRoot string, routing config.RoutingConfig, st store.Store, faultSrc faults.Source, corr *correlate.Correlator, fwd *forward.Forwarder, log *obslog.Logger) *Handler {
	return &Handler{
		AETitle: aeTitle, AllowedCallingAETs: allowed, DataRoot: dataRoot,
		Routing: routing, Store: st, Faults: faultSrc, Correlator: corr, Forwarder: fwd,
		Log: log.Stage("receive"),
	}
}

// Echo always answers success.
func (h *Handler) Echo(ctx context.Context, ev dimse.Event) dimse.Status {
	return dimse.StatusSuccess
}

// Store implements dimse.StoreHandler.
func (h *Handler) Store(ctx context.Context, ev dimse.StoreEvent) dimse.Status {
	studyUID := ev.Object.StudyUIDOrUnknown()
	sopUID := ev.Object.SOPUIDOrUnknown()
	base := obslog.Fields{
		"study_uid":   studyUID,
		"sop_uid":     sopUID,
		"ae_title":    ev.CalledAE,
		"calling_aet": ev.CallingAE,
		"remote_ip":   ev.RemoteIP,
	}

	if len(h.AllowedCallingAETs) > 0 && !contains(h.AllowedCallingAETs, ev.CallingAE) {
		h.logWith(base, "error", "rejected", "calling_aet_not_allowed")
		return dimse.StatusRefused
	}

	if err := faults.Apply(h.Faults, "receive"); err != nil {
		h.logWith(base, "error", "rejected", err.Error())
		return dimse.StatusRefused
	}

	destPath := filepath.Join(h.DataRoot, "incoming", studyUID, sopUID+".dcm")
	if err := faults.SimulateDiskFull(h.Faults, destPath); err != nil {
		h.logWith(base, "error", "failed", err.Error())
		return dimse.StatusRefused
	}
	if err := dcmobject.WriteFile(destPath, ev.Object); err != nil {
		h.logWith(base, "error", "failed", err.Error())
		return dimse.StatusRefused
	}

	h.Log.Info("accepted", merge(base, obslog.Fields{"outcome": "accepted"}))
	storedFields := obslog.Fields{"outcome": "stored"}
	if digest, err := dcmobject.ContentHash(destPath); err == nil {
		storedFields["content_hash"] = digest
	}
	h.Log.Info("stored", merge(base, storedFields))

	isAIResult := ev.Object.SeriesDescription == aiResultSeriesDescription

	switch {
	case h.Routing.Mode == config.ModeParallel && isAIResult:
		h.handleParallelAIResult(ctx, studyUID, sopUID, destPath, base)
		return dimse.StatusSuccess

	case h.Routing.Mode == config.ModeParallel:
		h.handleParallelNormal(ctx, studyUID, sopUID, destPath, base)
		return dimse.StatusSuccess

	default:
		id, err := h.Store.Enqueue(ctx, studyUID, sopUID, destPath)
		if err != nil {
			h.logWith(base, "error", "failed", err.Error())
			return dimse.StatusRefused
		}
		h.Log.Info("queue", merge(base, obslog.Fields{"outcome": "queued"}))
		_ = id

		if isAIResult {
			h.correlateAndLog(ctx, studyUID, sopUID, base)
		}
		return dimse.StatusSuccess
	}
}

func (h *Handler) handleParallelAIResult(ctx context.Context, studyUID, sopUID, destPath string, base obslog.Fields) {
	corr, err := h.Correlator.Correlate(ctx, studyUID, sopUID)
	if err != nil {
		return
	}

	obj, readErr := dcmobject.ReadFile(destPath)
	if readErr == nil {
		if sendErr := h.Forwarder.SendArchive(ctx, obj); sendErr != nil {
			h.logWith(base, "error", "forward_failed", sendErr.Error())
		} else {
			fields := merge(base, obslog.Fields{"outcome": "forwarded"})
			if corr != nil {
				fields["original_sop_uid"] = corr.OriginalSOP
				fields["duration_ms"] = corr.DurationMS
			}
			h.Log.Info("ai_result", fields)
		}
	}
}

func (h *Handler) handleParallelNormal(ctx context.Context, studyUID, sopUID, destPath string, base obslog.Fields) {
	id, err := h.Store.Enqueue(ctx, studyUID, sopUID, destPath)
	if err != nil {
		h.logWith(base, "error", "failed", err.Error())
		return
	}
	h.Log.Info("queue", merge(base, obslog.Fields{"outcome": "queued"}))

	obj, readErr := dcmobject.ReadFile(destPath)
	if readErr == nil {
		if sendErr := h.Forwarder.SendArchive(ctx, obj); sendErr != nil {
			errMsg := sendErr.Error()
			if err := h.Store.UpdateState(ctx, id, store.StateFailed, nil, &errMsg); err != nil {
				h.logWith(base, "error", "failed", err.Error())
			}
			h.logWith(base, "error", "failed", errMsg)
		} else {
			if err := h.Store.MarkPACSSent(ctx, id); err != nil {
				h.logWith(base, "error", "failed", err.Error())
			}
			if err := h.Store.UpdateState(ctx, id, store.StateSent, nil, nil); err != nil {
				h.logWith(base, "error", "failed", err.Error())
			} else {
				h.Log.Info("forward_pacs", merge(base, obslog.Fields{"outcome": "sent"}))
			}
		}
	}

	go h.sendWorkerAsync(id, studyUID, sopUID, base)
}

func (h *Handler) sendWorkerAsync(id int64, studyUID, sopUID string, base obslog.Fields) {
	ctx := context.Background()
	item, err := h.Store.Get(ctx, id)
	if err != nil {
		return
	}
	if err := h.Forwarder.SendWorker(ctx, item); err != nil {
		status := store.AIStatusFailed
		msg := err.Error()
		if isTimeoutMessage(msg) {
			status = store.AIStatusTimeout
		}
		_ = h.Store.MarkAIStatus(ctx, id, status, &msg)
		h.logWith(base, "error", "forward_worker", msg)
	}
}

func (h *Handler) correlateAndLog(ctx context.Context, studyUID, sopUID string, base obslog.Fields) {
	corr, err := h.Correlator.Correlate(ctx, studyUID, sopUID)
	if err != nil || corr == nil {
		return
	}
	fields := merge(base, obslog.Fields{
		"outcome":          "correlated",
		"original_sop_uid": corr.OriginalSOP,
		"worker":           corr.Worker.AE,
		"duration_ms":      corr.DurationMS,
	})
	h.Log.Info("result", fields)
}

func (h *Handler) logWith(base obslog.Fields, level, outcome, errMsg string) {
	fields := merge(base, obslog.Fields{"outcome": outcome, "error": errMsg})
	switch level {
	case "error":
		h.Log.Error(outcome, fields)
	case "warning":
		h.Log.Warn(outcome, fields)
	default:
		h.Log.Info(outcome, fields)
	}
}

func merge(base obslog.Fields, extra obslog.Fields) obslog.Fields {
	out := make(obslog.Fields, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func isTimeoutMessage(msg string) bool {
	return msg == "timeout" || msg == "worker_timeout"
}
