// Package correlate matches incoming AI-result objects back to the
// worker-bound original they were derived from.
package correlate

import (
	"context"

	"github.com/egosumscientia/mini-pacs-edge/internal/obslog"
	"github.com/egosumscientia/mini-pacs-edge/internal/store"
)

// Correlator wraps store.MarkResultReceived with the logging spec.md
// §4.G and §8's scenario 5/P4/P5 require.
type Correlator struct {
	Store store.Store
	Log   *obslog.Logger
}

// New returns a Correlator scoped to the "correlate" log stage.
func New(st store.Store, log *obslog.Logger) *Correlator {
	return &Correlator{Store: st, Log: log.Stage("correlate")}
}

// Correlate looks up the oldest pending worker-sent record for
// studyUID and stamps it delivered. If there is no pending record
// (more results than pending originals), it logs "unmatched" and
// returns (nil, nil) — this is not an error, just no match.
func (c *Correlator) Correlate(ctx context.Context, studyUID, resultSOP string) (*store.Correlation, error) {
	corr, err := c.Store.MarkResultReceived(ctx, studyUID, resultSOP)
	if err != nil {
		c.Log.Error("mark_result_received failed", obslog.Fields{
			"study_uid": studyUID,
			"sop_uid":   resultSOP,
			"error":     err.Error(),
		})
		return nil, err
	}
	if corr == nil {
		c.Log.Warn("unmatched", obslog.Fields{
			"study_uid": studyUID,
			"sop_uid":   resultSOP,
			"outcome":   "unmatched",
		})
		return nil, nil
	}
	c.Log.Info("ai_result forwarded", obslog.Fields{
		"study_uid":    studyUID,
		"sop_uid":      resultSOP,
		"original_sop": corr.OriginalSOP,
		"worker":       corr.Worker.AE,
		"duration_ms":  corr.DurationMS,
		"outcome":      "delivered",
	})
	return corr, nil
}
