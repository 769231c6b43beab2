// Package store is the single authority over QueueItem state: every
// mutation the core makes to a queued object's lifecycle passes through
// here, and every mutation is durable before the call returns.
package store

import (
	"context"
	"errors"
	"time"
)

// State is a QueueItem's position in its lifecycle; validTransitions
// lists the allowed moves. sent and failed are terminal.
type State string

const (
	StateQueued     State = "queued"
	StateForwarding State = "forwarding"
	StateSent       State = "sent"
	StateFailed     State = "failed"
)

// AIStatus tracks a worker-bound item through result correlation.
type AIStatus string

const (
	AIStatusNone      AIStatus = "none"
	AIStatusPending   AIStatus = "pending"
	AIStatusDelivered AIStatus = "delivered"
	AIStatusFailed    AIStatus = "failed"
	AIStatusTimeout   AIStatus = "timeout"
)

// Item is a QueueItem record.
type Item struct {
	ID               int64
	StudyUID         string
	SOPUID           string
	FilePath         string
	State            State
	Retries          int
	LastError        *string
	WorkerHost       *string
	WorkerAE         *string
	WorkerSentAt     *time.Time
	ResultReceivedAt *time.Time
	AIStatus         AIStatus
	PACSSentAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Worker identifies the outbound endpoint an item was sent to, part of
// a Correlation result.
type Worker struct {
	Host string
	AE   string
}

// Correlation is the result of a successful mark_result_received match.
type Correlation struct {
	OriginalSOP string
	Worker      Worker
	DurationMS  int64
}

// ErrInvalidTransition is returned by UpdateState when the requested
// transition is not listed in validTransitions.
var ErrInvalidTransition = errors.New("store: invalid state transition")

// ErrNotFound is returned when an operation references a nonexistent id.
var ErrNotFound = errors.New("store: not found")

// Store is the queue store interface the rest of the core depends on;
// it is implemented by *Postgres for production and by memstore.Store
// for tests.
type Store interface {
	Enqueue(ctx context.Context, studyUID, sopUID, filePath string) (int64, error)
	GetNextQueued(ctx context.Context) (*Item, error)
	UpdateState(ctx context.Context, id int64, state State, filePath *string, lastError *string) error
	IncrementRetry(ctx context.Context, id int64, errMsg string) error
	MarkWorkerSent(ctx context.Context, id int64, host, ae string) error
	MarkPACSSent(ctx context.Context, id int64) error
	MarkAIStatus(ctx context.Context, id int64, status AIStatus, errMsg *string) error
	MarkResultReceived(ctx context.Context, studyUID, resultSOP string) (*Correlation, error)
	GetCounts(ctx context.Context) (map[State]int, error)
	GetStudyRows(ctx context.Context, studyUID string) ([]Item, error)
	Get(ctx context.Context, id int64) (*Item, error)
	Close() error
}

// validTransitions enforces invariant I1. queued -> sent|failed is a
// direct edge alongside queued -> forwarding: parallel routing mode
// sends synchronously on the receive path and never puts the item
// through a forwarder claim, matching the original receiver's
// handlers.py, which calls update_state(item_id, STATE_SENT) /
// update_state(item_id, STATE_FAILED, ...) straight off the
// just-enqueued record.
var validTransitions = map[State][]State{
	StateQueued:     {StateForwarding, StateSent, StateFailed},
	StateForwarding: {StateSent, StateQueued, StateFailed},
	StateSent:       {},
	StateFailed:     {},
}

func transitionAllowed(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
