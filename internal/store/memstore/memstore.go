// Package memstore is an in-memory store.Store used by tests so the
// core's test suite never needs a live Postgres.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/egosumscientia/mini-pacs-edge/internal/store"
)

// Store is a mutex-guarded map-backed implementation of store.Store.
type Store struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*store.Item
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{items: make(map[int64]*store.Item)}
}

func (s *Store) Close() error { return nil }

func (s *Store) Enqueue(ctx context.Context, studyUID, sopUID, filePath string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	now := time.Now()
	s.items[id] = &store.Item{
		ID:        id,
		StudyUID:  studyUID,
		SOPUID:    sopUID,
		FilePath:  filePath,
		State:     store.StateQueued,
		AIStatus:  store.AIStatusNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

func (s *Store) GetNextQueued(ctx context.Context) (*store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *store.Item
	for _, it := range s.items {
		if it.State != store.StateQueued {
			continue
		}
		if oldest == nil || it.CreatedAt.Before(oldest.CreatedAt) {
			oldest = it
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.State = store.StateForwarding
	oldest.UpdatedAt = time.Now()
	cp := *oldest
	return &cp, nil
}

func (s *Store) UpdateState(ctx context.Context, id int64, state store.State, filePath *string, lastError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return store.ErrNotFound
	}
	if !allowed(it.State, state) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, it.State, state)
	}
	it.State = state
	if filePath != nil {
		it.FilePath = *filePath
	}
	if lastError != nil {
		it.LastError = lastError
	}
	it.UpdatedAt = time.Now()
	return nil
}

// allowed mirrors store.validTransitions: queued -> sent|failed is a
// direct edge alongside queued -> forwarding, used by parallel routing
// mode's synchronous send, which never puts the item through a
// forwarder claim.
func allowed(from, to store.State) bool {
	switch from {
	case store.StateQueued:
		return to == store.StateForwarding || to == store.StateSent || to == store.StateFailed
	case store.StateForwarding:
		return to == store.StateSent || to == store.StateQueued || to == store.StateFailed
	default:
		return false
	}
}

func (s *Store) IncrementRetry(ctx context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return store.ErrNotFound
	}
	it.Retries++
	it.LastError = &errMsg
	it.UpdatedAt = time.Now()
	return nil
}

func (s *Store) MarkWorkerSent(ctx context.Context, id int64, host, ae string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	it.WorkerHost = &host
	it.WorkerAE = &ae
	it.WorkerSentAt = &now
	it.AIStatus = store.AIStatusPending
	it.UpdatedAt = now
	return nil
}

func (s *Store) MarkPACSSent(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	it.PACSSentAt = &now
	it.UpdatedAt = now
	return nil
}

func (s *Store) MarkAIStatus(ctx context.Context, id int64, status store.AIStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return store.ErrNotFound
	}
	it.AIStatus = status
	if errMsg != nil {
		it.LastError = errMsg
	}
	it.UpdatedAt = time.Now()
	return nil
}

// MarkResultReceived picks the oldest (worker_sent_at ascending)
// pending, unreceived record for studyUID, matching spec.md §4.G's
// "oldest pending first" selection order.
func (s *Store) MarkResultReceived(ctx context.Context, studyUID, resultSOP string) (*store.Correlation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*store.Item
	for _, it := range s.items {
		if it.StudyUID == studyUID && it.AIStatus == store.AIStatusPending && it.ResultReceivedAt == nil {
			candidates = append(candidates, it)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		ti, tj := time.Time{}, time.Time{}
		if candidates[i].WorkerSentAt != nil {
			ti = *candidates[i].WorkerSentAt
		}
		if candidates[j].WorkerSentAt != nil {
			tj = *candidates[j].WorkerSentAt
		}
		return ti.Before(tj)
	})

	winner := candidates[0]
	now := time.Now()
	winner.ResultReceivedAt = &now
	winner.AIStatus = store.AIStatusDelivered
	winner.UpdatedAt = now

	var sentAt time.Time
	if winner.WorkerSentAt != nil {
		sentAt = *winner.WorkerSentAt
	}
	var host, ae string
	if winner.WorkerHost != nil {
		host = *winner.WorkerHost
	}
	if winner.WorkerAE != nil {
		ae = *winner.WorkerAE
	}

	return &store.Correlation{
		OriginalSOP: winner.SOPUID,
		Worker:      store.Worker{Host: host, AE: ae},
		DurationMS:  now.Sub(sentAt).Milliseconds(),
	}, nil
}

func (s *Store) GetCounts(ctx context.Context) (map[store.State]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[store.State]int{store.StateQueued: 0, store.StateForwarding: 0, store.StateSent: 0, store.StateFailed: 0}
	for _, it := range s.items {
		counts[it.State]++
	}
	return counts, nil
}

func (s *Store) GetStudyRows(ctx context.Context, studyUID string) ([]store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Item
	for _, it := range s.items {
		if it.StudyUID == studyUID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *it
	return &cp, nil
}
