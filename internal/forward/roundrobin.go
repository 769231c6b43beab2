package forward

import (
	"sync"

	"github.com/egosumscientia/mini-pacs-edge/internal/config"
)

// roundRobin cycles through a fixed worker list starting at the first
// entry after construction. It is per-process state: it does not
// survive restart and makes no fairness guarantee across multiple
// forwarder processes.
type roundRobin struct {
	mu      sync.Mutex
	workers []config.EndpointConfig
	next    int
}

func newRoundRobin(workers []config.EndpointConfig) *roundRobin {
	return &roundRobin{workers: workers}
}

// pick returns the next worker, or ok=false if the list is empty.
func (r *roundRobin) pick() (config.EndpointConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.workers) == 0 {
		return config.EndpointConfig{}, false
	}
	w := r.workers[r.next%len(r.workers)]
	r.next++
	return w, true
}
