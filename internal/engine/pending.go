package engine

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/emberfx/emberlink/internal/metrics"
)

// result settles one correlated request: payload on resolve, err on reject.
type result struct {
	payload json.RawMessage
	err     error
}

type pendingEntry struct {
	ch      chan result
	timer   *time.Timer
	cmdType string
	since   time.Time
}

// pendingTable tracks in-flight correlated requests. Each entry is settled
// exactly once: removal happens under the lock before the result is
// delivered, so a timeout racing a reply can never settle the same entry
// twice. Identifiers are never reused while pending (uuid per command).
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingEntry)}
}

// add registers id and arms its timeout. The returned channel receives the
// settlement, buffered so the settler never blocks.
func (t *pendingTable) add(id, cmdType string, timeout time.Duration) <-chan result {
	e := &pendingEntry{
		ch:      make(chan result, 1),
		cmdType: cmdType,
		since:   time.Now(),
	}
	e.timer = time.AfterFunc(timeout, func() {
		t.settle(id, result{err: ErrRequestTimeout})
	})
	t.mu.Lock()
	t.entries[id] = e
	n := len(t.entries)
	t.mu.Unlock()
	metrics.SetPendingRequests(n)
	return e.ch
}

// settle removes id and delivers res. Returns false when id is unknown or
// already settled.
func (t *pendingTable) settle(id string, res result) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	n := len(t.entries)
	t.mu.Unlock()
	if !ok {
		return false
	}
	e.timer.Stop()
	metrics.SetPendingRequests(n)
	if res.err == nil {
		metrics.ObserveRequestDuration(e.cmdType, time.Since(e.since).Seconds())
	}
	e.ch <- res
	return true
}

// drop removes id without settling it. Used when the write following
// registration fails; the caller reports the write error itself.
func (t *pendingTable) drop(id string) {
	t.mu.Lock()
	if e, ok := t.entries[id]; ok {
		e.timer.Stop()
		delete(t.entries, id)
	}
	n := len(t.entries)
	t.mu.Unlock()
	metrics.SetPendingRequests(n)
}

// failAll rejects every outstanding request with err and empties the table.
// Returns how many requests were rejected.
func (t *pendingTable) failAll(err error) int {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*pendingEntry)
	t.mu.Unlock()
	for _, e := range entries {
		e.timer.Stop()
		e.ch <- result{err: err}
	}
	metrics.SetPendingRequests(0)
	return len(entries)
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
