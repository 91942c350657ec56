package walletservice

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// outcome settles one pending request.
type outcome struct {
	resultType string
	result     json.RawMessage
	err        error
}

type pendingRequest struct {
	method string
	done   chan outcome // buffered; receives exactly one outcome
	timer  *time.Timer
}

// pendingTable tracks outstanding requests by request event id. Every
// entry is settled exactly once: by a response, its timeout, or a drain.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
	closed  error // set by drain; later adds fail with it
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingRequest)}
}

// add registers id and arms its timeout. The returned request's done
// channel yields the outcome.
func (t *pendingTable) add(id, method string, timeout time.Duration) (*pendingRequest, error) {
	p := &pendingRequest{method: method, done: make(chan outcome, 1)}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed != nil {
		return nil, t.closed
	}
	t.entries[id] = p
	p.timer = time.AfterFunc(timeout, func() {
		t.settle(id, outcome{err: fmt.Errorf("%w: %s after %s", ErrTimeout, method, timeout)})
	})
	return p, nil
}

// settle removes id and delivers o. It reports false if id was not
// pending, i.e. it has already been settled.
func (t *pendingTable) settle(id string, o outcome) bool {
	t.mu.Lock()
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	p.timer.Stop()
	p.done <- o
	return true
}

// remove drops id without delivering anything.
func (t *pendingTable) remove(id string) {
	t.mu.Lock()
	p, ok := t.entries[id]
	delete(t.entries, id)
	t.mu.Unlock()
	if ok {
		p.timer.Stop()
	}
}

// method returns the method of a pending request, or "" if id is not pending.
func (t *pendingTable) method(id string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.entries[id]; ok {
		return p.method
	}
	return ""
}

// drain settles every entry with err, closes the table to new entries
// and returns how many entries there were.
func (t *pendingTable) drain(err error) int {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*pendingRequest)
	t.closed = err
	t.mu.Unlock()
	for _, p := range entries {
		p.timer.Stop()
		p.done <- outcome{err: err}
	}
	return len(entries)
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
