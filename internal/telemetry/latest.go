package telemetry

import (
	"context"
	"sync"
)

// Latest enforces latest-request-wins per view key. Starting an operation for
// a key cancels the previous in-flight operation for the same key.
type Latest struct {
	mu      sync.Mutex
	seq     uint64
	current map[string]*inflight
}

type inflight struct {
	id     uint64
	cancel context.CancelFunc
}

// Ticket identifies one operation started with Latest.Begin.
type Ticket struct {
	l   *Latest
	key string
	id  uint64
}

// NewLatest creates an empty coordinator.
func NewLatest() *Latest {
	return &Latest{current: make(map[string]*inflight)}
}

// Begin starts an operation for key. The returned context is canceled when a
// newer operation for the same key begins or when release is called; release
// must always be called.
func (l *Latest) Begin(ctx context.Context, key string) (context.Context, Ticket, func()) {
	ctx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	l.seq++
	id := l.seq
	if prev, ok := l.current[key]; ok {
		prev.cancel()
	}
	l.current[key] = &inflight{id: id, cancel: cancel}
	l.mu.Unlock()

	t := Ticket{l: l, key: key, id: id}
	release := func() {
		cancel()
		l.mu.Lock()
		if cur, ok := l.current[key]; ok && cur.id == id {
			delete(l.current, key)
		}
		l.mu.Unlock()
	}
	return ctx, t, release
}

// Current reports whether no newer operation for the ticket's key has begun.
// It must be checked before release; a released ticket is never current.
func (t Ticket) Current() bool {
	if t.l == nil {
		return true
	}
	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	cur, ok := t.l.current[t.key]
	return ok && cur.id == t.id
}

// InFlight returns the number of keys with an operation in progress.
func (l *Latest) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.current)
}
