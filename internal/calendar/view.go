package calendar

import (
	"context"
	"sync"

	appLog "storecal/internal/log"
	"storecal/internal/model"
	"storecal/internal/notify"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Snapshot is what a View currently shows. In StateError Occurrences is
// always empty.
type Snapshot struct {
	State       State
	Query       Query
	Occurrences []model.Occurrence
	Err         error
	// Token identifies the request that produced this snapshot.
	Token uint64
}

// ErrMessage is the human-readable error, or "".
func (s Snapshot) ErrMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// Fetcher is the part of Service a View needs.
type Fetcher interface {
	FetchWindow(ctx context.Context, q Query) (Result, error)
}

// View keeps one consumer's window up to date. Each Request supersedes the
// previous one: a fetch whose token is no longer current is discarded. A
// change notification re-fetches the current query; notifications arriving
// while a fetch is running collapse into one follow-up fetch.
type View struct {
	fetcher Fetcher

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	query       Query
	hasQuery    bool
	token       uint64
	inflight    bool
	dirty       bool
	fetchCancel context.CancelFunc
	snap        Snapshot
	changed     chan struct{}
	closed      bool
	unsubscribe func()

	listeners []func(Snapshot)
	queue     []Snapshot
	wake      chan struct{}
	done      chan struct{}
}

// NewView subscribes to bus (if not nil) and returns an idle view.
func NewView(f Fetcher, bus notify.Bus) (*View, error) {
	ctx, cancel := context.WithCancel(context.Background())
	v := &View{
		fetcher: f,
		ctx:     ctx,
		cancel:  cancel,
		snap:    Snapshot{State: StateIdle},
		changed: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if bus != nil {
		// Subscribe to the method, not a closure over the query, so a
		// notification always re-fetches whatever is current.
		unsub, err := bus.Subscribe("", v.onChange)
		if err != nil {
			cancel()
			return nil, &FetchError{Op: "subscribe", Err: err}
		}
		v.unsubscribe = unsub
	}
	go v.dispatch()
	return v, nil
}

// OnChange registers fn to receive every snapshot the view applies, in
// order, on a dedicated goroutine.
func (v *View) OnChange(fn func(Snapshot)) {
	v.mu.Lock()
	v.listeners = append(v.listeners, fn)
	v.mu.Unlock()
}

// Snapshot returns the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap
}

// Request makes q the current query and fetches it.
func (v *View) Request(q Query) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.query = q
	v.hasQuery = true
	v.dirty = false
	v.startLocked()
}

// Refresh re-fetches the current query, or schedules one follow-up fetch if
// a fetch is already running.
func (v *View) Refresh() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refreshLocked()
}

func (v *View) onChange(c notify.Change) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c.BusinessID != "" && c.BusinessID != v.query.BusinessID {
		return
	}
	v.refreshLocked()
}

func (v *View) refreshLocked() {
	if v.closed || !v.hasQuery {
		return
	}
	if v.inflight {
		v.dirty = true
		return
	}
	v.startLocked()
}

// startLocked cancels any running fetch and starts a new one for v.query.
func (v *View) startLocked() {
	if v.fetchCancel != nil {
		v.fetchCancel()
	}
	v.token++
	tok := v.token
	q := v.query
	ctx, cancel := context.WithCancel(v.ctx)
	v.fetchCancel = cancel
	v.inflight = true

	v.setLocked(Snapshot{State: StateLoading, Query: q, Occurrences: v.snap.Occurrences, Token: tok})
	go v.run(ctx, tok, q)
}

func (v *View) run(ctx context.Context, tok uint64, q Query) {
	res, err := v.fetcher.FetchWindow(ctx, q)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || tok != v.token {
		return
	}

	next := Snapshot{Query: q, Token: tok}
	if err != nil {
		appLog.Error("calendar: view fetch failed", err, "business_id", q.BusinessID, "window", q.Window.String())
		next.State = StateError
		next.Err = err
		next.Occurrences = []model.Occurrence{}
	} else {
		next.State = StateSuccess
		next.Occurrences = res.Occurrences
	}

	v.inflight = false
	v.fetchCancel = nil
	v.setLocked(next)

	if v.dirty {
		v.dirty = false
		v.startLocked()
	}
}

// setLocked publishes a new snapshot to waiters and listeners.
func (v *View) setLocked(s Snapshot) {
	v.snap = s
	close(v.changed)
	v.changed = make(chan struct{})
	if len(v.listeners) > 0 {
		v.queue = append(v.queue, s)
		select {
		case v.wake <- struct{}{}:
		default:
		}
	}
}

func (v *View) dispatch() {
	for {
		select {
		case <-v.wake:
		case <-v.done:
			return
		}
		v.mu.Lock()
		queue := v.queue
		v.queue = nil
		listeners := append([]func(Snapshot){}, v.listeners...)
		v.mu.Unlock()

		for _, s := range queue {
			for _, fn := range listeners {
				fn(s)
			}
		}
	}
}

// Wait blocks until no fetch is running (or the view is closed) and returns
// the settled snapshot.
func (v *View) Wait(ctx context.Context) (Snapshot, error) {
	for {
		v.mu.Lock()
		if !v.inflight || v.closed {
			s := v.snap
			v.mu.Unlock()
			return s, nil
		}
		ch := v.changed
		v.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return v.Snapshot(), ctx.Err()
		}
	}
}

// Close cancels pending fetches, unsubscribes and stops listener delivery.
// Results of fetches still running are dropped.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.cancel()
	unsub := v.unsubscribe
	v.unsubscribe = nil
	close(v.changed)
	v.changed = make(chan struct{})
	close(v.done)
	v.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}
