// Package notify carries "records changed, re-query" signals from writers to
// open calendar views.
package notify

import (
	"context"
	"sync"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Tables that publish changes.
const (
	TableEvents        = "calendar_events"
	TableSlotTemplates = "delivery_slot_templates"
	TableBookings      = "event_bookings"
)

type Change struct {
	Table      string `json:"table"`
	BusinessID string `json:"business_id"`
	Op         Op     `json:"op"`
	ID         string `json:"id"`
}

type Handler func(Change)

// Bus delivers changes to subscribers of a table. An empty table subscribes
// to every table. The returned func removes the subscription and is safe to
// call more than once.
type Bus interface {
	Publish(ctx context.Context, c Change) error
	Subscribe(table string, fn Handler) (unsubscribe func(), err error)
}

// Memory is an in-process Bus. Handlers run synchronously on the publishing
// goroutine and must not block.
type Memory struct {
	mu   sync.RWMutex
	next int
	subs map[int]subscription
}

type subscription struct {
	table string
	fn    Handler
}

var _ Bus = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{subs: make(map[int]subscription)}
}

func (m *Memory) Publish(_ context.Context, c Change) error {
	m.mu.RLock()
	targets := make([]Handler, 0, len(m.subs))
	for _, s := range m.subs {
		if s.table == "" || s.table == c.Table {
			targets = append(targets, s.fn)
		}
	}
	m.mu.RUnlock()

	for _, fn := range targets {
		fn(c)
	}
	return nil
}

func (m *Memory) Subscribe(table string, fn Handler) (func(), error) {
	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = subscription{table: table, fn: fn}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}, nil
}

// Subscribers reports the number of live subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}
