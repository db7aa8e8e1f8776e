// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package audit records who did what through the copilot APIs. Events are
// queued and written to a Store in batches by a background goroutine.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"copilot/platform/shared/logger"
)

// MaxSearchLimit bounds the events returned by one search
const MaxSearchLimit = 500

// ErrClosed is returned when recording on a closed Logger
var ErrClosed = errors.New("audit logger closed")

// Event is one audited API call
type Event struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	UserID     string                 `json:"user_id,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource,omitempty"`
	Method     string                 `json:"method,omitempty"`
	Route      string                 `json:"route,omitempty"`
	Status     int                    `json:"status"`
	DurationMS float64                `json:"duration_ms"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Filter selects events for Search. Since is inclusive and Until exclusive.
type Filter struct {
	TenantID string    `json:"tenant_id,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	Action   string    `json:"action,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Until    time.Time `json:"until,omitempty"`
	Limit    int       `json:"limit,omitempty"`
}

// Matches reports whether ev is selected by f
func (f Filter) Matches(ev *Event) bool {
	if f.TenantID != "" && ev.TenantID != f.TenantID {
		return false
	}
	if f.UserID != "" && ev.UserID != f.UserID {
		return false
	}
	if f.Action != "" && ev.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !ev.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	if f.Limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return f.Limit
}

// Store persists audit events
type Store interface {
	WriteBatch(ctx context.Context, events []Event) error
	Search(ctx context.Context, f Filter) ([]Event, error)
}

// Options tunes the background writer
type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	// Logger receives store-less events and write failures
	Logger *logger.Logger
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 1000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logger.New("audit")
	}
	return o
}

// Logger queues events and writes them to its store in batches
type Logger struct {
	store Store
	opts  Options
	log   *logger.Logger

	queue chan Event
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewLogger starts a Logger writing to store. A nil store only emits the
// events as log lines.
func NewLogger(store Store, opts Options) *Logger {
	opts = opts.withDefaults()
	l := &Logger{
		store: store,
		opts:  opts,
		log:   opts.Logger,
		queue: make(chan Event, opts.QueueSize),
		done:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Record queues ev. When the queue is full the event is written
// synchronously.
func (l *Logger) Record(ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}

	select {
	case l.queue <- ev:
	default:
		l.log.Warn(ev.TenantID, ev.RequestID, "Audit queue full, writing directly", nil)
		l.write([]Event{ev})
	}
	return nil
}

// Search returns matching events, newest first
func (l *Logger) Search(ctx context.Context, f Filter) ([]Event, error) {
	if l.store == nil {
		return []Event{}, nil
	}
	f.Limit = f.limit()
	return l.store.Search(ctx, f)
}

// Close stops the writer after flushing queued events. It waits until ctx
// is done at most.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, l.opts.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		l.write(batch)
		batch = make([]Event, 0, l.opts.BatchSize)
	}

	for {
		select {
		case ev := <-l.queue:
			batch = append(batch, ev)
			if len(batch) >= l.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-l.done:
			// Drain what was queued before Close
			for {
				select {
				case ev := <-l.queue:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (l *Logger) write(events []Event) {
	if l.store == nil {
		for _, ev := range events {
			l.log.Info(ev.TenantID, ev.RequestID, "audit "+ev.Action, map[string]interface{}{
				"user_id":     ev.UserID,
				"status":      ev.Status,
				"duration_ms": ev.DurationMS,
				"resource":    ev.Resource,
			})
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.store.WriteBatch(ctx, events); err != nil {
		l.log.Error("", "", "Failed to write audit batch", map[string]interface{}{
			"error":  err.Error(),
			"events": len(events),
		})
	}
}
