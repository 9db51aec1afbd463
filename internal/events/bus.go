package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStreamClosed is returned by Subscription.Next once the terminal event has
// been consumed or the subscription was detached.
var ErrStreamClosed = errors.New("events: stream closed")

// Bus fans out events per run. Publish never blocks: each subscriber owns an
// unbounded queue that it drains at its own pace.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*topic
	grace  time.Duration
	idle   time.Duration
	log    *slog.Logger
}

type topic struct {
	subs     map[*Subscription]struct{}
	terminal *Event
	doneAt   time.Time
	lastSeen time.Time
}

// NewBus creates a bus. Finished topics are kept for grace so late observers
// still see the outcome; unfinished topics are dropped after idle without
// activity.
func NewBus(grace, idle time.Duration, log *slog.Logger) *Bus {
	return &Bus{
		topics: make(map[string]*topic),
		grace:  grace,
		idle:   idle,
		log:    log,
	}
}

func (b *Bus) topicLocked(runID string) *topic {
	t, ok := b.topics[runID]
	if !ok {
		t = &topic{subs: make(map[*Subscription]struct{}), lastSeen: time.Now()}
		b.topics[runID] = t
	}
	return t
}

// Publish delivers ev to every current subscriber of ev.RunID. Events after a
// terminal event are dropped and Publish reports false.
func (b *Bus) Publish(ev Event) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(ev.RunID)
	if t.terminal != nil {
		b.log.Warn("event after terminal dropped", "run_id", ev.RunID, "stage", ev.Stage)
		return false
	}
	t.lastSeen = time.Now()
	for s := range t.subs {
		s.push(ev)
	}
	if ev.Terminal() {
		t.terminal = &ev
		t.doneAt = t.lastSeen
		clear(t.subs)
	}
	return true
}

// Subscribe attaches to runID and returns events published from now on. If
// the run already finished, the subscription yields only the terminal event.
func (b *Bus) Subscribe(runID string) *Subscription {
	s := &Subscription{bus: b, runID: runID, ready: make(chan struct{}, 1)}

	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(runID)
	t.lastSeen = time.Now()
	if t.terminal != nil {
		s.push(*t.terminal)
		return s
	}
	t.subs[s] = struct{}{}
	return s
}

// Sweep drops topics finished longer than grace ago and unfinished topics idle
// longer than the idle timeout. An unfinished topic with attached subscribers
// is kept however long it has been silent. It returns the number of dropped topics.
func (b *Bus) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var dropped int
	for id, t := range b.topics {
		switch {
		case t.terminal != nil && now.Sub(t.doneAt) > b.grace:
		case t.terminal == nil && len(t.subs) == 0 && b.idle > 0 && now.Sub(t.lastSeen) > b.idle:
			b.log.Info("idle event topic evicted", "run_id", id)
		default:
			continue
		}
		delete(b.topics, id)
		dropped++
	}
	return dropped
}

// Len returns the number of live topics.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

func (b *Bus) detach(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[s.runID]; ok {
		delete(t.subs, s)
	}
}

// Subscription is one observer's ordered view of a run.
type Subscription struct {
	bus   *Bus
	runID string

	mu     sync.Mutex
	queue  []Event
	done   bool // terminal event queued
	closed bool
	ready  chan struct{}
}

// RunID returns the run this subscription follows.
func (s *Subscription) RunID() string { return s.runID }

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.closed || s.done {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	if ev.Terminal() {
		s.done = true
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Next blocks until the next event, ctx is done, or the stream has ended.
// Queued events are always returned before ErrStreamClosed.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		if s.done || s.closed {
			s.mu.Unlock()
			return Event{}, ErrStreamClosed
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Close detaches the subscription. Pending events are discarded.
func (s *Subscription) Close() {
	s.bus.detach(s)
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	s.signal()
}
