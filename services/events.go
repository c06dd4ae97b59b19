package services

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Event types published after a successful instruction.
const (
	EventTaskCreated   = "task_created"
	EventSubmission    = "submission"
	EventVotingOpened  = "voting_opened"
	EventVote          = "vote"
	EventAccountFunded = "account_funded"
)

// Event is a notification about a committed state change.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Task      string    `json:"task,omitempty"`
	Actor     string    `json:"actor"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// EventBus fans events out to sinks and keeps the most recent ones.
type EventBus struct {
	mu     sync.Mutex
	sinks  []func(Event)
	recent []Event
	limit  int
}

// NewEventBus keeps up to limit recent events (default 200).
func NewEventBus(limit int) *EventBus {
	if limit <= 0 {
		limit = 200
	}
	return &EventBus{limit: limit}
}

// RegisterSink adds a callback to receive events.
func (b *EventBus) RegisterSink(sink func(Event)) {
	if sink == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, sink)
	b.mu.Unlock()
}

// Publish stamps evt and forwards it to registered sinks.
func (b *EventBus) Publish(evt Event) Event {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	b.mu.Lock()
	b.recent = append(b.recent, evt)
	if over := len(b.recent) - b.limit; over > 0 {
		b.recent = append([]Event(nil), b.recent[over:]...)
	}
	sinks := append([]func(Event){}, b.sinks...)
	b.mu.Unlock()
	for _, sink := range sinks {
		sink(evt)
	}
	return evt
}

// Recent returns up to n events, newest last. Filtering by type is
// optional; an empty eventType matches everything.
func (b *EventBus) Recent(eventType string, n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, 0, len(b.recent))
	for _, evt := range b.recent {
		if eventType == "" || evt.Type == eventType {
			out = append(out, evt)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// NATSSink publishes events as JSON on <prefix>.<type>.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSSink connects to url. The prefix defaults to "bounty.events".
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	if prefix == "" {
		prefix = "bounty.events"
	}
	nc, err := nats.Connect(url, nats.Name("bountypool"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSSink{conn: nc, prefix: prefix}, nil
}

// Subject is the subject an event of the given type is published on.
func (s *NATSSink) Subject(eventType string) string {
	return s.prefix + "." + eventType
}

// Publish is an EventBus sink. Failures are logged, not returned; events
// are advisory and the ledger is already committed.
func (s *NATSSink) Publish(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("events: marshal %s: %v", evt.ID, err)
		return
	}
	if err := s.conn.Publish(s.Subject(evt.Type), data); err != nil {
		log.Printf("events: publish %s to nats: %v", evt.ID, err)
	}
}

// Close drains pending publishes and closes the connection.
func (s *NATSSink) Close() {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
	}
}
