// Package memory keeps published research events in process. Used when
// pubsub.backend is "memory" and in tests.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/JakeFAU/pricing-research/internal/notify"
)

// Delivery is one publish call as seen by the memory backend.
type Delivery struct {
	MessageID string
	Topic     string
	Payload   any
}

// Publisher implements notify.Publisher by appending to a per-topic log.
type Publisher struct {
	mu     sync.RWMutex
	seq    int
	topics map[string][]Delivery
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{topics: make(map[string][]Delivery)}
}

// Publish appends payload to topic and returns a sequential message id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := "memory-" + strconv.Itoa(p.seq)
	p.topics[topic] = append(p.topics[topic], Delivery{MessageID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Deliveries returns a copy of everything published to topic, oldest first.
func (p *Publisher) Deliveries(topic string) []Delivery {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Delivery(nil), p.topics[topic]...)
}

// Events returns the research events published to topic. Payloads of any
// other type are skipped.
func (p *Publisher) Events(topic string) []notify.Event {
	var events []notify.Event
	for _, d := range p.Deliveries(topic) {
		if ev, ok := d.Payload.(notify.Event); ok {
			events = append(events, ev)
		}
	}
	return events
}
