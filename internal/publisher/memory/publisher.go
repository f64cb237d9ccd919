// Package memory records notifications in process memory for tests and
// single-host deployments without a broker.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Message captures one publish call as it would go over the wire.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// Publisher stores JSON-encoded payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes payload and records it under topic.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", errors.New("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Messages returns the recorded publishes for topic, or all of them when
// topic is empty.
func (p *Publisher) Messages(topic string) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, 0, len(p.messages))
	for _, m := range p.messages {
		if topic == "" || m.Topic == topic {
			m.Data = append([]byte(nil), m.Data...)
			out = append(out, m)
		}
	}
	return out
}

// Close is a no-op.
func (p *Publisher) Close() error { return nil }
