// Package memory records notifications in process. The offline crawl mode and
// tests use it in place of Pub/Sub.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message captures one Publish call.
type Message struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher keeps every published message.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
	// Err, when set, is returned by Publish and nothing is recorded.
	Err error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the payload under a sequential id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns a copy of everything published to topic, or to any topic when topic is empty.
func (p *Publisher) Messages(topic string) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, 0, len(p.messages))
	for _, m := range p.messages {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Close is a no-op.
func (p *Publisher) Close() error { return nil }
