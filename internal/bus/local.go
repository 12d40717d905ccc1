package bus

import (
	"context"
	"fmt"
	"sync"
)

// LocalExchange is an in-process broker. Each pipeline stage takes an
// Endpoint naming the queues it consumes; publishes on any endpoint fan out
// to every endpoint consuming that queue. Used in tests to run the whole
// pipeline without a broker.
type LocalExchange struct {
	mu        sync.RWMutex
	endpoints []*LocalEndpoint
	closed    bool
}

func NewLocalExchange() *LocalExchange {
	return &LocalExchange{}
}

// Endpoint returns a Bus view consuming the given queues.
func (e *LocalExchange) Endpoint(consume ...string) *LocalEndpoint {
	ep := &LocalEndpoint{
		exchange: e,
		messages: make(chan Message, messageBuffer),
		consumes: make(map[string]bool, len(consume)),
	}
	for _, q := range consume {
		ep.consumes[q] = true
	}

	e.mu.Lock()
	e.endpoints = append(e.endpoints, ep)
	e.mu.Unlock()

	return ep
}

func (e *LocalExchange) publish(queue string, data []byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return fmt.Errorf("exchange closed")
	}
	for _, ep := range e.endpoints {
		if !ep.consumes[queue] {
			continue
		}
		// Non-blocking: a full endpoint buffer drops the message instead
		// of stalling every publisher while the lock is held. Matches the
		// broker's at-most-once queues.
		select {
		case ep.messages <- Message{Queue: queue, Data: data}:
		default:
		}
	}
	return nil
}

// Close stops delivery and closes every endpoint's message channel.
func (e *LocalExchange) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	for _, ep := range e.endpoints {
		close(ep.messages)
	}
}

// LocalEndpoint is one participant's view of the exchange.
type LocalEndpoint struct {
	exchange *LocalExchange
	messages chan Message
	consumes map[string]bool
}

func (ep *LocalEndpoint) Publish(_ context.Context, queue string, data []byte) error {
	return ep.exchange.publish(queue, data)
}

func (ep *LocalEndpoint) Messages() <-chan Message {
	return ep.messages
}

func (ep *LocalEndpoint) Close() error {
	return nil
}
