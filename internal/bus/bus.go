// Package bus wraps the message broker behind a small typed pub/sub
// interface: per-queue connections, publish, and a single inbound stream
// where every message is tagged with its origin queue.
package bus

import (
	"context"
	"time"
)

// Message is one inbound item from a consumed queue.
type Message struct {
	// Queue is the logical queue the message arrived on.
	Queue string
	// Data is the raw payload.
	Data []byte

	ack func()
}

// Ack acknowledges the message on brokers that require it. On at-most-once
// queues it is a no-op.
func (m Message) Ack() {
	if m.ack != nil {
		m.ack()
	}
}

// QueueSpec describes one queue the bus participates in. Each queue is
// dialed independently.
type QueueSpec struct {
	// Name is the queue (subject) name.
	Name string
	// URL is the broker address for this queue.
	URL string
	// Consume subscribes to the queue and feeds Messages.
	Consume bool
	// RequireAck selects acknowledged delivery. When false the
	// subscription is at-most-once: a crash between receipt and
	// processing loses the message. This is a deliberate latency
	// trade-off for the bid path, not a defect.
	RequireAck bool
}

// Bus is the pub/sub contract shared by the NATS implementation and the
// in-process exchange used in tests.
type Bus interface {
	// Publish sends data to the named queue.
	Publish(ctx context.Context, queue string, data []byte) error
	// Messages streams inbound messages from all consumed queues.
	Messages() <-chan Message
	// Close tears down all queue connections.
	Close() error
}

// RetryPolicy controls connection retries. The delay grows linearly with
// consecutive failures: Base + Step*attempt.
type RetryPolicy struct {
	// Base is the delay before the first retry.
	Base time.Duration
	// Step is added per additional consecutive failure.
	Step time.Duration
	// MaxAttempts bounds the number of dial attempts; zero means
	// unbounded.
	MaxAttempts int
}

// DefaultRetryPolicy matches the historical dial behavior: 500ms, then
// +1.5s per consecutive failure, retried forever.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: 500 * time.Millisecond, Step: 1500 * time.Millisecond}
}

// Delay returns the wait before retry number attempt (zero-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.Base + time.Duration(attempt)*p.Step
}

// Exhausted reports whether the policy allows no further attempt after
// attempts tries.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}
