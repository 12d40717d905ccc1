package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/gavelworks/gavel/internal/logging"
)

// messageBuffer bounds the inbound channel so a slow consumer applies
// backpressure to the subscription callbacks rather than growing memory.
const messageBuffer = 256

// NATSBus is the production Bus. Every queue gets its own connection, dialed
// with the retry policy; NATS itself re-arms subscriptions when a dropped
// connection is re-established.
type NATSBus struct {
	log      logging.Logger
	messages chan Message
	queues   map[string]*queuePipe
}

type queuePipe struct {
	spec QueueSpec
	nc   *nats.Conn
	js   jetstream.JetStream
	sub  *nats.Subscription
	cons jetstream.ConsumeContext
}

// Connect dials every queue in specs and arms consumers. Dial failures are
// retried per the policy; the context cancels the whole startup.
func Connect(ctx context.Context, specs []QueueSpec, policy RetryPolicy, log logging.Logger) (*NATSBus, error) {
	b := &NATSBus{
		log:      log,
		messages: make(chan Message, messageBuffer),
		queues:   make(map[string]*queuePipe, len(specs)),
	}

	for _, spec := range specs {
		pipe, err := b.dialQueue(ctx, spec, policy)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.queues[spec.Name] = pipe
	}

	return b, nil
}

func (b *NATSBus) dialQueue(ctx context.Context, spec QueueSpec, policy RetryPolicy) (*queuePipe, error) {
	nc, err := b.dialRetry(ctx, spec, policy)
	if err != nil {
		return nil, err
	}

	pipe := &queuePipe{spec: spec, nc: nc}

	if spec.RequireAck {
		if err := b.armJetStream(ctx, pipe); err != nil {
			nc.Close()
			return nil, err
		}
		return pipe, nil
	}

	if spec.Consume {
		sub, err := nc.Subscribe(spec.Name, func(msg *nats.Msg) {
			b.messages <- Message{Queue: spec.Name, Data: msg.Data}
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to subscribe to %q: %w", spec.Name, err)
		}
		pipe.sub = sub
		b.log.Debug(ctx, "subscribed", "queue", spec.Name)
	}

	return pipe, nil
}

// dialRetry connects to the queue's broker, waiting policy.Delay between
// consecutive failures.
func (b *NATSBus) dialRetry(ctx context.Context, spec QueueSpec, policy RetryPolicy) (*nats.Conn, error) {
	for attempt := 0; ; attempt++ {
		nc, err := nats.Connect(spec.URL,
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				b.log.Warn(context.Background(), "broker connection lost", "queue", spec.Name, "error", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				b.log.Info(context.Background(), "broker connection re-established", "queue", spec.Name)
			}),
		)
		if err == nil {
			b.log.Debug(ctx, "broker connected", "queue", spec.Name, "url", spec.URL, "attempts", attempt+1)
			return nc, nil
		}

		if policy.Exhausted(attempt + 1) {
			return nil, fmt.Errorf("failed to connect to %q after %d attempts: %w", spec.Name, attempt+1, err)
		}

		b.log.Warn(ctx, "broker dial failed, retrying", "queue", spec.Name, "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(policy.Delay(attempt)):
		}
	}
}

// armJetStream sets up acknowledged delivery: a work-queue stream plus a
// durable consumer with explicit acks.
func (b *NATSBus) armJetStream(ctx context.Context, pipe *queuePipe) error {
	js, err := jetstream.New(pipe.nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}
	pipe.js = js

	streamName := strings.ToUpper(pipe.spec.Name)
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{pipe.spec.Name},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %q: %w", streamName, err)
	}

	if !pipe.spec.Consume {
		return nil
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:   pipe.spec.Name + "-consumer",
		AckPolicy: jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer for %q: %w", pipe.spec.Name, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		b.messages <- Message{
			Queue: pipe.spec.Name,
			Data:  msg.Data(),
			ack: func() {
				if err := msg.Ack(); err != nil {
					b.log.Warn(context.Background(), "ack failed", "queue", pipe.spec.Name, "error", err)
				}
			},
		}
	})
	if err != nil {
		return fmt.Errorf("failed to consume %q: %w", pipe.spec.Name, err)
	}
	pipe.cons = cc

	return nil
}

// Publish sends data to the named queue. Acknowledged queues publish through
// JetStream and wait for the server's persistence ack.
func (b *NATSBus) Publish(ctx context.Context, queue string, data []byte) error {
	pipe, ok := b.queues[queue]
	if !ok {
		return fmt.Errorf("unknown queue %q", queue)
	}

	if pipe.js != nil {
		if _, err := pipe.js.Publish(ctx, queue, data); err != nil {
			return fmt.Errorf("failed to publish to %q: %w", queue, err)
		}
		return nil
	}

	if err := pipe.nc.Publish(queue, data); err != nil {
		return fmt.Errorf("failed to publish to %q: %w", queue, err)
	}
	return nil
}

// Messages streams inbound messages from all consumed queues.
func (b *NATSBus) Messages() <-chan Message {
	return b.messages
}

// Close tears down every queue connection.
func (b *NATSBus) Close() error {
	for _, pipe := range b.queues {
		if pipe.cons != nil {
			pipe.cons.Stop()
		}
		if pipe.sub != nil {
			_ = pipe.sub.Unsubscribe()
		}
		pipe.nc.Close()
	}
	return nil
}
