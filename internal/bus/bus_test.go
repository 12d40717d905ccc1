package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyLinearDelay(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{Base: 500 * time.Millisecond, Step: 1500 * time.Millisecond}

	assert.Equal(t, 500*time.Millisecond, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 3500*time.Millisecond, p.Delay(2))
}

func TestRetryPolicyBounds(t *testing.T) {
	t.Parallel()

	unbounded := RetryPolicy{}
	assert.False(t, unbounded.Exhausted(1_000_000))

	bounded := RetryPolicy{MaxAttempts: 3}
	assert.False(t, bounded.Exhausted(2))
	assert.True(t, bounded.Exhausted(3))
}

func TestLocalExchangeFanOut(t *testing.T) {
	t.Parallel()

	ex := NewLocalExchange()
	defer ex.Close()

	producer := ex.Endpoint()
	first := ex.Endpoint("bigpipe")
	second := ex.Endpoint("bigpipe")
	other := ex.Endpoint("smallpipe")

	require.NoError(t, producer.Publish(context.Background(), "bigpipe", []byte("hello")))

	for _, ep := range []*LocalEndpoint{first, second} {
		select {
		case msg := <-ep.Messages():
			assert.Equal(t, "bigpipe", msg.Queue)
			assert.Equal(t, []byte("hello"), msg.Data)
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}

	select {
	case msg := <-other.Messages():
		t.Fatalf("unexpected delivery on smallpipe endpoint: %+v", msg)
	default:
	}
}

func TestLocalExchangeStalledConsumerDoesNotBlockPublish(t *testing.T) {
	t.Parallel()

	ex := NewLocalExchange()
	producer := ex.Endpoint()
	ex.Endpoint("q") // never read

	// Overfill the stalled endpoint's buffer; every publish must return.
	for i := 0; i < messageBuffer+10; i++ {
		require.NoError(t, producer.Publish(context.Background(), "q", []byte("x")))
	}

	// And Close must not deadlock against a stuck publisher.
	done := make(chan struct{})
	go func() {
		ex.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a stalled consumer")
	}
}

func TestLocalExchangeClosedRejectsPublish(t *testing.T) {
	t.Parallel()

	ex := NewLocalExchange()
	ep := ex.Endpoint("q")
	ex.Close()

	assert.Error(t, ep.Publish(context.Background(), "q", []byte("x")))

	_, open := <-ep.Messages()
	assert.False(t, open)
}

func TestMessageAckNilSafe(t *testing.T) {
	t.Parallel()

	// at-most-once messages carry no ack; calling Ack must be harmless.
	Message{Queue: "q", Data: []byte("x")}.Ack()
}
