package counter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavelworks/gavel/internal/common"
)

func TestProvisionAndIncrement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Provision(ctx, "a1"))

	prev, err := s.CompareAndIncrement(ctx, "a1", 0, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(0), prev)

	prev, err = s.CompareAndIncrement(ctx, "a1", 500, 250)
	require.NoError(t, err)
	assert.Equal(t, int64(500), prev)

	v, ok := s.Value("a1")
	require.True(t, ok)
	assert.Equal(t, int64(750), v)
}

func TestProvisionExistingKeyConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Provision(ctx, "a1"))
	err := s.Provision(ctx, "a1")
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestIncrementMissingKey(t *testing.T) {
	t.Parallel()

	_, err := NewMemoryStore().CompareAndIncrement(context.Background(), "nope", 0, 1)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestIncrementStaleExpectation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Provision(ctx, "a1"))

	_, err := s.CompareAndIncrement(ctx, "a1", 100, 1)
	assert.ErrorIs(t, err, common.ErrConflict)
}

// Exactly one of N concurrent increments at the same expected value may win;
// the rest observe a conflict.
func TestConcurrentIncrementsSingleWinner(t *testing.T) {
	t.Parallel()

	const attempts = 100

	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Provision(ctx, "a1"))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CompareAndIncrement(ctx, "a1", 0, 1000)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, common.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, conflicts)

	v, _ := s.Value("a1")
	assert.Equal(t, int64(1000), v)
}
