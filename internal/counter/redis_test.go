package counter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gavelworks/gavel/internal/common"
)

func TestClassifyScriptErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"absent key", errors.New("absent"), common.ErrNotFound},
		{"mismatched value", errors.New("mismatch"), common.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyScriptErr("a1", tt.err), tt.want)
		})
	}

	infra := errors.New("connection reset")
	got := classifyScriptErr("a1", infra)
	assert.ErrorIs(t, got, infra)
	assert.NotErrorIs(t, got, common.ErrNotFound)
	assert.NotErrorIs(t, got, common.ErrConflict)
}
