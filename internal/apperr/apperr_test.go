package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Kind("")},
		{"tagged", New(KindNotFound, "document not found"), KindNotFound},
		{"wrapped tagged", fmt.Errorf("outer: %w", New(KindTimeout, "scan deadline exceeded")), KindTimeout},
		{"untagged", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindUnavailable, cause, "storage unreachable")

	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsKind(err, KindUnavailable))
	// Safe message must not include the cause text.
	assert.Equal(t, "storage unreachable", Message(err))
	// Full error text keeps it for logs.
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMessageUntagged(t *testing.T) {
	assert.Equal(t, "internal error", Message(errors.New("pq: duplicate key")))
}
