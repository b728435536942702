package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	plain := New(ErrKindTimeout, "schema fetch timed out")
	assert.Equal(t, "[timeout] schema fetch timed out", plain.Error())

	cause := errors.New("dial tcp: i/o timeout")
	wrapped := Wrap(ErrKindConnectionFailed, "cannot reach backend", cause)
	assert.Equal(t, "[connection_failed] cannot reach backend: dial tcp: i/o timeout", wrapped.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	wrapped := Wrap(ErrKindQueryFailed, "query failed", cause)

	assert.ErrorIs(t, wrapped, cause)
	assert.Nil(t, errors.Unwrap(New(ErrKindUnknown, "no cause")))
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		predicate func(error) bool
		want      bool
	}{
		{"not found", New(ErrKindNotFound, "x"), IsNotFound, true},
		{"timeout", New(ErrKindTimeout, "x"), IsTimeout, true},
		{"connection failed", New(ErrKindConnectionFailed, "x"), IsConnectionFailed, true},
		{"query failed", New(ErrKindQueryFailed, "x"), IsQueryFailed, true},
		{"invalid input", New(ErrKindInvalidInput, "x"), IsInvalidInput, true},
		{"pool exhausted", New(ErrKindPoolExhausted, "x"), IsPoolExhausted, true},
		{"unavailable", New(ErrKindUnavailable, "x"), IsUnavailable, true},
		{"wrong kind", New(ErrKindTimeout, "x"), IsNotFound, false},
		{"plain error", errors.New("x"), IsTimeout, false},
		{"nil", nil, IsNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.predicate(tt.err))
		})
	}
}

func TestPredicates_WrappedChain(t *testing.T) {
	inner := New(ErrKindTimeout, "acquire timed out")
	outer := fmt.Errorf("discovering schema: %w", inner)

	require.True(t, IsTimeout(outer), "predicates must see through fmt.Errorf wrapping")
	assert.False(t, IsNotFound(outer))
}

func TestErrKind_String(t *testing.T) {
	assert.Equal(t, "unknown", ErrKindUnknown.String())
	assert.Equal(t, "pool_exhausted", ErrKindPoolExhausted.String())
	assert.Equal(t, "unknown", ErrKind(99).String())
}
