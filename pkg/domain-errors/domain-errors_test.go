package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(CodeNotFound, "session missing")
	require.Error(t, err)
	assert.Equal(t, "session missing", err.Error())
	assert.True(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(err, CodeStateConflict))
}

func TestWrapPreservesOriginalCode(t *testing.T) {
	inner := New(CodeSessionExpired, "timer elapsed")
	wrapped := Wrap(inner, CodeInternal, "revoke failed")

	assert.True(t, HasCode(wrapped, CodeSessionExpired),
		"wrapping must preserve the inner domain code")
	assert.Equal(t, "revoke failed", wrapped.Error())
	assert.True(t, errors.Is(wrapped, inner.(*Error)))
}

func TestWrapPlainError(t *testing.T) {
	inner := fmt.Errorf("dial tcp: connection refused")
	wrapped := Wrap(inner, CodeFetchTimeout, "content store unreachable")

	assert.True(t, HasCode(wrapped, CodeFetchTimeout))
	assert.ErrorIs(t, wrapped, inner)
}

func TestErrorMessageFallsBackToCode(t *testing.T) {
	err := &Error{Code: CodeStructuralProof}
	assert.Equal(t, string(CodeStructuralProof), err.Error())
}

func TestHasCodeOnNonDomainError(t *testing.T) {
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	assert.False(t, HasCode(nil, CodeInternal))
}
