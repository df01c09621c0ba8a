package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("connection refused")

	transient := Transient("submit", base)
	require.True(t, IsTransient(transient))
	require.True(t, IsTransient(fmt.Errorf("wrapped: %w", transient)))
	require.ErrorIs(t, transient, base)
	require.Contains(t, transient.Error(), "transient")

	permanent := Permanent("submit", base)
	require.False(t, IsTransient(permanent))
	require.ErrorIs(t, permanent, base)

	require.False(t, IsTransient(base))
	require.False(t, IsTransient(nil))
}
