package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKinds(t *testing.T) {
	require := require.New(t)

	errBroken := New(Chain, "broken link")
	errUnknown := New(State, "unknown block")

	wrapped := fmt.Errorf("tau2 #4: %w", errBroken)

	require.True(errors.Is(wrapped, Chain))
	require.True(errors.Is(wrapped, errBroken))
	require.False(errors.Is(wrapped, State))
	require.False(errors.Is(wrapped, errUnknown))

	require.Equal(Chain, KindOf(wrapped))
	require.Equal(State, KindOf(errUnknown))
	require.Equal(Kind(""), KindOf(errors.New("plain")))
	require.Equal(Kind(""), KindOf(nil))

	require.False(IsFatal(wrapped))
	require.True(IsFatal(fmt.Errorf("load: %w", New(Corruption, "bad root"))))
	require.Equal("broken link", errBroken.Error())
}
