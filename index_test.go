package attic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexInterningStartsAtOne(t *testing.T) {
	idx := NewIndex(func(s string) string { return s })
	id1 := idx.IndexOf("a")
	id2 := idx.IndexOf("b")
	require.Equal(t, int32(1), id1)
	require.Equal(t, int32(2), id2)
}

func TestIndexInterningDeduplicates(t *testing.T) {
	idx := NewIndex(func(s string) string { return s })
	first := idx.IndexOf("hello")
	second := idx.IndexOf("hello")
	require.Equal(t, first, second)
	require.Equal(t, 1, idx.Size())
}

func TestIndexValueOfRoundTrips(t *testing.T) {
	idx := NewIndex(func(s string) string { return s })
	idx.IndexOf("x")
	idx.IndexOf("y")
	v, err := idx.ValueOf(2)
	require.NoError(t, err)
	require.Equal(t, "y", v)
}

func TestIndexValueOfOutOfRange(t *testing.T) {
	idx := NewIndex(func(s string) string { return s })
	idx.IndexOf("only")
	_, err := idx.ValueOf(0)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = idx.ValueOf(2)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestIndexFromPreservesPositions(t *testing.T) {
	idx := NewIndexFrom([]string{"a", "b", "c"}, func(s string) string { return s })
	v, ok := idx.TryValueOf(3)
	require.True(t, ok)
	require.Equal(t, "c", v)
	require.Equal(t, int32(2), idx.IndexOf("b"))
}
