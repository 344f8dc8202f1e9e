package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing_AppendAndSnapshot(t *testing.T) {
	r := New(16)
	r.Append([]byte("hello"))

	data, offset := r.SnapshotSince(0)
	require.Equal(t, "hello", string(data))
	require.EqualValues(t, 5, offset)
	require.EqualValues(t, 5, r.TotalWritten())
}

func TestRing_SnapshotSinceIsIncremental(t *testing.T) {
	r := New(64)
	r.Append([]byte("abc"))
	_, offset := r.SnapshotSince(0)

	r.Append([]byte("def"))
	data, newOffset := r.SnapshotSince(offset)

	require.Equal(t, "def", string(data))
	require.EqualValues(t, 6, newOffset)
}

func TestRing_OverflowDropsOldestAndClampsOffset(t *testing.T) {
	r := New(4)
	r.Append([]byte("ABCDE")) // capacity+1 bytes

	data, offset := r.SnapshotSince(0)
	require.Equal(t, "BCDE", string(data), "only the last `capacity` bytes survive")
	require.EqualValues(t, 5, offset)
}

func TestRing_ClampedOffsetNeverCorruptsState(t *testing.T) {
	r := New(4)
	for i := 0; i < 20; i++ {
		r.Append([]byte{byte('a' + i%26)})
	}

	// An offset far in the past must clamp to the oldest retained byte,
	// not panic or return garbage.
	data, offset := r.SnapshotSince(0)
	require.Len(t, data, 4)
	require.EqualValues(t, 20, offset)
}

func TestRing_SnapshotAtHeadReturnsEmpty(t *testing.T) {
	r := New(16)
	r.Append([]byte("xyz"))

	data, offset := r.SnapshotSince(3)
	require.Empty(t, data)
	require.EqualValues(t, 3, offset)
}

func TestRing_LenAndCapacity(t *testing.T) {
	r := New(8)
	require.Equal(t, 8, r.Capacity())
	require.Equal(t, 0, r.Len())

	r.Append([]byte("abcdefghij"))
	require.Equal(t, 8, r.Len(), "length is bounded by capacity")
}
