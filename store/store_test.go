package store

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SegmentedStore {
	t.Helper()
	s, err := NewSegmentedStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func page(fill byte, n int64) []byte {
	return bytes.Repeat([]byte{fill}, int(n))
}

func TestWritePageReadRangeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	const pageBytes = 4096

	require.NoError(t, s.WritePage("m", "v", 0, 0, pageBytes, page(0xAA, pageBytes)))
	require.NoError(t, s.WritePage("m", "v", 0, 1, pageBytes, page(0xBB, pageBytes)))
	require.NoError(t, s.WritePage("m", "v", 0, 2, pageBytes, page(0xCC, pageBytes)))

	got, err := s.ReadRange("m", "v", 0, 0, 2, pageBytes)
	require.NoError(t, err)
	require.Len(t, got, 3*pageBytes)
	assert.Equal(t, page(0xAA, pageBytes), got[:pageBytes])
	assert.Equal(t, page(0xBB, pageBytes), got[pageBytes:2*pageBytes])
	assert.Equal(t, page(0xCC, pageBytes), got[2*pageBytes:])
}

func TestWritePage_LengthMismatch(t *testing.T) {
	s := newTestStore(t)
	err := s.WritePage("m", "v", 0, 0, 4096, page(0x00, 100))
	require.Error(t, err)
}

func TestWritePage_SparseOffsets(t *testing.T) {
	// Writing page 3 first grows the segment; earlier pages read as zeros.
	s := newTestStore(t)
	const pageBytes = 1024
	require.NoError(t, s.WritePage("m", "v", 2, 3, pageBytes, page(0xDD, pageBytes)))

	got, err := s.ReadRange("m", "v", 2, 0, 3, pageBytes)
	require.NoError(t, err)
	assert.Equal(t, page(0x00, pageBytes), got[:pageBytes])
	assert.Equal(t, page(0xDD, pageBytes), got[3*pageBytes:])
}

func TestReadRange_ShortSegment(t *testing.T) {
	s := newTestStore(t)
	const pageBytes = 4096
	require.NoError(t, s.WritePage("m", "v", 0, 0, pageBytes, page(0x11, pageBytes)))

	_, err := s.ReadRange("m", "v", 0, 0, 5, pageBytes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageShort))
}

func TestReadRange_InvertedRangeIsEmpty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.ReadRange("m", "v", 0, 5, 2, 4096)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadRangeInto(t *testing.T) {
	s := newTestStore(t)
	const pageBytes = 2048
	require.NoError(t, s.WritePage("m", "v", 1, 0, pageBytes, page(0x42, pageBytes)))
	require.NoError(t, s.WritePage("m", "v", 1, 1, pageBytes, page(0x43, pageBytes)))

	buf := make([]byte, 2*pageBytes)
	n, err := s.ReadRangeInto("m", "v", 1, 0, 1, pageBytes, buf)
	require.NoError(t, err)
	assert.Equal(t, int64(2*pageBytes), n)
	assert.Equal(t, page(0x42, pageBytes), buf[:pageBytes])
	assert.Equal(t, page(0x43, pageBytes), buf[pageBytes:])
}

func TestReadRangeInto_BufferTooSmall(t *testing.T) {
	s := newTestStore(t)
	const pageBytes = 2048
	require.NoError(t, s.WritePage("m", "v", 1, 0, pageBytes, page(0x42, pageBytes)))

	buf := make([]byte, pageBytes-1)
	_, err := s.ReadRangeInto("m", "v", 1, 0, 0, pageBytes, buf)
	require.Error(t, err)
}

func TestReadRangeInto_InvertedRange(t *testing.T) {
	s := newTestStore(t)
	n, err := s.ReadRangeInto("m", "v", 0, 9, 1, 4096, make([]byte, 1))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSegmentPathLayout(t *testing.T) {
	s := newTestStore(t)
	p := s.SegmentPath("m70b", "v1", 12)
	assert.Contains(t, p, "m70b")
	assert.Contains(t, p, "v1")
	assert.Contains(t, p, "layer_12.seg")
}
