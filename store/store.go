// Package store provides the segmented page store: one file of fixed-size
// pages per (model_id, model_version, layer), read with single coalesced
// positioned I/Os.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrStorageShort marks reads against a segment shorter than the requested
// range. The failing row is reported; sibling rows proceed.
var ErrStorageShort = errors.New("store: segment shorter than requested range")

// SegmentedStore maps (model_id, model_version, layer) to a segment file
// under its root. Page p occupies bytes [p*page_bytes, (p+1)*page_bytes);
// there are no headers and no per-page metadata.
type SegmentedStore struct {
	root string
}

// NewSegmentedStore creates the root directory if needed.
func NewSegmentedStore(root string) (*SegmentedStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create segment root %s", root)
	}
	return &SegmentedStore{root: root}, nil
}

// Root returns the segment root directory.
func (s *SegmentedStore) Root() string { return s.root }

// SegmentPath returns the file backing one (model, version, layer).
func (s *SegmentedStore) SegmentPath(modelID, modelVersion string, layer int) string {
	return filepath.Join(s.root, modelID, modelVersion, fmt.Sprintf("layer_%d.seg", layer))
}

// EnsureSegment creates the segment file and its parents when absent.
func (s *SegmentedStore) EnsureSegment(modelID, modelVersion string, layer int) error {
	p := s.SegmentPath(modelID, modelVersion, layer)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrapf(err, "create segment dir for %s", p)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create segment %s", p)
	}
	return f.Close()
}

// WritePage writes one page at page_id*page_bytes, growing the segment as
// needed. len(data) must equal pageBytes.
func (s *SegmentedStore) WritePage(modelID, modelVersion string, layer int, pageID, pageBytes int64, data []byte) error {
	if int64(len(data)) != pageBytes {
		return errors.Errorf("store: data length %d must equal page_bytes %d", len(data), pageBytes)
	}
	if err := s.EnsureSegment(modelID, modelVersion, layer); err != nil {
		return err
	}
	p := s.SegmentPath(modelID, modelVersion, layer)
	f, err := os.OpenFile(p, os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open segment %s", p)
	}
	defer f.Close()
	if _, err := f.WriteAt(data, pageID*pageBytes); err != nil {
		return errors.Wrapf(err, "write page %d to %s", pageID, p)
	}
	return nil
}

// ReadRange reads the inclusive page range [startPID, endPID] as one
// coalesced I/O and returns exactly (endPID-startPID+1)*pageBytes bytes.
// An inverted range returns an empty slice.
func (s *SegmentedStore) ReadRange(modelID, modelVersion string, layer int, startPID, endPID, pageBytes int64) ([]byte, error) {
	if endPID < startPID {
		return nil, nil
	}
	size := (endPID - startPID + 1) * pageBytes
	buf := make([]byte, size)
	if _, err := s.readAt(modelID, modelVersion, layer, startPID, pageBytes, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadRangeInto reads the range directly into the caller-owned buffer and
// returns the byte count. The buffer must hold the full range.
func (s *SegmentedStore) ReadRangeInto(modelID, modelVersion string, layer int, startPID, endPID, pageBytes int64, out []byte) (int64, error) {
	if endPID < startPID {
		return 0, nil
	}
	size := (endPID - startPID + 1) * pageBytes
	if int64(len(out)) < size {
		return 0, errors.Errorf("store: out buffer too small: need %d, have %d", size, len(out))
	}
	return s.readAt(modelID, modelVersion, layer, startPID, pageBytes, out[:size])
}

// readAt performs the single positioned read shared by ReadRange and
// ReadRangeInto, verifying the segment covers the full requested span.
func (s *SegmentedStore) readAt(modelID, modelVersion string, layer int, startPID, pageBytes int64, buf []byte) (int64, error) {
	if err := s.EnsureSegment(modelID, modelVersion, layer); err != nil {
		return 0, err
	}
	p := s.SegmentPath(modelID, modelVersion, layer)
	f, err := os.Open(p)
	if err != nil {
		return 0, errors.Wrapf(err, "open segment %s", p)
	}
	defer f.Close()

	off := startPID * pageBytes
	size := int64(len(buf))
	st, err := f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat segment %s", p)
	}
	if off+size > st.Size() {
		return 0, errors.Wrapf(ErrStorageShort,
			"need %d bytes, have %d (layer=%d start=%d)", off+size, st.Size(), layer, startPID)
	}
	n, err := f.ReadAt(buf, off)
	if err != nil {
		return int64(n), errors.Wrapf(err, "read %d bytes at %d from %s", size, off, p)
	}
	if int64(n) != size {
		return int64(n), errors.Wrapf(ErrStorageShort, "short read: expected %d bytes, got %d", size, n)
	}
	return int64(n), nil
}
