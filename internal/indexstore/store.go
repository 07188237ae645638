// Package indexstore persists one embedding index per flavor as an
// append-only log of immutable segment files tied together by a manifest.
// Appends never rewrite earlier segments; vectors and their metadata live in
// the same segment so their lengths cannot drift apart.
package indexstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// Flavors.
const (
	Granular = "granular"
	Context  = "context"
)

var (
	ErrIndexNotFound  = errors.New("index not found")
	ErrCorruptSegment = errors.New("corrupt segment")
	ErrDimension      = errors.New("vector dimension mismatch")
	ErrReadOnly       = errors.New("index store opened read-only")
)

// DefaultMaxSegments is the live segment count above which Compact merges.
const DefaultMaxSegments = 16

// Store is the single writer for one flavor's directory. Readers in other
// processes only need Load.
type Store struct {
	dir         string
	flavor      string
	maxSegments int
	readOnly    bool
	mu          sync.Mutex
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxSegments sets the compaction threshold.
func WithMaxSegments(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxSegments = n
		}
	}
}

// ReadOnly opens the store for Load only. Leftover files are not touched,
// since they may belong to a write in progress in another process.
func ReadOnly() Option {
	return func(s *Store) {
		s.readOnly = true
	}
}

// Open prepares <dataDir>/<flavor>, removing leftovers of interrupted
// writes: temp files and segments the manifest does not list.
func Open(dataDir, flavor string, opts ...Option) (*Store, error) {
	dir := filepath.Join(dataDir, flavor)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	s := &Store{
		dir:         dir,
		flavor:      flavor,
		maxSegments: DefaultMaxSegments,
		logger:      slog.Default().With("component", "indexstore", "flavor", flavor),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.readOnly {
		return s, nil
	}
	if err := s.cleanup(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir is the flavor directory.
func (s *Store) Dir() string { return s.dir }

// Flavor is the index flavor name.
func (s *Store) Flavor() string { return s.flavor }

// ManifestPath is the file to watch for changes.
func (s *Store) ManifestPath() string {
	return filepath.Join(s.dir, ManifestName)
}

func (s *Store) cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := make(map[string]struct{})
	m, err := readManifest(s.dir)
	switch {
	case err == nil:
		for _, seg := range m.Segments {
			live[seg.Name] = struct{}{}
		}
	case !errors.Is(err, ErrIndexNotFound):
		return err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("listing index directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		_, isLive := live[name]
		orphan := strings.HasPrefix(name, "seg_") && strings.HasSuffix(name, ".sidx") && !isLive
		if strings.HasSuffix(name, ".tmp") || orphan {
			s.logger.Warn("removing leftover index file", "file", name)
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
				return fmt.Errorf("removing %s: %w", name, err)
			}
		}
	}
	return nil
}

// Manifest returns the current manifest or ErrIndexNotFound.
func (s *Store) Manifest() (*Manifest, error) {
	return readManifest(s.dir)
}

// Generation is bumped by every successful write; 0 means no index yet.
func (s *Store) Generation() uint64 {
	m, err := readManifest(s.dir)
	if err != nil {
		return 0
	}
	return m.Generation
}

// WorkIDs lists the works that have rows in the index, ascending.
func (s *Store) WorkIDs() ([]int64, error) {
	m, err := readManifest(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, seg := range m.Segments {
		ids = append(ids, seg.WorkIDs...)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func validate(dim int, records []Record) error {
	for i, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: record %d (work %d) has %d, index has %d", ErrDimension, i, r.WorkID, len(r.Vector), dim)
		}
	}
	return nil
}

func workIDs(records []Record) []int64 {
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.WorkID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func segmentName(seq uint64) string {
	return fmt.Sprintf("seg_%08d.sidx", seq)
}

// Append writes records as one new segment and publishes it in the
// manifest. Empty input touches nothing. A record with the wrong dimension
// rejects the whole write.
func (s *Store) Append(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if s.readOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := readManifest(s.dir)
	if errors.Is(err, ErrIndexNotFound) {
		m = &Manifest{Flavor: s.flavor, NextSeq: 1}
	} else if err != nil {
		return err
	}
	if m.Dim == 0 {
		m.Dim = len(records[0].Vector)
	}
	if m.Dim == 0 {
		return fmt.Errorf("%w: empty vectors", ErrDimension)
	}
	if err := validate(m.Dim, records); err != nil {
		return err
	}

	name := segmentName(m.NextSeq)
	if err := writeSegment(filepath.Join(s.dir, name), m.NextSeq, m.Dim, records); err != nil {
		return err
	}
	m.Segments = append(m.Segments, SegmentRef{
		Name:      name,
		Rows:      len(records),
		WorkIDs:   workIDs(records),
		CreatedAt: time.Now().UTC(),
	})
	m.NextSeq++
	m.Generation++
	if err := writeManifest(s.dir, m); err != nil {
		os.Remove(filepath.Join(s.dir, name))
		return err
	}
	s.logger.Info("appended segment", "segment", name, "rows", len(records), "total_rows", m.Rows(), "generation", m.Generation)
	return nil
}

// Replace swaps the whole index for records, then deletes the segments it
// superseded. An empty records slice leaves an empty index.
func (s *Store) Replace(records []Record) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(records)
}

func (s *Store) replaceLocked(records []Record) error {
	old, err := readManifest(s.dir)
	if errors.Is(err, ErrIndexNotFound) {
		old = &Manifest{Flavor: s.flavor, NextSeq: 1}
	} else if err != nil {
		return err
	}
	m := &Manifest{
		Flavor:     s.flavor,
		NextSeq:    old.NextSeq,
		Generation: old.Generation + 1,
		Segments:   []SegmentRef{},
	}
	if len(records) > 0 {
		m.Dim = len(records[0].Vector)
		if m.Dim == 0 {
			return fmt.Errorf("%w: empty vectors", ErrDimension)
		}
		if err := validate(m.Dim, records); err != nil {
			return err
		}
		name := segmentName(m.NextSeq)
		if err := writeSegment(filepath.Join(s.dir, name), m.NextSeq, m.Dim, records); err != nil {
			return err
		}
		m.Segments = append(m.Segments, SegmentRef{
			Name:      name,
			Rows:      len(records),
			WorkIDs:   workIDs(records),
			CreatedAt: time.Now().UTC(),
		})
		m.NextSeq++
	}
	if err := writeManifest(s.dir, m); err != nil {
		return err
	}
	for _, seg := range old.Segments {
		if err := os.Remove(filepath.Join(s.dir, seg.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("removing superseded segment", "segment", seg.Name, "error", err)
		}
	}
	s.logger.Info("replaced index", "rows", len(records), "superseded_segments", len(old.Segments), "generation", m.Generation)
	return nil
}

// Compact merges all live segments into one when there are more than the
// configured maximum. It reports whether a merge happened.
func (s *Store) Compact() (bool, error) {
	if s.readOnly {
		return false, ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := readManifest(s.dir)
	if err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			return false, nil
		}
		return false, err
	}
	if len(m.Segments) <= s.maxSegments {
		return false, nil
	}
	snap, err := s.load(m)
	if err != nil {
		return false, fmt.Errorf("loading segments for compaction: %w", err)
	}
	if err := s.replaceLocked(snap.Records()); err != nil {
		return false, fmt.Errorf("writing compacted segment: %w", err)
	}
	s.logger.Info("compacted index", "segments", len(m.Segments), "rows", snap.Len())
	return true, nil
}

// Load reads every live segment into a Snapshot. A concurrent Replace may
// delete segments between reading the manifest and the files, so Load
// retries with a fresh manifest a few times.
func (s *Store) Load() (*Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		m, err := readManifest(s.dir)
		if err != nil {
			return nil, err
		}
		snap, err := s.load(m)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Store) load(m *Manifest) (*Snapshot, error) {
	rows := m.Rows()
	vectors := make([]float32, 0, rows*m.Dim)
	metas := make([]Meta, 0, rows)
	for _, ref := range m.Segments {
		seg, err := readSegment(filepath.Join(s.dir, ref.Name))
		if err != nil {
			return nil, err
		}
		if int(seg.header.Dim) != m.Dim {
			return nil, fmt.Errorf("%w: segment %s has dim %d, manifest %d", ErrCorruptSegment, ref.Name, seg.header.Dim, m.Dim)
		}
		if len(seg.metas) != ref.Rows {
			return nil, fmt.Errorf("%w: segment %s has %d rows, manifest %d", ErrCorruptSegment, ref.Name, len(seg.metas), ref.Rows)
		}
		vectors = append(vectors, seg.vectors...)
		metas = append(metas, seg.metas...)
	}
	return NewSnapshot(s.flavor, m.Dim, m.Generation, vectors, metas), nil
}
