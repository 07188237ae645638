package indexstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestName is the file listing a flavor's live segments.
const ManifestName = "MANIFEST"

// SegmentRef describes one live segment.
type SegmentRef struct {
	Name      string    `json:"name"`
	Rows      int       `json:"rows"`
	WorkIDs   []int64   `json:"work_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// Manifest is the source of truth for which segments make up an index.
// Segment files it does not list are ignored.
type Manifest struct {
	Flavor     string       `json:"flavor"`
	Dim        int          `json:"dim"`
	NextSeq    uint64       `json:"next_seq"`
	Generation uint64       `json:"generation"`
	Segments   []SegmentRef `json:"segments"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Rows is the total row count over all live segments.
func (m *Manifest) Rows() int {
	n := 0
	for _, s := range m.Segments {
		n += s.Rows
	}
	return n
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// writeManifest replaces the manifest atomically via tmp file and rename.
func writeManifest(dir string, m *Manifest) error {
	m.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestName)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing manifest: %w", err)
	}
	f.Close()
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming manifest: %w", err)
	}
	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
