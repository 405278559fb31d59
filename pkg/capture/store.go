package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store owns the capture snapshot and the file it is persisted to.
// All methods are safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	snap *Snapshot
}

// NewStore creates a store that persists snap to path. A nil snap starts an
// empty capture stamped with the current time.
func NewStore(path string, snap *Snapshot) *Store {
	if snap == nil {
		snap = NewSnapshot("", time.Now())
	}
	if snap.Requests == nil {
		snap.Requests = make([]RequestRecord, 0)
	}
	return &Store{path: path, snap: snap}
}

// Path returns the capture file path.
func (s *Store) Path() string {
	return s.path
}

// Record inserts or overwrites the summary for key under category.
func (s *Store) Record(category Category, key string, summary EndpointSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Endpoints.Ensure(category).Set(key, summary)
}

// Append adds rec to the raw request log.
func (s *Store) Append(rec RequestRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Requests = append(s.snap.Requests, rec)
}

// WithAuth calls fn with the stored auth info, which fn may modify.
func (s *Store) WithAuth(fn func(*AuthInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap.Auth)
}

// Len returns the number of recorded requests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snap.Requests)
}

// Snapshot returns a deep copy of the current capture.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Persist writes the whole capture to the store's path. The file is replaced
// atomically, so readers never see a partial document.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := MarshalSnapshot(s.snap)
	if err != nil {
		return &PersistError{Path: s.path, Err: err}
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return &PersistError{Path: s.path, Err: err}
	}
	return nil
}

// Clone returns a deep copy of the snapshot. Decoded bodies are shared since
// they are never modified after extraction.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		CapturedAt: s.CapturedAt,
		BaseURL:    s.BaseURL,
		Endpoints:  s.Endpoints.Clone(),
		Auth: AuthInfo{
			Method:      clonePtr(s.Auth.Method),
			TokenHeader: clonePtr(s.Auth.TokenHeader),
			SampleToken: clonePtr(s.Auth.SampleToken),
		},
		Requests: make([]RequestRecord, len(s.Requests)),
	}
	for i, rec := range s.Requests {
		rec.QueryParams = maps.Clone(rec.QueryParams)
		rec.RequestHeaders = maps.Clone(rec.RequestHeaders)
		rec.ResponseHeaders = maps.Clone(rec.ResponseHeaders)
		out.Requests[i] = rec
	}
	return out
}

// MarshalSnapshot renders snap in the capture file format: two-space
// indented JSON without HTML escaping, ending in a newline.
func MarshalSnapshot(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return nil, fmt.Errorf("failed to encode capture: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseSnapshot validates and decodes capture file contents.
// Numbers inside bodies are kept as json.Number.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var snap Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCapture, err)
	}
	if snap.Requests == nil {
		snap.Requests = make([]RequestRecord, 0)
	}
	return &snap, nil
}

// Load reads the capture file at path. A missing file yields ErrNotFound.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read capture %s: %w", path, err)
	}

	snap, err := ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
