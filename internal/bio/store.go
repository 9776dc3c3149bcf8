// Package bio stores the portfolio subject's biographical facts as a
// single JSON object on disk.
package bio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/tidwall/jsonc"
)

// Store is a file-backed JSON object. A missing file reads as an empty
// object. Hand-edited files may contain comments and trailing commas;
// the store always writes plain indented JSON.
//
// Writes from one process are serialized; concurrent writers in other
// processes are last-write-wins.
type Store struct {
	path string
	mu   sync.RWMutex
}

// MergeResult is the acknowledgement returned by Merge.
type MergeResult struct {
	OK          bool     `json:"ok"`
	UpdatedKeys []string `json:"updated_keys"`
}

// NewStore returns a store backed by path. The file need not exist.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Get returns the whole document when keys is empty. Otherwise it
// returns exactly the requested keys, with nil for keys not present.
func (s *Store) Get(keys []string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return doc, nil
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = doc[k]
	}
	return out, nil
}

// Merge shallow-merges update into the document: each top-level key in
// update replaces the stored value. Nested objects are replaced, not
// merged. An empty update is a no-op that still succeeds.
func (s *Store) Merge(update map[string]any) (*MergeResult, error) {
	keys := slices.Sorted(maps.Keys(update))
	if len(update) == 0 {
		return &MergeResult{OK: true, UpdatedKeys: []string{}}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	maps.Copy(doc, update)
	if err := s.write(doc); err != nil {
		return nil, err
	}
	return &MergeResult{OK: true, UpdatedKeys: keys}, nil
}

func (s *Store) read() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bio: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, fmt.Errorf("parse bio: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// write replaces the file atomically so readers never see a partial
// document.
func (s *Store) write(doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bio: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bio dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".bio-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write bio: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod bio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close bio: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace bio: %w", err)
	}
	return nil
}
