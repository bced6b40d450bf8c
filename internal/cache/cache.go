// Package cache persists synthesized narration clips and their timing
// metadata on disk so repeated renders of unchanged text never hit a vendor
// twice. A directory holds the audio files plus a cache.json index keyed by
// request fingerprint.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	indexFile    = "cache.json"
	indexVersion = 1
)

// ErrNotFound is returned when a fingerprint has no cache entry.
var ErrNotFound = errors.New("cache entry not found")

// WordBoundary is one transcribed word with its position in the clip and in
// the narration text.
type WordBoundary struct {
	Word       string `json:"word"`
	StartMS    int64  `json:"start_ms"`
	EndMS      int64  `json:"end_ms"`
	TextOffset int    `json:"text_offset"`
}

// Entry is one cached narration clip. Audio fields are basenames relative to
// the store directory.
type Entry struct {
	Hash           string          `json:"hash"`
	Service        string          `json:"service"`
	InputText      string          `json:"input_text"`
	StrippedText   string          `json:"stripped_text"`
	InputData      json.RawMessage `json:"input_data"`
	OriginalAudio  string          `json:"original_audio"`
	FinalAudio     string          `json:"final_audio"`
	DurationMS     int64           `json:"duration_ms"`
	SampleRate     int             `json:"sample_rate"`
	Transcript     string          `json:"transcript,omitempty"`
	WordBoundaries []WordBoundary  `json:"word_boundaries,omitempty"`
	Size           int64           `json:"size"`
	CreatedAt      time.Time       `json:"created_at"`
	LastUsedAt     time.Time       `json:"last_used_at"`
}

type index struct {
	Version int               `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}

// Stats summarizes the store contents.
type Stats struct {
	Dir       string
	Count     int
	TotalSize int64
}

// Store is a disk-backed narration cache. All methods are safe for
// concurrent use within one process; the index is written through on every
// mutation.
type Store struct {
	dir string

	mu  sync.Mutex
	idx index
}

// Open creates dir if needed, loads the index, drops entries whose audio
// files have vanished, and sweeps temp files left by interrupted writes.
// Unreferenced files are otherwise left alone; the directory may hold more
// than the cache.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	s := &Store{
		dir: dir,
		idx: index{Version: indexVersion, Entries: map[string]*Entry{}},
	}

	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("reading cache index: %w", err)
	}

	if err := json.Unmarshal(data, &s.idx); err != nil || s.idx.Version != indexVersion {
		// Unreadable or foreign index: start fresh rather than guessing.
		s.idx = index{Version: indexVersion, Entries: map[string]*Entry{}}
	}
	if s.idx.Entries == nil {
		s.idx.Entries = map[string]*Entry{}
	}

	if s.validate() {
		if err := s.writeIndexLocked(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// validate drops index entries with missing audio and sweeps stale .tmp
// files. Reports whether the index changed.
func (s *Store) validate() bool {
	changed := false

	for hash, e := range s.idx.Entries {
		if e == nil || e.OriginalAudio == "" || !s.fileExists(e.OriginalAudio) {
			delete(s.idx.Entries, hash)
			changed = true
			continue
		}
		if e.FinalAudio != "" && e.FinalAudio != e.OriginalAudio && !s.fileExists(e.FinalAudio) {
			delete(s.idx.Entries, hash)
			changed = true
		}
	}

	names, err := os.ReadDir(s.dir)
	if err != nil {
		return changed
	}
	for _, d := range names {
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".tmp") {
			os.Remove(filepath.Join(s.dir, d.Name()))
		}
	}

	return changed
}

func (s *Store) fileExists(name string) bool {
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// AudioPath returns the absolute path for an audio basename in the store.
func (s *Store) AudioPath(name string) string {
	return filepath.Join(s.dir, name)
}

// WriteAudio writes audio bytes into the store under name, atomically.
func (s *Store) WriteAudio(name string, data []byte) error {
	tmp := filepath.Join(s.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing audio: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing audio: %w", err)
	}
	return nil
}

// Lookup returns the entry for hash and refreshes its last-used stamp.
func (s *Store) Lookup(hash string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.idx.Entries[hash]
	if !ok {
		return Entry{}, false
	}

	e.LastUsedAt = time.Now().UTC()
	// Best effort; a failed stamp write must not break a cache hit.
	_ = s.writeIndexLocked()

	return *e, true
}

// Store inserts or replaces the entry keyed by its Hash.
func (s *Store) Store(e Entry) error {
	if e.Hash == "" {
		return errors.New("entry has no hash")
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.LastUsedAt.IsZero() {
		e.LastUsedAt = now
	}
	if e.FinalAudio == "" {
		e.FinalAudio = e.OriginalAudio
	}
	if e.Size == 0 {
		e.Size = s.sizeOf(e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.idx.Entries[e.Hash] = &e
	return s.writeIndexLocked()
}

func (s *Store) sizeOf(e Entry) int64 {
	var total int64
	if fi, err := os.Stat(s.AudioPath(e.OriginalAudio)); err == nil {
		total += fi.Size()
	}
	if e.FinalAudio != "" && e.FinalAudio != e.OriginalAudio {
		if fi, err := os.Stat(s.AudioPath(e.FinalAudio)); err == nil {
			total += fi.Size()
		}
	}
	return total
}

// Remove deletes the entry and its audio files.
func (s *Store) Remove(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.idx.Entries[hash]
	if !ok {
		return ErrNotFound
	}

	s.removeFilesLocked(e)
	delete(s.idx.Entries, hash)
	return s.writeIndexLocked()
}

func (s *Store) removeFilesLocked(e *Entry) {
	if e.OriginalAudio != "" {
		os.Remove(s.AudioPath(e.OriginalAudio))
	}
	if e.FinalAudio != "" && e.FinalAudio != e.OriginalAudio {
		os.Remove(s.AudioPath(e.FinalAudio))
	}
}

// Clear removes every entry and audio file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, e := range s.idx.Entries {
		s.removeFilesLocked(e)
		delete(s.idx.Entries, hash)
	}
	return s.writeIndexLocked()
}

// Prune evicts least-recently-used entries until the total size is at most
// limit bytes. A non-positive limit is a no-op. Returns the bytes reclaimed.
func (s *Store) Prune(limit int64) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	order := make([]*Entry, 0, len(s.idx.Entries))
	for _, e := range s.idx.Entries {
		total += e.Size
		order = append(order, e)
	}
	if total <= limit {
		return 0, nil
	}

	sort.Slice(order, func(i, j int) bool {
		return order[i].LastUsedAt.Before(order[j].LastUsedAt)
	})

	var freed int64
	for _, e := range order {
		if total <= limit {
			break
		}
		s.removeFilesLocked(e)
		delete(s.idx.Entries, e.Hash)
		total -= e.Size
		freed += e.Size
	}

	return freed, s.writeIndexLocked()
}

// Entries returns all entries, oldest first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.idx.Entries))
	for _, e := range s.idx.Entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Stats summarizes the current store contents.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Dir: s.dir, Count: len(s.idx.Entries)}
	for _, e := range s.idx.Entries {
		st.TotalSize += e.Size
	}
	return st
}

// writeIndexLocked writes cache.json atomically. Callers hold s.mu.
func (s *Store) writeIndexLocked() error {
	data, err := json.MarshalIndent(&s.idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache index: %w", err)
	}

	path := filepath.Join(s.dir, indexFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing cache index: %w", err)
	}
	return nil
}
