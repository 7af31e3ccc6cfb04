// Package state persists the dedup record that prevents re-delivery
// of already-sent or already-ignored tweets.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// State is the single process-wide dedup record. An item is either the
// most recent delivery or permanently ignored, never both.
type State struct {
	LastTweetHash   string
	IgnoredHashes   map[string]struct{}
	LastSentMessage string
}

// NewState returns the zero-value state: no last delivery, empty
// ignored set, empty last message.
func NewState() *State {
	return &State{
		IgnoredHashes: make(map[string]struct{}),
	}
}

// IsDuplicateOrIgnored reports whether the fingerprint matches the
// last delivered tweet or belongs to the permanently ignored set.
func (s *State) IsDuplicateOrIgnored(fp string) bool {
	if fp == "" {
		return false
	}
	if fp == s.LastTweetHash {
		return true
	}
	_, ignored := s.IgnoredHashes[fp]
	return ignored
}

// MarkIgnored adds the fingerprint to the permanently ignored set.
func (s *State) MarkIgnored(fp string) {
	if fp == "" {
		return
	}
	s.IgnoredHashes[fp] = struct{}{}
}

// RecordDelivery records a completed delivery. The fingerprint is
// removed from the ignored set to keep the two disjoint.
func (s *State) RecordDelivery(fp, message string) {
	delete(s.IgnoredHashes, fp)
	s.LastTweetHash = fp
	s.LastSentMessage = message
}

// stateFile is the persisted JSON shape.
type stateFile struct {
	LastTweetHash   *string  `json:"last_tweet_hash"`
	IgnoredHashes   []string `json:"ignored_hashes"`
	LastSentMessage string   `json:"last_sent_message"`
}

// Store reads and writes the dedup state file. The file is owned
// exclusively by one running instance at a time.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted state. A missing or malformed file yields
// the zero-value state; load failures are never fatal.
func (st *Store) Load() *State {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("state file unreadable, starting fresh", "path", st.path, "error", err)
		}
		return NewState()
	}

	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		slog.Warn("state file malformed, starting fresh", "path", st.path, "error", err)
		return NewState()
	}

	s := NewState()
	if file.LastTweetHash != nil {
		s.LastTweetHash = *file.LastTweetHash
	}
	for _, h := range file.IgnoredHashes {
		if h != "" {
			s.IgnoredHashes[h] = struct{}{}
		}
	}
	s.LastSentMessage = file.LastSentMessage

	// A hash cannot be both the last delivery and ignored. If a bad
	// write left it in both places, the delivery record wins.
	if s.LastTweetHash != "" {
		delete(s.IgnoredHashes, s.LastTweetHash)
	}

	return s
}

// Save serializes the full state, writing to a temp file and renaming
// so a crash mid-write never mixes old and new fields.
func (st *Store) Save(s *State) error {
	file := stateFile{
		IgnoredHashes:   make([]string, 0, len(s.IgnoredHashes)),
		LastSentMessage: s.LastSentMessage,
	}
	if s.LastTweetHash != "" {
		file.LastTweetHash = &s.LastTweetHash
	}
	for h := range s.IgnoredHashes {
		file.IgnoredHashes = append(file.IgnoredHashes, h)
	}
	sort.Strings(file.IgnoredHashes)

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(st.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(st.path)+".tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, st.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
