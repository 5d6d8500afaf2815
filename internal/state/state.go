// package state persists the mapping from local groupings to the Spotify
// playlists they own.
//
// The stored id is the only trusted way to locate the remote playlist on a
// later sync. Matching by display name is deliberately never done: an
// unrelated playlist that happens to share a name must never be adopted and
// silently overwritten.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const stateVersion = 1

// Identity records which Spotify playlist a local grouping synced to.
type Identity struct {
	SpotifyID   string `json:"spotify_id"`
	SpotifyName string `json:"spotify_name"`
	SourcePath  string `json:"source_path"`
	LastSynced  string `json:"last_synced"` // RFC 3339
	PrefixUsed  string `json:"prefix_used,omitempty"`
	SourceType  string `json:"source_type"` // "rekordbox", "chart", or "label"
}

type stateDocument struct {
	Version int                 `json:"version"`
	Entries map[string]Identity `json:"entries"`
}

// Store is the on-disk identity store. Entries are created on first
// successful sync, overwritten on every later one, and never auto-deleted.
type Store struct {
	path    string
	entries map[string]Identity
}

// NewStore creates an empty store bound to the given file path.
func NewStore(path string) *Store {
	return &Store{path: path, entries: make(map[string]Identity)}
}

// Load reads the store from disk. A missing, unreadable, or
// version-mismatched document leaves the store empty.
func (s *Store) Load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return
	}
	if doc.Version != stateVersion {
		return
	}
	for key, entry := range doc.Entries {
		s.entries[key] = entry
	}
}

// Save writes the store to disk.
func (s *Store) Save() error {
	doc := stateDocument{Version: stateVersion, Entries: s.entries}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode playlist state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write playlist state: %w", err)
	}
	return nil
}

// Get looks up the identity for a local grouping name.
func (s *Store) Get(name string) (Identity, bool) {
	identity, ok := s.entries[name]
	return identity, ok
}

// Set stores the identity for a local grouping name.
func (s *Store) Set(name string, identity Identity) {
	s.entries[name] = identity
}

// Len returns the number of tracked groupings.
func (s *Store) Len() int {
	return len(s.entries)
}

// Touch builds an Identity with the current time as the last-synced stamp.
func Touch(spotifyID, spotifyName, sourcePath, prefix, sourceType string) Identity {
	return Identity{
		SpotifyID:   spotifyID,
		SpotifyName: spotifyName,
		SourcePath:  sourcePath,
		LastSynced:  time.Now().Format(time.RFC3339),
		PrefixUsed:  prefix,
		SourceType:  sourceType,
	}
}
