package match

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dsoriano/cratesync/internal/library"
)

const (
	cacheVersion       = 1
	checkpointInterval = 50

	// DefaultRetryDays is how long a cached failure stands before the track is
	// looked up again.
	DefaultRetryDays = 7
)

// CacheEntry is one memoized match outcome. A matched entry's score is always
// at or above the threshold it was stored under; a failure entry records the
// threshold nothing cleared.
type CacheEntry struct {
	URI       string    `json:"spotify_uri,omitempty"`
	Title     string    `json:"spotify_name,omitempty"`
	Artist    string    `json:"spotify_artist,omitempty"`
	Score     float64   `json:"score,omitempty"`
	Edition   Edition   `json:"match_type,omitempty"`
	Matched   bool      `json:"matched"`
	Timestamp time.Time `json:"timestamp"`
	Threshold int       `json:"threshold"`
}

type cacheDocument struct {
	Version int                   `json:"version"`
	Entries map[string]CacheEntry `json:"entries"`
}

// Cache memoizes matcher outcomes keyed by normalized (artist, title), backed
// by a versioned JSON document. Writes auto-checkpoint to disk every
// checkpointInterval stores; callers flush the remainder with Save at the end
// of a run. A single run owns the file for its lifetime.
type Cache struct {
	path    string
	entries map[string]CacheEntry
	dirty   int
	now     func() time.Time
}

// NewCache creates an empty cache bound to the given file path.
func NewCache(path string) *Cache {
	return &Cache{
		path:    path,
		entries: make(map[string]CacheEntry),
		now:     time.Now,
	}
}

// Load reads the cache document from disk. A missing, unreadable, or
// version-mismatched file leaves the cache empty: the document is incidental
// acceleration state, not a system of record.
func (c *Cache) Load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return
	}
	if doc.Version != cacheVersion {
		return
	}
	for key, entry := range doc.Entries {
		c.entries[key] = entry
	}
}

// Save writes the cache document to disk and resets the checkpoint counter.
func (c *Cache) Save() error {
	doc := cacheDocument{Version: cacheVersion, Entries: c.entries}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	c.dirty = 0
	return nil
}

// Key builds the cache key for an (artist, title) pair.
func (c *Cache) Key(artist, title string) string {
	return Normalize(artist) + "||" + Normalize(title)
}

// Lookup returns the stored entry when it is valid for the requested
// threshold: a success whose score clears it, or a failure recorded at the
// same or a looser threshold (a failure at a looser bar implies failure at a
// stricter one, never the reverse).
func (c *Cache) Lookup(artist, title string, threshold int) *CacheEntry {
	entry, ok := c.entries[c.Key(artist, title)]
	if !ok {
		return nil
	}
	if entry.Matched && entry.Score >= float64(threshold) {
		return &entry
	}
	if !entry.Matched && entry.Threshold <= threshold {
		return &entry
	}
	return nil
}

// Store overwrites the entry for (artist, title) with the given outcome, or a
// failure record when outcome is nil, and auto-checkpoints on the interval.
func (c *Cache) Store(artist, title string, threshold int, outcome *Outcome) error {
	entry := CacheEntry{
		Matched:   false,
		Timestamp: c.now(),
		Threshold: threshold,
	}
	if outcome != nil {
		entry.Matched = true
		entry.URI = outcome.URI
		entry.Title = outcome.Title
		entry.Artist = outcome.Artist
		entry.Score = outcome.Score
		entry.Edition = outcome.Edition
	}
	c.entries[c.Key(artist, title)] = entry

	c.dirty++
	if c.dirty >= checkpointInterval {
		return c.Save()
	}
	return nil
}

// IsRetryEligible reports whether a cached failure should be retried: always
// with force, otherwise only once its age exceeds retryDays. Successes and
// absent entries are never retry-eligible.
func (c *Cache) IsRetryEligible(artist, title string, retryDays int, force bool) bool {
	entry, ok := c.entries[c.Key(artist, title)]
	if !ok || entry.Matched {
		return false
	}
	if force {
		return true
	}
	return c.now().Sub(entry.Timestamp) > time.Duration(retryDays)*24*time.Hour
}

// Stats returns the total entry count and how many of them are successes.
func (c *Cache) Stats() (total, matched int) {
	for _, entry := range c.entries {
		total++
		if entry.Matched {
			matched++
		}
	}
	return total, matched
}

// Source tags where a match outcome came from when a cache is in play.
type Source string

const (
	SourceCache Source = "cache" // served from the cache without a network call
	SourceAPI   Source = "api"   // fresh lookup, no prior entry
	SourceRetry Source = "retry" // fresh lookup replacing a stale entry
)

// MatchWithCache wraps Matcher.Match with the cache policy: cached successes
// and still-standing failures short-circuit; stale failures and misses go to
// the orchestrator and overwrite the entry.
func (c *Cache) MatchWithCache(ctx context.Context, m *Matcher, track library.Track, threshold, retryDays int, force bool) (*Outcome, Source, error) {
	if entry := c.Lookup(track.Artist, track.Title, threshold); entry != nil {
		if entry.Matched {
			return &Outcome{
				URI:     entry.URI,
				Title:   entry.Title,
				Artist:  entry.Artist,
				Score:   entry.Score,
				Edition: entry.Edition,
			}, SourceCache, nil
		}
		if !c.IsRetryEligible(track.Artist, track.Title, retryDays, force) {
			return nil, SourceCache, nil
		}
	}

	_, existed := c.entries[c.Key(track.Artist, track.Title)]

	outcome, err := m.Match(ctx, track, threshold)
	if err != nil {
		return nil, "", err
	}
	if err := c.Store(track.Artist, track.Title, threshold, outcome); err != nil {
		return nil, "", err
	}

	if existed {
		return outcome, SourceRetry, nil
	}
	return outcome, SourceAPI, nil
}
