// package library parses Rekordbox XML library exports into tracks and groupings.
//
// A grouping is an ordered, named list of track references: a Rekordbox playlist,
// a Beatport chart, or a label release listing. The matcher and reconciler only
// ever see the [Track] and [Grouping] shapes defined here.
package library

import "fmt"

// Track is a local catalog record. Immutable once parsed.
type Track struct {
	ID        string
	Title     string
	Artist    string // possibly multi-artist, joined by a separator
	Remixer   string
	Album     string
	Label     string
	Genre     string
	Duration  int    // seconds, 0 = unknown
	DateAdded string // opaque sortable string, e.g. "2024-03-15"
}

// Display returns the "Artist - Title" form used in reports and logs.
func (t Track) Display() string {
	return fmt.Sprintf("%s - %s", t.Artist, t.Title)
}

// Grouping is a named, ordered collection of tracks from a local source.
type Grouping struct {
	Name     string
	Path     string // e.g. "Baime 2022/Peak - Melodic"
	TrackIDs []string
}
