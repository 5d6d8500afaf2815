package match

import (
	"context"
	"math"

	"github.com/dsoriano/cratesync/internal/library"
)

// Candidate is a single remote search result. The URI is the stable identity;
// duration is in milliseconds with 0 meaning unknown.
type Candidate struct {
	URI        string
	Title      string
	Artist     string
	Album      string
	DurationMS int
}

// Edition classifies how a candidate's mix/version relates to the local track's.
type Edition string

const (
	// EditionExact means the candidate is the same edition the local track names.
	EditionExact Edition = "exact"
	// EditionFallback means the candidate is confidently the same underlying
	// track but a different edition than requested.
	EditionFallback Edition = "fallback_version"
)

// Outcome is an accepted match for one local track.
type Outcome struct {
	URI     string
	Title   string
	Artist  string
	Score   float64
	Edition Edition
}

// Searcher is the remote search collaborator. A field-qualified search uses
// artist:/track: query qualifiers; a plain search sends free text, which is
// more typo-tolerant but noisier. Implementations return a bounded result
// count and may fail with transport or rate-limit errors.
type Searcher interface {
	Search(ctx context.Context, artist, title, album string, fieldQualified bool) ([]Candidate, error)
}

// Tunables are the empirically tuned acceptance constants of the matcher.
// Zero values fall back to the defaults.
type Tunables struct {
	EarlyExitThreshold  float64 // exact-match score that skips remaining query strategies
	FallbackTitleFloor  float64 // minimum stripped-title similarity for a fallback accept
	FallbackArtistFloor float64 // minimum artist similarity for a fallback accept
}

func (t Tunables) withDefaults() Tunables {
	if t.EarlyExitThreshold <= 0 {
		t.EarlyExitThreshold = 95
	}
	if t.FallbackTitleFloor <= 0 {
		t.FallbackTitleFloor = 90
	}
	if t.FallbackArtistFloor <= 0 {
		t.FallbackArtistFloor = 70
	}
	return t
}

// Matcher orchestrates the query strategies and candidate selection for one
// local track at a time.
type Matcher struct {
	search   Searcher
	tunables Tunables
}

// NewMatcher creates a Matcher over the given search collaborator.
func NewMatcher(search Searcher, tunables Tunables) *Matcher {
	return &Matcher{search: search, tunables: tunables.withDefaults()}
}

// Match runs the query strategies in order, pooling candidates, and returns
// the best accepted match or nil when no candidate clears the threshold.
// Search errors propagate unretried; an empty pool is not an error.
func (m *Matcher) Match(ctx context.Context, track library.Track, threshold int) (*Outcome, error) {
	var pool []Candidate

	// Strategy 1: field-qualified (artist, title) as given.
	results, err := m.search.Search(ctx, track.Artist, track.Title, "", true)
	if err != nil {
		return nil, err
	}
	pool = append(pool, results...)

	// A confident exact hit on the most specific query skips the remaining
	// network calls entirely.
	if out := m.selectBest(track, pool, m.tunables.EarlyExitThreshold); out != nil && out.Edition == EditionExact {
		return out, nil
	}

	// Strategy 2: stripped edition info, when it changes the title.
	stripped := StripEditionInfo(track.Title)
	if stripped != track.Title {
		results, err = m.search.Search(ctx, track.Artist, stripped, "", true)
		if err != nil {
			return nil, err
		}
		pool = append(pool, results...)
	}

	// Strategy 3: remixer appended to the artist query.
	if track.Remixer != "" {
		results, err = m.search.Search(ctx, track.Artist+" "+track.Remixer, track.Title, "", true)
		if err != nil {
			return nil, err
		}
		pool = append(pool, results...)
	}

	// Strategy 4: normalized artist and stripped title, when normalization
	// changes either string.
	normArtist := Normalize(track.Artist)
	normTitle := Normalize(stripped)
	if normArtist != track.Artist || normTitle != stripped {
		results, err = m.search.Search(ctx, normArtist, normTitle, "", true)
		if err != nil {
			return nil, err
		}
		pool = append(pool, results...)
	}

	// Strategy 5: last-resort plain free-text search, only when nothing else
	// produced a single candidate.
	if len(pool) == 0 {
		results, err = m.search.Search(ctx, track.Artist, track.Title, "", false)
		if err != nil {
			return nil, err
		}
		pool = append(pool, results...)
	}

	return m.selectBest(track, pool, float64(threshold)), nil
}

// selectBest deduplicates the pool by URI, scores every unique candidate, and
// picks the winner. Exact-edition candidates are always preferred over
// fallback candidates when one clears the threshold, even if a fallback's
// base score is numerically higher: edition fidelity outranks raw similarity.
func (m *Matcher) selectBest(track library.Track, pool []Candidate, threshold float64) *Outcome {
	seen := make(map[string]bool, len(pool))

	var bestExact *Candidate
	bestExactScore := math.Inf(-1)
	var bestFallback *Candidate
	bestFallbackBase := math.Inf(-1)
	var bestFallbackComps ScoreComponents

	for i := range pool {
		cand := pool[i]
		if cand.URI == "" || seen[cand.URI] {
			continue
		}
		seen[cand.URI] = true

		switch ClassifyVersionMatch(track, cand) {
		case EditionExact:
			score := Score(track, cand)
			if score > bestExactScore {
				bestExactScore = score
				bestExact = &pool[i]
			}
		case EditionFallback:
			// The base score ignores the version penalty: the user's
			// underlying track intent still matches even when the edition
			// differs.
			comps := Components(track, cand)
			base := artistWeight*comps.Artist + titleWeight*comps.StrippedTitle
			if base > bestFallbackBase {
				bestFallbackBase = base
				bestFallback = &pool[i]
				bestFallbackComps = comps
			}
		}
	}

	if bestExact != nil && bestExactScore >= threshold {
		return &Outcome{
			URI:     bestExact.URI,
			Title:   bestExact.Title,
			Artist:  bestExact.Artist,
			Score:   bestExactScore,
			Edition: EditionExact,
		}
	}

	// Substituting a different edition is a stricter gate than the exact path:
	// the stripped title and the artist must each independently agree.
	if bestFallback != nil &&
		bestFallbackBase >= threshold &&
		bestFallbackComps.StrippedTitle >= m.tunables.FallbackTitleFloor &&
		bestFallbackComps.Artist >= m.tunables.FallbackArtistFloor {
		return &Outcome{
			URI:     bestFallback.URI,
			Title:   bestFallback.Title,
			Artist:  bestFallback.Artist,
			Score:   bestFallbackBase,
			Edition: EditionFallback,
		}
	}

	return nil
}
