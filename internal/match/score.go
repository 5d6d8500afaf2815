package match

import (
	"math"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/dsoriano/cratesync/internal/library"
)

// Scoring weights and penalties. Title carries more weight than artist because
// artist-string formatting (collaborations, ordering) varies more across
// catalogs than title text does.
const (
	artistWeight           = 0.4
	titleWeight            = 0.6
	fallbackVersionPenalty = 15.0

	durationGraceSeconds = 30.0
	durationPenaltyCap   = 30.0
)

var levenshtein = metrics.NewLevenshtein()

// tokenSortRatio computes a token-order-insensitive similarity ratio (0-100)
// between two strings.
func tokenSortRatio(a, b string) float64 {
	return strutil.Similarity(sortTokens(a), sortTokens(b), levenshtein) * 100
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// ScoreComponents holds the per-field similarity ratios for one candidate.
type ScoreComponents struct {
	Artist        float64 // 0-100
	RawTitle      float64 // 0-100
	StrippedTitle float64 // 0-100
}

// Components computes the artist, raw-title, and edition-stripped-title
// similarity ratios between a local track and a candidate.
func Components(local library.Track, candidate Candidate) ScoreComponents {
	return ScoreComponents{
		Artist:        tokenSortRatio(Normalize(local.Artist), Normalize(candidate.Artist)),
		RawTitle:      tokenSortRatio(Normalize(local.Title), Normalize(candidate.Title)),
		StrippedTitle: tokenSortRatio(Normalize(StripEditionInfo(local.Title)), Normalize(StripEditionInfo(candidate.Title))),
	}
}

// DurationPenalty penalizes candidates whose duration diverges from the local
// track's by more than 30 seconds, up to a cap of 30 points. Unknown durations
// on either side cost nothing, and the cap keeps duration from ever vetoing a
// strong title/artist match (radio edits vs. extended mixes routinely differ).
func DurationPenalty(localSeconds, candidateMS int) float64 {
	if localSeconds <= 0 || candidateMS <= 0 {
		return 0
	}
	diff := math.Abs(float64(localSeconds) - float64(candidateMS)/1000.0)
	if diff <= durationGraceSeconds {
		return 0
	}
	return math.Min(durationPenaltyCap, (diff-durationGraceSeconds)/30.0*5.0)
}

// Score computes the 0-100 confidence score for a (local, candidate) pair:
// weighted artist/title similarity, minus the fallback-version penalty when
// the editions disagree, minus the duration penalty.
func Score(local library.Track, candidate Candidate) float64 {
	comps := Components(local, candidate)
	title := math.Max(comps.RawTitle, comps.StrippedTitle)
	score := artistWeight*comps.Artist + titleWeight*title

	if ClassifyVersionMatch(local, candidate) == EditionFallback {
		score -= fallbackVersionPenalty
	}
	score -= DurationPenalty(local.Duration, candidate.DurationMS)

	return math.Min(100, math.Max(0, score))
}
