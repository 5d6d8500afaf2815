// package report renders post-sync summaries: a terminal table for quick
// review and a Markdown file for keeping or sharing.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/dsoriano/cratesync/internal/match"
)

// lowConfidenceFloor is the score below which a match lands in the manual
// review section of the Markdown report.
const lowConfidenceFloor = 90

// MatchedTrack records one successful local→remote pairing.
type MatchedTrack struct {
	SourceName    string
	SpotifyName   string
	SpotifyArtist string
	Score         float64
	MatchType     match.Edition
}

// lowConfidence marks matches worth a manual listen: weak scores and
// fallback versions alike.
func (m MatchedTrack) lowConfidence() bool {
	return m.Score < lowConfidenceFloor || m.MatchType == match.EditionFallback
}

// PlaylistReport aggregates one playlist's outcomes.
type PlaylistReport struct {
	Name       string
	Path       string
	Matched    []MatchedTrack
	Unmatched  []string
	Action     string
	CacheHits  int
	APILookups int
	Retried    int
}

func (p *PlaylistReport) Total() int {
	return len(p.Matched) + len(p.Unmatched)
}

func (p *PlaylistReport) MatchRate() float64 {
	if p.Total() == 0 {
		return 0
	}
	return float64(len(p.Matched)) / float64(p.Total()) * 100
}

func (p *PlaylistReport) fallbackCount() int {
	n := 0
	for _, m := range p.Matched {
		if m.MatchType == match.EditionFallback {
			n++
		}
	}
	return n
}

func (p *PlaylistReport) scoreStats() (avg, min, max float64) {
	if len(p.Matched) == 0 {
		return 0, 0, 0
	}
	min, max = p.Matched[0].Score, p.Matched[0].Score
	sum := 0.0
	for _, m := range p.Matched {
		sum += m.Score
		if m.Score < min {
			min = m.Score
		}
		if m.Score > max {
			max = m.Score
		}
	}
	return sum / float64(len(p.Matched)), min, max
}

// SyncReport is the full outcome of one sync run.
type SyncReport struct {
	Timestamp    time.Time
	Threshold    int
	DryRun       bool
	CacheEnabled bool
	SourceLabel  string
	Playlists    []*PlaylistReport
}

func NewSyncReport(threshold int, dryRun bool) *SyncReport {
	return &SyncReport{
		Timestamp:   time.Now(),
		Threshold:   threshold,
		DryRun:      dryRun,
		SourceLabel: "Rekordbox",
	}
}

func (r *SyncReport) TotalMatched() int {
	n := 0
	for _, p := range r.Playlists {
		n += len(p.Matched)
	}
	return n
}

func (r *SyncReport) TotalUnmatched() int {
	n := 0
	for _, p := range r.Playlists {
		n += len(p.Unmatched)
	}
	return n
}

func (r *SyncReport) OverallMatchRate() float64 {
	total := r.TotalMatched() + r.TotalUnmatched()
	if total == 0 {
		return 0
	}
	return float64(r.TotalMatched()) / float64(total) * 100
}

func (r *SyncReport) cacheTotals() (hits, api, retried int) {
	for _, p := range r.Playlists {
		hits += p.CacheHits
		api += p.APILookups
		retried += p.Retried
	}
	return hits, api, retried
}

func (r *SyncReport) mode() string {
	if r.DryRun {
		return "dry-run"
	}
	return "live"
}

// Render writes the terminal summary.
func (r *SyncReport) Render(w io.Writer) {
	fmt.Fprintf(w, "\nSync Report  %s\n", r.Timestamp.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "Mode: %s  |  Threshold: %d\n\n", r.mode(), r.Threshold)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Playlist", "Action", "Matched", "Rate", "Avg Score", "Fallbacks"})

	for _, p := range r.Playlists {
		avg, _, _ := p.scoreStats()
		tw.AppendRow(table.Row{
			p.Path,
			p.Action,
			fmt.Sprintf("%d/%d", len(p.Matched), p.Total()),
			fmt.Sprintf("%.1f%%", p.MatchRate()),
			fmt.Sprintf("%.1f", avg),
			p.fallbackCount(),
		})
	}
	tw.AppendFooter(table.Row{
		"TOTAL", "",
		fmt.Sprintf("%d/%d", r.TotalMatched(), r.TotalMatched()+r.TotalUnmatched()),
		fmt.Sprintf("%.1f%%", r.OverallMatchRate()),
		"", "",
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	tw.Render()

	for _, p := range r.Playlists {
		if len(p.Unmatched) == 0 {
			continue
		}
		fmt.Fprintf(w, "\nUnmatched in %s (%d):\n", p.Path, len(p.Unmatched))
		for _, name := range p.Unmatched {
			fmt.Fprintf(w, "  - %s\n", name)
		}
	}

	if r.CacheEnabled {
		hits, api, retried := r.cacheTotals()
		fmt.Fprintf(w, "\nCache: %d hits | %d API calls | %d retries\n", hits, api, retried)
	}
	fmt.Fprintln(w)
}

// Markdown builds the detailed report document.
func (r *SyncReport) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Sync Report - %s\n\n", r.Timestamp.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "**Mode:** %s  |  **Threshold:** %d\n\n", r.mode(), r.Threshold)

	for _, p := range r.Playlists {
		fmt.Fprintf(&b, "## %s  (%s)\n\n", p.Path, p.Action)
		fmt.Fprintf(&b, "**Matched:** %d/%d (%.1f%%)\n", len(p.Matched), p.Total(), p.MatchRate())

		if len(p.Matched) > 0 {
			avg, min, max := p.scoreStats()
			fmt.Fprintf(&b, "**Scores:** avg %.1f | min %.1f | max %.1f\n", avg, min, max)
			if n := p.fallbackCount(); n > 0 {
				fmt.Fprintf(&b, "**Version fallbacks:** %d\n", n)
			}
		}
		b.WriteString("\n")

		if len(p.Matched) > 0 {
			fmt.Fprintf(&b, "| %s | Spotify Match | Score | Match Type |\n", r.SourceLabel)
			b.WriteString("|-----------|---------------|-------|------------|\n")
			for _, m := range p.Matched {
				fmt.Fprintf(&b, "| %s | %s - %s | %.1f | %s |\n", m.SourceName, m.SpotifyArtist, m.SpotifyName, m.Score, m.MatchType)
			}
			b.WriteString("\n")
		}

		if len(p.Unmatched) > 0 {
			fmt.Fprintf(&b, "### Unmatched (%d)\n\n", len(p.Unmatched))
			for _, name := range p.Unmatched {
				fmt.Fprintf(&b, "- %s\n", name)
			}
			b.WriteString("\n")
		}
	}

	type flagged struct {
		path  string
		track MatchedTrack
	}
	var review []flagged
	for _, p := range r.Playlists {
		for _, m := range p.Matched {
			if m.lowConfidence() {
				review = append(review, flagged{path: p.Path, track: m})
			}
		}
	}
	if len(review) > 0 {
		fmt.Fprintf(&b, "## Low Confidence Matches (score < %d)\n\n", lowConfidenceFloor)
		fmt.Fprintf(&b, "| Playlist | %s | Spotify Match | Score | Match Type |\n", r.SourceLabel)
		b.WriteString("|----------|-----------|---------------|-------|------------|\n")
		for _, f := range review {
			m := f.track
			fmt.Fprintf(&b, "| %s | %s | %s - %s | %.1f | %s |\n", f.path, m.SourceName, m.SpotifyArtist, m.SpotifyName, m.Score, m.MatchType)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "**Totals:** %d playlists | %d matched | %d unmatched | %.1f%% match rate\n",
		len(r.Playlists), r.TotalMatched(), r.TotalUnmatched(), r.OverallMatchRate())
	if r.CacheEnabled {
		hits, api, retried := r.cacheTotals()
		fmt.Fprintf(&b, "**Cache:** %d hits | %d API calls | %d retries\n", hits, api, retried)
	}

	return b.String()
}

// Save writes the Markdown report to a file.
func (r *SyncReport) Save(path string) error {
	if err := os.WriteFile(path, []byte(r.Markdown()), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
