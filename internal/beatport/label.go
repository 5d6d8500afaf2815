package beatport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/dsoriano/cratesync/internal/library"
	"github.com/dsoriano/cratesync/internal/match"
	"github.com/dsoriano/cratesync/internal/shared"
)

const (
	labelURLPrefix = "beatport.com/label/"

	// labelPageSize tracks Beatport's per_page maximum; labelMaxPages caps a
	// runaway catalog at 15,000 tracks.
	labelPageSize = 150
	labelMaxPages = 100

	// LargeLabelThreshold is the catalog size above which callers should
	// confirm before fetching everything.
	LargeLabelThreshold = 1000
)

var labelURLRe = regexp.MustCompile(`^https://(www\.)?beatport\.com/label/[\w-]+/\d+(/tracks)?$`)

var slugStripRe = regexp.MustCompile(`[^\w\s-]`)
var slugSpaceRe = regexp.MustCompile(`[\s_]+`)

// ValidateLabelURL normalizes a label URL. Both the label root page and its
// /tracks listing are accepted; the /tracks suffix is stripped so the pager
// can append its own.
func ValidateLabelURL(rawURL string) (string, error) {
	normalized := normalizeURL(rawURL)
	if !labelURLRe.MatchString(normalized) {
		return "", fmt.Errorf("%w: not a Beatport label URL: %s (expected https://www.beatport.com/label/<name>/<id>)", shared.ErrInvalidInput, rawURL)
	}
	return strings.TrimSuffix(normalized, "/tracks"), nil
}

// PageError wraps a failure on one page of a paginated fetch so callers can
// keep the tracks collected before it.
type PageError struct {
	Page  int
	Total int
	Err   error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d/%d failed: %v", e.Page, e.Total, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// LabelPager iterates a label's track catalog one page at a time, newest
// first. The first page is fetched eagerly so the label name and total count
// are known before the caller commits to pulling the rest.
type LabelPager struct {
	scraper *Scraper
	baseURL string

	name       string
	total      int
	totalPages int

	next    int
	pending []library.Track
}

// OpenLabel fetches the first catalog page of a validated label URL and
// returns a pager positioned on it.
func (s *Scraper) OpenLabel(ctx context.Context, labelURL string) (*LabelPager, error) {
	pager := &LabelPager{scraper: s, baseURL: labelURL}

	name, tracks, total, err := pager.fetchPage(ctx, 1)
	if err != nil {
		return nil, err
	}

	pager.name = name
	pager.total = total
	pager.totalPages = (total + labelPageSize - 1) / labelPageSize
	if pager.totalPages > labelMaxPages {
		pager.totalPages = labelMaxPages
	}
	pager.pending = tracks
	pager.next = 2
	return pager, nil
}

func (p *LabelPager) fetchPage(ctx context.Context, page int) (string, []library.Track, int, error) {
	pageURL := fmt.Sprintf("%s/tracks?page=%d&per_page=%d", p.baseURL, page, labelPageSize)
	html, err := p.scraper.fetch(ctx, pageURL, labelURLPrefix)
	if err != nil {
		return "", nil, 0, err
	}

	data, err := extractNextData(html)
	if err != nil {
		return "", nil, 0, err
	}

	name := data.Props.PageProps.Label.Name
	if name == "" {
		name = "Unknown Label"
	}

	qd, sawEmpty := findTrackResults(data)
	if qd == nil {
		if sawEmpty {
			return name, nil, 0, nil
		}
		n := len(data.Props.PageProps.DehydratedState.Queries)
		return "", nil, 0, &ParseError{Reason: fmt.Sprintf("could not locate track data: found %d queries but none contained track results", n)}
	}

	total := qd.Count
	if total == 0 {
		total = len(qd.Results)
	}
	return name, decodeTracks(qd.Results, "bp-label-"), total, nil
}

// LabelName reports the label's display name, known after the first page.
func (p *LabelPager) LabelName() string { return p.name }

// TotalTracks reports the catalog size Beatport advertises.
func (p *LabelPager) TotalTracks() int { return p.total }

// TotalPages reports how many pages the pager will visit, after the cap.
func (p *LabelPager) TotalPages() int { return p.totalPages }

// Next returns the next page of tracks, or nil when the catalog is
// exhausted. A failed page returns a *PageError; the pager stops there and
// whatever earlier pages yielded remains valid.
func (p *LabelPager) Next(ctx context.Context) ([]library.Track, error) {
	if p.pending != nil {
		tracks := p.pending
		p.pending = nil
		return tracks, nil
	}
	if p.next > p.totalPages {
		return nil, nil
	}

	page := p.next
	_, tracks, _, err := p.fetchPage(ctx, page)
	if err != nil {
		p.next = p.totalPages + 1
		return nil, &PageError{Page: page, Total: p.totalPages, Err: err}
	}
	p.next++
	return tracks, nil
}

// All drains the pager. On a page failure it returns the tracks collected so
// far together with the *PageError, so a partial catalog is still usable.
func (p *LabelPager) All(ctx context.Context) ([]library.Track, error) {
	var tracks []library.Track
	for {
		page, err := p.Next(ctx)
		if err != nil {
			return tracks, err
		}
		if page == nil {
			return tracks, nil
		}
		tracks = append(tracks, page...)
	}
}

// DeduplicateTracks removes tracks that appear on multiple releases, keying
// on normalized artist and title. The first occurrence wins, which keeps the
// newest release since catalogs are ordered newest first. Returns the unique
// tracks and how many duplicates were dropped.
func DeduplicateTracks(tracks []library.Track) ([]library.Track, int) {
	seen := make(map[string]bool, len(tracks))
	unique := make([]library.Track, 0, len(tracks))
	for _, track := range tracks {
		key := match.Normalize(track.Artist) + "||" + match.Normalize(track.Title)
		if !seen[key] {
			seen[key] = true
			unique = append(unique, track)
		}
	}
	return unique, len(tracks) - len(unique)
}

// LabelResult is one hit from a label name search.
type LabelResult struct {
	Name              string
	URL               string
	TrackCount        int
	LatestRelease     string
	LatestReleaseDate string
}

// searchLabelItem tolerates both response shapes Beatport has shipped:
// label_id/label_name and the older id/name/slug.
type searchLabelItem struct {
	IDNew       json.Number `json:"label_id"`
	IDOld       json.Number `json:"id"`
	NameNew     string      `json:"label_name"`
	NameOld     string      `json:"name"`
	Slug        string      `json:"slug"`
	TrackCount  int         `json:"track_count"`
	LastRelease struct {
		Name           string `json:"name"`
		PublishDate    string `json:"publish_date"`
		NewReleaseDate string `json:"new_release_date"`
	} `json:"last_release"`
}

// SearchLabels queries Beatport's label search and returns hits in relevance
// order.
func (s *Scraper) SearchLabels(ctx context.Context, query string) ([]LabelResult, error) {
	searchURL := "https://www.beatport.com/search/labels?q=" + url.QueryEscape(query)
	html, err := s.fetch(ctx, searchURL, "beatport.com/search")
	if err != nil {
		return nil, err
	}

	data, err := extractNextData(html)
	if err != nil {
		return nil, err
	}

	items := findLabelResults(data)
	results := make([]LabelResult, 0, len(items))
	for _, item := range items {
		name := item.NameNew
		if name == "" {
			name = item.NameOld
		}
		if name == "" {
			name = "Unknown"
		}
		slug := item.Slug
		if slug == "" {
			slug = Slugify(name)
		}
		id := item.IDNew.String()
		if id == "" {
			id = item.IDOld.String()
		}
		date := item.LastRelease.PublishDate
		if date == "" {
			date = item.LastRelease.NewReleaseDate
		}

		results = append(results, LabelResult{
			Name:              name,
			URL:               fmt.Sprintf("https://www.beatport.com/label/%s/%s", slug, id),
			TrackCount:        item.TrackCount,
			LatestRelease:     item.LastRelease.Name,
			LatestReleaseDate: date,
		})
	}
	return results, nil
}

// findLabelResults scans the dehydrated queries for label search hits, which
// sit under "data" in the current shape and "results" in the old one.
func findLabelResults(data *nextData) []searchLabelItem {
	for _, q := range data.Props.PageProps.DehydratedState.Queries {
		if len(q.State.Data) == 0 {
			continue
		}
		var qd queryData
		if err := json.Unmarshal(q.State.Data, &qd); err != nil {
			continue
		}
		candidates := qd.Data
		if len(candidates) == 0 {
			candidates = qd.Results
		}
		if len(candidates) == 0 {
			continue
		}
		if !bytes.Contains(candidates[0], []byte(`"label_name"`)) && !bytes.Contains(candidates[0], []byte(`"name"`)) {
			continue
		}

		items := make([]searchLabelItem, 0, len(candidates))
		for _, raw := range candidates {
			var item searchLabelItem
			if err := json.Unmarshal(raw, &item); err != nil {
				continue
			}
			items = append(items, item)
		}
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

// Slugify converts a label name to its URL slug form.
func Slugify(name string) string {
	slug := slugStripRe.ReplaceAllString(strings.ToLower(name), "")
	slug = slugSpaceRe.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
