// package beatport scrapes public Beatport pages (DJ charts, label
// catalogs, label search) into library tracks. Beatport embeds its page data
// as a __NEXT_DATA__ JSON blob, so no HTML parsing beyond locating that
// script tag is needed.
package beatport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dsoriano/cratesync/internal/library"
	"github.com/dsoriano/cratesync/internal/shared"
)

const (
	userAgent       = "Mozilla/5.0 (compatible; cratesync/0.1.0)"
	maxResponseSize = 5 * 1024 * 1024
	requestTimeout  = 30 * time.Second

	chartURLPrefix = "beatport.com/chart/"
)

var chartURLRe = regexp.MustCompile(`^https://(www\.)?beatport\.com/chart/[\w-]+/\d+$`)

var nextDataRe = regexp.MustCompile(`(?s)<script\s+id="__NEXT_DATA__"\s*[^>]*>(.*?)</script>`)

// ParseError reports a page whose structure could not be understood: a
// changed layout, an anti-bot challenge, or an oversized response.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "beatport: " + e.Reason
}

// Chart is a parsed DJ chart: its display name, the curating DJ, and the
// tracks in chart order.
type Chart struct {
	Name    string
	Curator string
	Tracks  []library.Track
}

// Scraper fetches and parses Beatport pages.
type Scraper struct {
	client *http.Client
}

func NewScraper() *Scraper {
	return &Scraper{client: &http.Client{Timeout: requestTimeout}}
}

// ValidateChartURL normalizes a chart URL, stripping query parameters and the
// trailing slash, and rejects anything that is not a chart page.
func ValidateChartURL(rawURL string) (string, error) {
	normalized := normalizeURL(rawURL)
	if !chartURLRe.MatchString(normalized) {
		return "", fmt.Errorf("%w: not a Beatport chart URL: %s (expected https://www.beatport.com/chart/<name>/<id>)", shared.ErrInvalidInput, rawURL)
	}
	return normalized, nil
}

func normalizeURL(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		rawURL = rawURL[:i]
	}
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		rawURL = rawURL[:i]
	}
	return strings.TrimRight(rawURL, "/")
}

// fetch retrieves a page with a response size cap and verifies the final URL
// after redirects still looks like the expected kind of page.
func (s *Scraper) fetch(ctx context.Context, pageURL, wantPrefix string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d on %s", shared.ErrAPIRequest, resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > maxResponseSize {
		return "", &ParseError{Reason: "response too large, does not look like the expected page"}
	}

	// A redirect away from the expected path means a login wall or a moved
	// page, not the content we asked for.
	if resp.Request != nil && resp.Request.URL != nil {
		final := resp.Request.URL.String()
		if final != pageURL && !strings.Contains(final, wantPrefix) {
			return "", &ParseError{Reason: fmt.Sprintf("redirected to an unexpected URL: %s", final)}
		}
	}

	return string(body), nil
}

// nextData mirrors only the parts of the __NEXT_DATA__ payload we read.
type nextData struct {
	Props struct {
		PageProps struct {
			Chart struct {
				Name string `json:"name"`
				DJ   struct {
					Name string `json:"name"`
				} `json:"dj"`
			} `json:"chart"`
			Label struct {
				Name string `json:"name"`
			} `json:"label"`
			DehydratedState struct {
				Queries []struct {
					State struct {
						Data json.RawMessage `json:"data"`
					} `json:"state"`
				} `json:"queries"`
			} `json:"dehydratedState"`
		} `json:"pageProps"`
	} `json:"props"`
}

// extractNextData locates the embedded page data. A missing blob usually
// means an anti-bot challenge page or a redesign.
func extractNextData(html string) (*nextData, error) {
	m := nextDataRe.FindStringSubmatch(html)
	if m == nil {
		if strings.Contains(html, "/human-test/") || strings.Contains(html, "findProof") {
			return nil, &ParseError{Reason: "anti-bot challenge page returned, this may be temporary, try again in a few minutes"}
		}
		return nil, &ParseError{Reason: "could not find page data, Beatport may have changed their page structure"}
	}

	var data nextData
	if err := json.Unmarshal([]byte(m[1]), &data); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid JSON in page data: %v", err)}
	}
	return &data, nil
}

// queryData is the per-query payload shape shared by chart, label, and
// search pages.
type queryData struct {
	Results []json.RawMessage `json:"results"`
	Data    []json.RawMessage `json:"data"`
	Count   int               `json:"count"`
}

// findTrackResults scans the dehydrated queries for the one holding track
// results, identified by an "artists" field on the first result. The second
// return reports whether any query held an empty result list, which is how an
// empty catalog page looks.
func findTrackResults(data *nextData) (*queryData, bool) {
	sawEmpty := false
	for _, q := range data.Props.PageProps.DehydratedState.Queries {
		if len(q.State.Data) == 0 {
			continue
		}
		var qd queryData
		if err := json.Unmarshal(q.State.Data, &qd); err != nil {
			continue
		}
		if len(qd.Results) == 0 {
			if qd.Results != nil {
				sawEmpty = true
			}
			continue
		}
		if bytes.Contains(qd.Results[0], []byte(`"artists"`)) {
			return &qd, sawEmpty
		}
	}
	return nil, sawEmpty
}

// pageTrack is Beatport's track object as embedded in page data.
type pageTrack struct {
	ID      json.Number `json:"id"`
	Name    string      `json:"name"`
	MixName string      `json:"mix_name"`
	Length  string      `json:"length"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Release struct {
		Name  string `json:"name"`
		Label struct {
			Name string `json:"name"`
		} `json:"label"`
	} `json:"release"`
	Genre struct {
		Name string `json:"name"`
	} `json:"genre"`
	PublishDate    string `json:"publish_date"`
	NewReleaseDate string `json:"new_release_date"`
}

// toTrack converts a Beatport track object to a library track. The mix name
// is folded into the title unless it is the unnamed original, which would
// only add noise to matching.
func (t *pageTrack) toTrack(idPrefix string, position int) library.Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	title := t.Name
	if t.MixName != "" && t.MixName != "Original Mix" && t.MixName != "Original" {
		title = fmt.Sprintf("%s (%s)", title, t.MixName)
	}

	id := t.ID.String()
	if id == "" {
		id = fmt.Sprintf("%d", position)
	}

	dateAdded := t.PublishDate
	if dateAdded == "" {
		dateAdded = t.NewReleaseDate
	}

	return library.Track{
		ID:        idPrefix + id,
		Title:     title,
		Artist:    strings.Join(names, ", "),
		Album:     t.Release.Name,
		Label:     t.Release.Label.Name,
		Genre:     t.Genre.Name,
		DateAdded: dateAdded,
		Duration:  ParseLength(t.Length),
	}
}

// ParseLength converts a "M:SS" or "H:MM:SS" duration string to seconds,
// returning 0 on anything unparseable.
func ParseLength(length string) int {
	parts := strings.Split(length, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0
	}
	total := 0
	for _, part := range parts {
		n := 0
		if part == "" {
			return 0
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0
			}
			n = n*10 + int(r-'0')
		}
		total = total*60 + n
	}
	return total
}

func decodeTracks(results []json.RawMessage, idPrefix string) []library.Track {
	tracks := make([]library.Track, 0, len(results))
	for i, raw := range results {
		var pt pageTrack
		if err := json.Unmarshal(raw, &pt); err != nil {
			continue
		}
		tracks = append(tracks, pt.toTrack(idPrefix, i))
	}
	return tracks
}

// FetchChart downloads and parses a DJ chart page. Tracks come back in chart
// position order.
func (s *Scraper) FetchChart(ctx context.Context, chartURL string) (*Chart, error) {
	html, err := s.fetch(ctx, chartURL, chartURLPrefix)
	if err != nil {
		return nil, err
	}

	data, err := extractNextData(html)
	if err != nil {
		return nil, err
	}
	return parseChart(data)
}

func parseChart(data *nextData) (*Chart, error) {
	qd, _ := findTrackResults(data)
	if qd == nil {
		n := len(data.Props.PageProps.DehydratedState.Queries)
		return nil, &ParseError{Reason: fmt.Sprintf("could not locate track data: found %d queries but none contained track results", n)}
	}

	name := data.Props.PageProps.Chart.Name
	if name == "" {
		name = "Unknown Chart"
	}
	curator := data.Props.PageProps.Chart.DJ.Name
	if curator == "" {
		curator = "Unknown"
	}

	return &Chart{
		Name:    name,
		Curator: curator,
		Tracks:  decodeTracks(qd.Results, "bp-"),
	}, nil
}
