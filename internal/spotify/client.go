// package spotify implements the remote catalog collaborator: an
// authenticated Web API client for track search and playlist mutation, and
// the reconciler that drives a managed playlist toward a desired membership.
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/dsoriano/cratesync/internal/match"
	"github.com/dsoriano/cratesync/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	searchLimit = 10
	pageLimit   = 100

	// MaxRateLimitWait is the longest server-requested wait honored before the
	// run aborts instead of blocking indefinitely.
	MaxRateLimitWait = 60 * time.Second
)

// RateLimitError is the fatal condition raised when Spotify's requested wait
// exceeds [MaxRateLimitWait] or a retried call is limited again. Callers must
// flush cache and state before surfacing it; partial progress is real.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	wait := shared.FormatWait(int(e.RetryAfter / time.Second))
	return fmt.Sprintf("spotify rate limit exceeded, retry after %s; progress saved, rerun to resume", wait)
}

// Client is an authenticated Spotify Web API client. Requests are paced by a
// client-side limiter and short rate-limit waits are absorbed with a single
// retry per call.
type Client struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	userID     string
	sleep      func(time.Duration)
}

// NewClient creates a Spotify client from OAuth2 application credentials.
func NewClient(clientID, clientSecret, redirectURI string) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &Client{
		config:  config,
		baseURL: spotifyBaseURL,
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		sleep:   time.Sleep,
	}, nil
}

// OAuthConfig exposes the client's OAuth2 configuration for the auth flow.
func (c *Client) OAuthConfig() *oauth2.Config {
	return c.config
}

// AuthURL returns the authorization URL for the code flow.
func (c *Client) AuthURL(stateToken string) string {
	return c.config.AuthCodeURL(stateToken, oauth2.AccessTypeOffline)
}

// SetToken installs an OAuth2 token; subsequent requests refresh it
// automatically through the [oauth2] transport.
func (c *Client) SetToken(ctx context.Context, token *oauth2.Token) {
	c.token = token
	c.httpClient = c.config.Client(ctx, token)
}

// followers/owner/track shapes cover only the response fields this client reads.

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyAlbum struct {
	Name string `json:"name"`
}

type spotifyTrack struct {
	URI        string          `json:"uri"`
	Name       string          `json:"name"`
	Artists    []spotifyArtist `json:"artists"`
	Album      spotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
}

type spotifyOwner struct {
	ID string `json:"id"`
}

type spotifySimplePlaylist struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Owner spotifyOwner `json:"owner"`
}

type paginatedPlaylists struct {
	Items []spotifySimplePlaylist `json:"items"`
	Next  *string                 `json:"next"`
}

type playlistTrackItem struct {
	Track *struct {
		URI string `json:"uri"`
	} `json:"track"`
}

type paginatedPlaylistTracks struct {
	Items []playlistTrackItem `json:"items"`
	Next  *string             `json:"next"`
}

// doRequest performs one authenticated API call, absorbing a single short
// rate-limit wait. A second 429 or a wait beyond the ceiling escalates to
// *RateLimitError.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if c.httpClient == nil || c.token == nil {
		return fmt.Errorf("%w: run auth first", shared.ErrNotAuthenticated)
	}

	retried := false
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		retryAfter, err := c.do(ctx, method, endpoint, body, result)
		if err != nil {
			return err
		}
		if retryAfter == 0 {
			return nil
		}

		if retried || retryAfter > MaxRateLimitWait {
			return &RateLimitError{RetryAfter: retryAfter}
		}
		c.sleep(retryAfter)
		retried = true
	}
}

// do executes a single HTTP exchange. A non-zero duration means the server
// rate-limited the call and asked for that wait.
func (c *Client) do(ctx context.Context, method, endpoint string, body, result any) (time.Duration, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, nil)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return parseRetryAfter(resp), nil
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, endpoint)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return 0, fmt.Errorf("%w: status %d on %s %s", shared.ErrAPIRequest, resp.StatusCode, method, endpoint)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return 0, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return 0, nil
}

// parseRetryAfter extracts Retry-After seconds from a 429 response, flooring
// at one second to avoid a busy loop on a missing or malformed header.
func parseRetryAfter(resp *http.Response) time.Duration {
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

// Search queries the track catalog. A field-qualified search constrains
// artist and title fields; a plain search sends free text, which tolerates
// typos better at the cost of noise. Results are capped at searchLimit.
func (c *Client) Search(ctx context.Context, artist, title, album string, fieldQualified bool) ([]match.Candidate, error) {
	var query string
	if fieldQualified {
		query = fmt.Sprintf("artist:%s track:%s", artist, title)
	} else {
		query = artist + " " + title
	}
	if album != "" {
		query += " album:" + album
	}

	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=%d", url.QueryEscape(query), searchLimit)

	var response struct {
		Tracks struct {
			Items []spotifyTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	candidates := make([]match.Candidate, 0, len(response.Tracks.Items))
	for _, item := range response.Tracks.Items {
		names := make([]string, 0, len(item.Artists))
		for _, a := range item.Artists {
			names = append(names, a.Name)
		}
		candidates = append(candidates, match.Candidate{
			URI:        item.URI,
			Title:      item.Name,
			Artist:     strings.Join(names, ", "),
			Album:      item.Album.Name,
			DurationMS: item.DurationMS,
		})
	}
	return candidates, nil
}

// CurrentUserID returns (and caches) the authenticated user's id.
func (c *Client) CurrentUserID(ctx context.Context) (string, error) {
	if c.userID != "" {
		return c.userID, nil
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return "", err
	}
	c.userID = user.ID
	return c.userID, nil
}

// OwnedPlaylists returns a name→id directory of playlists owned by the
// current user. Best effort: names may be stale the moment they are returned,
// which is why playlist resolution never trusts them.
func (c *Client) OwnedPlaylists(ctx context.Context) (map[string]string, error) {
	userID, err := c.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	playlists := make(map[string]string)
	offset := 0
	for {
		endpoint := fmt.Sprintf("/me/playlists?limit=50&offset=%d", offset)
		var page paginatedPlaylists
		if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if item.Owner.ID == userID {
				playlists[item.Name] = item.ID
			}
		}
		if page.Next == nil {
			break
		}
		offset += 50
	}
	return playlists, nil
}

// PlaylistName fetches the current display name of a playlist. A deleted
// playlist reports shared.ErrPlaylistNotFound.
func (c *Client) PlaylistName(ctx context.Context, playlistID string) (string, error) {
	var playlist struct {
		Name string `json:"name"`
	}
	endpoint := fmt.Sprintf("/playlists/%s?fields=name", playlistID)
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &playlist); err != nil {
		return "", err
	}
	return playlist.Name, nil
}

// RenamePlaylist changes a playlist's display name.
func (c *Client) RenamePlaylist(ctx context.Context, playlistID, name string) error {
	body := map[string]string{"name": name}
	return c.doRequest(ctx, http.MethodPut, "/playlists/"+playlistID, body, nil)
}

// SetDescription changes a playlist's description.
func (c *Client) SetDescription(ctx context.Context, playlistID, description string) error {
	body := map[string]string{"description": description}
	return c.doRequest(ctx, http.MethodPut, "/playlists/"+playlistID, body, nil)
}

// CreatePlaylist creates a private playlist and returns its id.
func (c *Client) CreatePlaylist(ctx context.Context, name, description string) (string, error) {
	userID, err := c.CurrentUserID(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]any{"name": name, "public": false}
	if description != "" {
		body["description"] = description
	}

	var created struct {
		ID string `json:"id"`
	}
	endpoint := fmt.Sprintf("/users/%s/playlists", userID)
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// ReplaceMembership sets a playlist's full membership to uris (max 100 per call).
func (c *Client) ReplaceMembership(ctx context.Context, playlistID string, uris []string) error {
	body := map[string]any{"uris": uris}
	return c.doRequest(ctx, http.MethodPut, "/playlists/"+playlistID+"/tracks", body, nil)
}

// AppendMembership appends uris to a playlist (max 100 per call).
func (c *Client) AppendMembership(ctx context.Context, playlistID string, uris []string) error {
	body := map[string]any{"uris": uris}
	return c.doRequest(ctx, http.MethodPost, "/playlists/"+playlistID+"/tracks", body, nil)
}

// RemoveMembership removes all occurrences of uris from a playlist (max 100 per call).
func (c *Client) RemoveMembership(ctx context.Context, playlistID string, uris []string) error {
	tracks := make([]map[string]string, 0, len(uris))
	for _, uri := range uris {
		tracks = append(tracks, map[string]string{"uri": uri})
	}
	body := map[string]any{"tracks": tracks}
	return c.doRequest(ctx, http.MethodDelete, "/playlists/"+playlistID+"/tracks", body, nil)
}

// Membership returns the ordered track URIs currently in a playlist,
// following pagination internally.
func (c *Client) Membership(ctx context.Context, playlistID string) ([]string, error) {
	var uris []string
	offset := 0
	for {
		endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d&fields=items.track.uri,next", playlistID, pageLimit, offset)
		var page paginatedPlaylistTracks
		if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if item.Track != nil {
				uris = append(uris, item.Track.URI)
			}
		}
		if page.Next == nil {
			break
		}
		offset += pageLimit
	}
	return uris, nil
}
