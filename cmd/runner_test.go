package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/dsoriano/cratesync/internal/library"
	"github.com/dsoriano/cratesync/internal/match"
	"github.com/dsoriano/cratesync/internal/shared"
	"github.com/dsoriano/cratesync/internal/state"
)

const testLibraryXML = `<?xml version="1.0" encoding="UTF-8"?>
<DJ_PLAYLISTS Version="1.0.0">
  <COLLECTION Entries="3">
    <TRACK TrackID="1" Name="Vultora" Artist="Space 92" Album="Vultora EP" TotalTime="372" Genre="Techno"/>
    <TRACK TrackID="2" Name="PURA VIDA" Artist="HI-LO" Album="" TotalTime="330" Genre="Techno"/>
    <TRACK TrackID="3" Name="White Label Edit" Artist="Unknown Artist" TotalTime="200"/>
  </COLLECTION>
  <PLAYLISTS>
    <NODE Type="0" Name="ROOT">
      <NODE Type="0" Name="Techno">
        <NODE Type="1" Name="Peak Time" Entries="3">
          <TRACK Key="1"/>
          <TRACK Key="2"/>
          <TRACK Key="3"/>
        </NODE>
        <NODE Type="1" Name="Warmup" Entries="1">
          <TRACK Key="2"/>
        </NODE>
      </NODE>
    </NODE>
  </PLAYLISTS>
</DJ_PLAYLISTS>`

// libidSearcher answers searches from a fixed catalog, returning a perfect
// candidate for known tracks and nothing otherwise.
type libidSearcher struct {
	searches int
}

func (s *libidSearcher) Search(_ context.Context, artist, title, _ string, _ bool) ([]match.Candidate, error) {
	s.searches++
	known := []match.Candidate{
		{URI: "spotify:track:vultora", Title: "Vultora", Artist: "Space 92", DurationMS: 372000},
		{URI: "spotify:track:puravida", Title: "PURA VIDA", Artist: "HI-LO", DurationMS: 330000},
	}
	query := strings.ToLower(artist + " " + title)
	var results []match.Candidate
	for _, c := range known {
		if strings.Contains(query, strings.ToLower(c.Artist)) && strings.Contains(query, strings.ToLower(c.Title)) {
			results = append(results, c)
		}
	}
	return results, nil
}

// fakeStore is an in-memory PlaylistStore tracking every mutating call.
type fakeStore struct {
	names  map[string]string
	tracks map[string][]string
	nextID int
	calls  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{names: make(map[string]string), tracks: make(map[string][]string)}
}

func (f *fakeStore) PlaylistName(_ context.Context, id string) (string, error) {
	name, ok := f.names[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	return name, nil
}

func (f *fakeStore) RenamePlaylist(_ context.Context, id, name string) error {
	f.calls = append(f.calls, "rename")
	f.names[id] = name
	return nil
}

func (f *fakeStore) CreatePlaylist(_ context.Context, name, _ string) (string, error) {
	f.calls = append(f.calls, "create")
	f.nextID++
	id := fmt.Sprintf("pl-%d", f.nextID)
	f.names[id] = name
	return id, nil
}

func (f *fakeStore) ReplaceMembership(_ context.Context, id string, uris []string) error {
	f.calls = append(f.calls, "replace")
	f.tracks[id] = append([]string{}, uris...)
	return nil
}

func (f *fakeStore) AppendMembership(_ context.Context, id string, uris []string) error {
	f.calls = append(f.calls, "append")
	f.tracks[id] = append(f.tracks[id], uris...)
	return nil
}

func (f *fakeStore) RemoveMembership(_ context.Context, id string, uris []string) error {
	f.calls = append(f.calls, "remove")
	drop := make(map[string]bool, len(uris))
	for _, uri := range uris {
		drop[uri] = true
	}
	var kept []string
	for _, uri := range f.tracks[id] {
		if !drop[uri] {
			kept = append(kept, uri)
		}
	}
	f.tracks[id] = kept
	return nil
}

func (f *fakeStore) Membership(_ context.Context, id string) ([]string, error) {
	return append([]string{}, f.tracks[id]...), nil
}

func (f *fakeStore) mutations() int {
	return len(f.calls)
}

// testRunner builds a Runner wired to fakes and throwaway state paths.
func testRunner(t *testing.T, searcher match.Searcher) (*Runner, *fakeStore, *strings.Builder) {
	t.Helper()
	dir := t.TempDir()

	config := shared.DefaultConfig()
	config.Matcher.CachePath = filepath.Join(dir, "cache.json")
	config.Sync.StatePath = filepath.Join(dir, "playlists.json")
	config.Sync.Prefix = "[DJ]"
	config.Database.Path = filepath.Join(dir, "history.db")

	store := newFakeStore()
	var out strings.Builder
	runner := NewRunner(RunnerOpts{
		Config:   config,
		Output:   &out,
		Searcher: searcher,
		Store:    store,
	})
	return runner, store, &out
}

func writeTestLibrary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.xml")
	if err := os.WriteFile(path, []byte(testLibraryXML), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func runApp(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "cratesync", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"cratesync"}, args...))
}

func TestSelectGroupings(t *testing.T) {
	groupings := []library.Grouping{
		{Name: "Peak Time", Path: "Techno/Peak Time"},
		{Name: "Warmup", Path: "Techno/Warmup"},
	}

	all, err := selectGroupings(groupings, nil)
	if err != nil || len(all) != 2 {
		t.Errorf("no filter: %v, %v", all, err)
	}

	byName, err := selectGroupings(groupings, []string{"Warmup"})
	if err != nil || len(byName) != 1 || byName[0].Name != "Warmup" {
		t.Errorf("by name: %v, %v", byName, err)
	}

	byPath, err := selectGroupings(groupings, []string{"Techno/Peak Time"})
	if err != nil || len(byPath) != 1 || byPath[0].Name != "Peak Time" {
		t.Errorf("by path: %v, %v", byPath, err)
	}

	if _, err := selectGroupings(groupings, []string{"Missing"}); err == nil {
		t.Error("missing playlist did not error")
	}
}

func TestSyncDryRunTouchesNothing(t *testing.T) {
	runner, store, out := testRunner(t, &libidSearcher{})
	xmlPath := writeTestLibrary(t)

	if err := runApp(t, runner, "sync", xmlPath, "--dry-run"); err != nil {
		t.Fatalf("sync --dry-run error = %v", err)
	}

	if store.mutations() != 0 {
		t.Errorf("dry run mutated the store: %v", store.calls)
	}
	text := out.String()
	if !strings.Contains(text, "Techno/Peak Time") || !strings.Contains(text, "dry-run") {
		t.Errorf("report output:\n%s", text)
	}
	if !strings.Contains(text, "Unknown Artist - White Label Edit") {
		t.Errorf("unmatched track missing from report:\n%s", text)
	}

	// Dry runs still warm the cache.
	if _, err := os.Stat(runner.config.Matcher.CachePath); err != nil {
		t.Errorf("cache not persisted: %v", err)
	}
}

func TestSyncCreatesPlaylists(t *testing.T) {
	runner, store, _ := testRunner(t, &libidSearcher{})
	xmlPath := writeTestLibrary(t)

	if err := runApp(t, runner, "sync", xmlPath); err != nil {
		t.Fatalf("sync error = %v", err)
	}

	var peakID string
	for id, name := range store.names {
		if name == "[DJ] / Peak Time" {
			peakID = id
		}
	}
	if peakID == "" {
		t.Fatalf("Peak Time playlist not created: %v", store.names)
	}
	got := store.tracks[peakID]
	if len(got) != 2 {
		t.Errorf("membership = %v, want the 2 matchable tracks", got)
	}

	identities := state.NewStore(runner.config.Sync.StatePath)
	identities.Load()
	if _, ok := identities.Get("Peak Time"); !ok {
		t.Error("identity not persisted")
	}
	if _, ok := identities.Get("Warmup"); !ok {
		t.Error("second playlist identity not persisted")
	}
}

func TestSyncSecondRunHitsCache(t *testing.T) {
	searcher := &libidSearcher{}
	runner, _, _ := testRunner(t, searcher)
	xmlPath := writeTestLibrary(t)

	if err := runApp(t, runner, "sync", xmlPath, "--dry-run"); err != nil {
		t.Fatalf("first run error = %v", err)
	}
	callsAfterFirst := searcher.searches

	if err := runApp(t, runner, "sync", xmlPath, "--dry-run"); err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if searcher.searches != callsAfterFirst {
		t.Errorf("second run searched the API %d more times", searcher.searches-callsAfterFirst)
	}
}

func TestSyncPlaylistFilter(t *testing.T) {
	runner, store, _ := testRunner(t, &libidSearcher{})
	xmlPath := writeTestLibrary(t)

	if err := runApp(t, runner, "sync", xmlPath, "--playlist", "Warmup"); err != nil {
		t.Fatalf("sync error = %v", err)
	}
	if len(store.names) != 1 {
		t.Errorf("playlists created = %v, want only Warmup", store.names)
	}
}

func TestSyncMissingLibrary(t *testing.T) {
	runner, _, _ := testRunner(t, &libidSearcher{})
	err := runApp(t, runner, "sync", filepath.Join(t.TempDir(), "absent.xml"))
	if err == nil {
		t.Fatal("missing library did not error")
	}
}

func TestRequireStore(t *testing.T) {
	runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig(), Output: &strings.Builder{}})
	if err := runner.requireStore(); err == nil {
		t.Error("unauthenticated runner passed requireStore")
	}
}

func TestCacheStatsAndClear(t *testing.T) {
	runner, _, out := testRunner(t, &libidSearcher{})
	xmlPath := writeTestLibrary(t)

	if err := runApp(t, runner, "sync", xmlPath, "--dry-run"); err != nil {
		t.Fatalf("sync error = %v", err)
	}

	out.Reset()
	if err := runApp(t, runner, "cache", "stats"); err != nil {
		t.Fatalf("cache stats error = %v", err)
	}
	if !strings.Contains(out.String(), "Entries: 3 (2 matched, 1 failed)") {
		t.Errorf("stats output:\n%s", out.String())
	}

	out.Reset()
	if err := runApp(t, runner, "cache", "clear"); err != nil {
		t.Fatalf("cache clear error = %v", err)
	}
	if _, err := os.Stat(runner.config.Matcher.CachePath); !os.IsNotExist(err) {
		t.Error("cache file still present after clear")
	}
}

func TestHistoryRecordsRuns(t *testing.T) {
	runner, _, out := testRunner(t, &libidSearcher{})
	xmlPath := writeTestLibrary(t)

	if err := runApp(t, runner, "sync", xmlPath); err != nil {
		t.Fatalf("sync error = %v", err)
	}

	out.Reset()
	if err := runApp(t, runner, "history"); err != nil {
		t.Fatalf("history error = %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "rekordbox") || !strings.Contains(text, "live") {
		t.Errorf("history output:\n%s", text)
	}
}

func TestListPlaylists(t *testing.T) {
	runner, _, out := testRunner(t, &libidSearcher{})
	xmlPath := writeTestLibrary(t)

	if err := runApp(t, runner, "list", xmlPath); err != nil {
		t.Fatalf("list error = %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "3 tracks, 2 playlists") {
		t.Errorf("list output:\n%s", text)
	}
	if !strings.Contains(text, "Peak Time (3 tracks)") {
		t.Errorf("list output:\n%s", text)
	}
}
