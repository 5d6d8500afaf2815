package spotify

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dsoriano/cratesync/internal/shared"
	"github.com/dsoriano/cratesync/internal/state"
)

// fakeStore is an in-memory PlaylistStore that records every mutating call.
type fakeStore struct {
	names   map[string]string
	tracks  map[string][]string
	nextID  int
	calls   []string
	failOn  string
	failErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		names:  make(map[string]string),
		tracks: make(map[string][]string),
	}
}

func (f *fakeStore) record(op string) error {
	f.calls = append(f.calls, op)
	if f.failOn != "" && op == f.failOn {
		return f.failErr
	}
	return nil
}

func (f *fakeStore) addPlaylist(id, name string, uris ...string) {
	f.names[id] = name
	f.tracks[id] = append([]string{}, uris...)
}

func (f *fakeStore) PlaylistName(_ context.Context, id string) (string, error) {
	name, ok := f.names[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	return name, nil
}

func (f *fakeStore) RenamePlaylist(_ context.Context, id, name string) error {
	if err := f.record("rename"); err != nil {
		return err
	}
	f.names[id] = name
	return nil
}

func (f *fakeStore) CreatePlaylist(_ context.Context, name, _ string) (string, error) {
	if err := f.record("create"); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("pl-%d", f.nextID)
	f.names[id] = name
	f.tracks[id] = nil
	return id, nil
}

func (f *fakeStore) ReplaceMembership(_ context.Context, id string, uris []string) error {
	if err := f.record("replace"); err != nil {
		return err
	}
	f.tracks[id] = append([]string{}, uris...)
	return nil
}

func (f *fakeStore) AppendMembership(_ context.Context, id string, uris []string) error {
	if err := f.record("append"); err != nil {
		return err
	}
	f.tracks[id] = append(f.tracks[id], uris...)
	return nil
}

func (f *fakeStore) RemoveMembership(_ context.Context, id string, uris []string) error {
	if err := f.record("remove"); err != nil {
		return err
	}
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
	n := 0
	for _, op := range f.calls {
		switch op {
		case "create", "replace", "append", "remove", "rename":
			n++
		}
	}
	return n
}

func newTestReconciler(t *testing.T, store PlaylistStore) (*Reconciler, *state.Store) {
	t.Helper()
	identities := state.NewStore(filepath.Join(t.TempDir(), "playlists.json"))
	return NewReconciler(store, identities), identities
}

func uris(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("spotify:track:%04d", i)
	}
	return out
}

func TestFormatPlaylistName(t *testing.T) {
	if got := FormatPlaylistName("Peak Time", "[DJ]"); got != "[DJ] / Peak Time" {
		t.Errorf("FormatPlaylistName() = %q", got)
	}
	if got := FormatPlaylistName("Peak Time", ""); got != "Peak Time" {
		t.Errorf("FormatPlaylistName() without prefix = %q", got)
	}
}

func TestReplaceCreatesWhenUnknown(t *testing.T) {
	store := newFakeStore()
	r, identities := newTestReconciler(t, store)

	id, action, err := r.Replace(context.Background(), "Warmup", uris(3), SyncOptions{Prefix: "[DJ]"})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if action != ActionCreated {
		t.Errorf("action = %q, want %q", action, ActionCreated)
	}
	if store.names[id] != "[DJ] / Warmup" {
		t.Errorf("remote name = %q", store.names[id])
	}
	if len(store.tracks[id]) != 3 {
		t.Errorf("membership size = %d, want 3", len(store.tracks[id]))
	}

	identity, ok := identities.Get("Warmup")
	if !ok {
		t.Fatal("identity not persisted")
	}
	if identity.SpotifyID != id {
		t.Errorf("identity id = %q, want %q", identity.SpotifyID, id)
	}
}

func TestReplaceNeverAdoptsByName(t *testing.T) {
	store := newFakeStore()
	store.addPlaylist("foreign", "[DJ] / Warmup", "spotify:track:other")
	r, _ := newTestReconciler(t, store)

	id, action, err := r.Replace(context.Background(), "Warmup", uris(2), SyncOptions{Prefix: "[DJ]"})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if action != ActionCreated {
		t.Errorf("action = %q, want %q", action, ActionCreated)
	}
	if id == "foreign" {
		t.Error("adopted a same-named playlist with no stored identity")
	}
	if got := store.tracks["foreign"]; len(got) != 1 || got[0] != "spotify:track:other" {
		t.Errorf("foreign playlist mutated: %v", got)
	}
}

func TestReplaceRecreatesAfterRemoteDeletion(t *testing.T) {
	store := newFakeStore()
	r, identities := newTestReconciler(t, store)
	identities.Set("Warmup", state.Touch("gone", "[DJ] / Warmup", "lib.xml", "[DJ]", "rekordbox"))

	id, action, err := r.Replace(context.Background(), "Warmup", uris(1), SyncOptions{Prefix: "[DJ]"})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if action != ActionCreated {
		t.Errorf("action = %q, want %q", action, ActionCreated)
	}
	identity, _ := identities.Get("Warmup")
	if identity.SpotifyID != id || identity.SpotifyID == "gone" {
		t.Errorf("stale identity not replaced: %+v", identity)
	}
}

func TestReplaceRenamesOnPrefixChange(t *testing.T) {
	store := newFakeStore()
	store.addPlaylist("pl-x", "[Old] / Warmup")
	r, identities := newTestReconciler(t, store)
	identities.Set("Warmup", state.Touch("pl-x", "[Old] / Warmup", "lib.xml", "[Old]", "rekordbox"))

	_, action, err := r.Replace(context.Background(), "Warmup", uris(1), SyncOptions{Prefix: "[New]"})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if action != ActionUpdated {
		t.Errorf("action = %q, want %q", action, ActionUpdated)
	}
	if store.names["pl-x"] != "[New] / Warmup" {
		t.Errorf("remote name = %q", store.names["pl-x"])
	}
}

func TestReplaceChunksLargeMembership(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestReconciler(t, store)

	id, _, err := r.Replace(context.Background(), "Big", uris(250), SyncOptions{})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if len(store.tracks[id]) != 250 {
		t.Errorf("membership size = %d, want 250", len(store.tracks[id]))
	}

	replaces, appends := 0, 0
	for _, op := range store.calls {
		switch op {
		case "replace":
			replaces++
		case "append":
			appends++
		}
	}
	if replaces != 1 || appends != 2 {
		t.Errorf("got %d replace + %d append calls, want 1 + 2", replaces, appends)
	}
}

func TestReplaceEmptyMembershipClearsPlaylist(t *testing.T) {
	store := newFakeStore()
	store.addPlaylist("pl-x", "Warmup", "spotify:track:a")
	r, identities := newTestReconciler(t, store)
	identities.Set("Warmup", state.Touch("pl-x", "Warmup", "lib.xml", "", "rekordbox"))

	if _, _, err := r.Replace(context.Background(), "Warmup", nil, SyncOptions{}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if len(store.tracks["pl-x"]) != 0 {
		t.Errorf("playlist not cleared: %v", store.tracks["pl-x"])
	}
}

func TestIncrementalUnchangedSkipsMutation(t *testing.T) {
	store := newFakeStore()
	desired := uris(3)
	store.addPlaylist("pl-x", "Warmup", desired...)
	r, identities := newTestReconciler(t, store)
	identities.Set("Warmup", state.Touch("pl-x", "Warmup", "lib.xml", "", "rekordbox"))

	_, action, diff, err := r.Incremental(context.Background(), "Warmup", desired, SyncOptions{})
	if err != nil {
		t.Fatalf("Incremental() error = %v", err)
	}
	if action != ActionUnchanged {
		t.Errorf("action = %q, want %q", action, ActionUnchanged)
	}
	if diff.Unchanged != 3 || diff.Added != 0 || diff.Removed != 0 {
		t.Errorf("diff = %+v", diff)
	}
	if store.mutations() != 0 {
		t.Errorf("unchanged playlist was mutated: %v", store.calls)
	}

	// Identity refresh must still land so retention sees a recent sync.
	if _, ok := identities.Get("Warmup"); !ok {
		t.Error("identity dropped on unchanged sync")
	}
}

func TestIncrementalSmallDiffUpdates(t *testing.T) {
	store := newFakeStore()
	current := uris(10)
	store.addPlaylist("pl-x", "Warmup", current...)
	r, identities := newTestReconciler(t, store)
	identities.Set("Warmup", state.Touch("pl-x", "Warmup", "lib.xml", "", "rekordbox"))

	// Swap one track out of ten: 2 changes against 10 desired, under the ratio.
	desired := append([]string{}, current[:9]...)
	desired = append(desired, "spotify:track:new")

	_, action, diff, err := r.Incremental(context.Background(), "Warmup", desired, SyncOptions{})
	if err != nil {
		t.Fatalf("Incremental() error = %v", err)
	}
	if action != ActionUpdated {
		t.Errorf("action = %q, want %q", action, ActionUpdated)
	}
	if diff.Added != 1 || diff.Removed != 1 || diff.Unchanged != 9 {
		t.Errorf("diff = %+v", diff)
	}
	for _, op := range store.calls {
		if op == "replace" {
			t.Error("small diff used full replace")
		}
	}
	got := store.tracks["pl-x"]
	if len(got) != 10 || got[len(got)-1] != "spotify:track:new" {
		t.Errorf("final membership = %v", got)
	}
}

func TestIncrementalLargeDiffReplaces(t *testing.T) {
	store := newFakeStore()
	store.addPlaylist("pl-x", "Warmup", "spotify:track:a", "spotify:track:b", "spotify:track:d")
	r, identities := newTestReconciler(t, store)
	identities.Set("Warmup", state.Touch("pl-x", "Warmup", "lib.xml", "", "rekordbox"))

	// One add + one remove against three desired tracks crosses the ratio.
	desired := []string{"spotify:track:a", "spotify:track:b", "spotify:track:c"}

	_, action, diff, err := r.Incremental(context.Background(), "Warmup", desired, SyncOptions{})
	if err != nil {
		t.Fatalf("Incremental() error = %v", err)
	}
	if action != ActionReplaced {
		t.Errorf("action = %q, want %q", action, ActionReplaced)
	}
	if diff.Added != 1 || diff.Removed != 1 || diff.Unchanged != 2 {
		t.Errorf("diff = %+v", diff)
	}
	got := store.tracks["pl-x"]
	if len(got) != 3 || got[2] != "spotify:track:c" {
		t.Errorf("final membership = %v", got)
	}
}

func TestIncrementalFallsBackToCreate(t *testing.T) {
	store := newFakeStore()
	r, identities := newTestReconciler(t, store)

	id, action, diff, err := r.Incremental(context.Background(), "Warmup", uris(2), SyncOptions{})
	if err != nil {
		t.Fatalf("Incremental() error = %v", err)
	}
	if action != ActionCreated {
		t.Errorf("action = %q, want %q", action, ActionCreated)
	}
	if diff.Added != 2 {
		t.Errorf("diff = %+v", diff)
	}
	if identity, ok := identities.Get("Warmup"); !ok || identity.SpotifyID != id {
		t.Errorf("identity = %+v, ok = %v", identity, ok)
	}
}

func TestIncrementalIdempotent(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestReconciler(t, store)

	desired := uris(5)
	ctx := context.Background()
	if _, _, _, err := r.Incremental(ctx, "Warmup", desired, SyncOptions{}); err != nil {
		t.Fatalf("first Incremental() error = %v", err)
	}
	before := store.mutations()

	_, action, _, err := r.Incremental(ctx, "Warmup", desired, SyncOptions{})
	if err != nil {
		t.Fatalf("second Incremental() error = %v", err)
	}
	if action != ActionUnchanged {
		t.Errorf("second run action = %q, want %q", action, ActionUnchanged)
	}
	if store.mutations() != before {
		t.Errorf("second run issued mutations: %v", store.calls)
	}
}

func TestReplaceRecordsCreatedInDirectory(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestReconciler(t, store)

	existing := map[string]string{}
	id, _, err := r.Replace(context.Background(), "Warmup", uris(1), SyncOptions{Prefix: "[DJ]", Existing: existing})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if existing["[DJ] / Warmup"] != id {
		t.Errorf("directory not updated: %v", existing)
	}
}
