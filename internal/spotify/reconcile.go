package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/dsoriano/cratesync/internal/shared"
	"github.com/dsoriano/cratesync/internal/state"
)

// chunkSize is the largest membership mutation the API accepts per call.
const chunkSize = 100

// replaceRatio is the change fraction above which an incremental update
// degenerates to a full replace.
const replaceRatio = 0.5

// PlaylistStore is the remote surface the reconciler mutates. *Client
// satisfies it; tests substitute an in-memory fake.
type PlaylistStore interface {
	PlaylistName(ctx context.Context, playlistID string) (string, error)
	RenamePlaylist(ctx context.Context, playlistID, name string) error
	CreatePlaylist(ctx context.Context, name, description string) (string, error)
	ReplaceMembership(ctx context.Context, playlistID string, uris []string) error
	AppendMembership(ctx context.Context, playlistID string, uris []string) error
	RemoveMembership(ctx context.Context, playlistID string, uris []string) error
	Membership(ctx context.Context, playlistID string) ([]string, error)
}

// Action describes what the reconciler did to a playlist.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionReplaced  Action = "replaced"
	ActionUnchanged Action = "unchanged"
)

// Diff summarizes an incremental reconciliation.
type Diff struct {
	Added     int
	Removed   int
	Unchanged int
}

// SyncOptions carries naming and provenance for a reconciliation.
type SyncOptions struct {
	Prefix      string
	Description string
	SourcePath  string
	SourceType  string

	// Existing is the best-effort owned-playlist directory. Created playlists
	// are recorded into it so later groupings in the same run see them. It is
	// never consulted to resolve a playlist; only stored identities are.
	Existing map[string]string
}

// Reconciler drives managed Spotify playlists toward desired memberships,
// resolving each playlist through the identity store alone. A remote playlist
// whose name happens to collide with a local grouping is never adopted.
type Reconciler struct {
	store      PlaylistStore
	identities *state.Store
}

func NewReconciler(store PlaylistStore, identities *state.Store) *Reconciler {
	return &Reconciler{store: store, identities: identities}
}

// FormatPlaylistName builds the remote display name for a local grouping.
func FormatPlaylistName(name, prefix string) string {
	if prefix == "" {
		return name
	}
	return fmt.Sprintf("%s / %s", prefix, name)
}

// resolve looks up the stored identity for a grouping and verifies the
// remote playlist still exists. A deleted playlist resolves to nothing; the
// stale identity is overwritten on the next successful sync.
func (r *Reconciler) resolve(ctx context.Context, name string) (string, bool, error) {
	identity, ok := r.identities.Get(name)
	if !ok {
		return "", false, nil
	}
	if _, err := r.store.PlaylistName(ctx, identity.SpotifyID); err != nil {
		if errors.Is(err, shared.ErrPlaylistNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return identity.SpotifyID, true, nil
}

// renameIfNeeded brings the remote display name in line with the configured
// prefix without touching membership.
func (r *Reconciler) renameIfNeeded(ctx context.Context, playlistID, want string) error {
	current, err := r.store.PlaylistName(ctx, playlistID)
	if err != nil {
		return err
	}
	if current == want {
		return nil
	}
	return r.store.RenamePlaylist(ctx, playlistID, want)
}

// setMembership replaces a playlist's full membership, chunking past the
// per-call limit. An empty uris clears the playlist.
func (r *Reconciler) setMembership(ctx context.Context, playlistID string, uris []string) error {
	head := uris
	if len(head) > chunkSize {
		head = uris[:chunkSize]
	}
	if err := r.store.ReplaceMembership(ctx, playlistID, head); err != nil {
		return err
	}
	for offset := chunkSize; offset < len(uris); offset += chunkSize {
		end := offset + chunkSize
		if end > len(uris) {
			end = len(uris)
		}
		if err := r.store.AppendMembership(ctx, playlistID, uris[offset:end]); err != nil {
			return err
		}
	}
	return nil
}

// saveIdentity records (or refreshes) the grouping→playlist binding with a
// fresh sync timestamp.
func (r *Reconciler) saveIdentity(name, playlistID, remoteName string, opts SyncOptions) {
	sourcePath := opts.SourcePath
	if sourcePath == "" {
		sourcePath = name
	}
	r.identities.Set(name, state.Touch(playlistID, remoteName, sourcePath, opts.Prefix, opts.SourceType))
}

// Replace reconciles a grouping by full replacement: the remote playlist
// ends up with exactly the desired membership in the desired order.
func (r *Reconciler) Replace(ctx context.Context, name string, desired []string, opts SyncOptions) (string, Action, error) {
	playlistID, found, err := r.resolve(ctx, name)
	if err != nil {
		return "", "", err
	}

	remoteName := FormatPlaylistName(name, opts.Prefix)
	action := ActionUpdated
	if found {
		if err := r.renameIfNeeded(ctx, playlistID, remoteName); err != nil {
			return "", "", err
		}
	} else {
		playlistID, err = r.store.CreatePlaylist(ctx, remoteName, opts.Description)
		if err != nil {
			return "", "", err
		}
		action = ActionCreated
		if opts.Existing != nil {
			opts.Existing[remoteName] = playlistID
		}
	}

	if err := r.setMembership(ctx, playlistID, desired); err != nil {
		return "", "", err
	}

	r.saveIdentity(name, playlistID, remoteName, opts)
	return playlistID, action, nil
}

// Incremental reconciles a grouping by diffing against current remote
// membership. Unchanged playlists are not mutated at all; a change ratio
// above half the desired size degenerates to a full replace, which also
// restores ordering in one pass.
func (r *Reconciler) Incremental(ctx context.Context, name string, desired []string, opts SyncOptions) (string, Action, Diff, error) {
	playlistID, found, err := r.resolve(ctx, name)
	if err != nil {
		return "", "", Diff{}, err
	}
	if !found {
		playlistID, action, err := r.Replace(ctx, name, desired, opts)
		return playlistID, action, Diff{Added: len(desired)}, err
	}

	remoteName := FormatPlaylistName(name, opts.Prefix)
	if err := r.renameIfNeeded(ctx, playlistID, remoteName); err != nil {
		return "", "", Diff{}, err
	}

	current, err := r.store.Membership(ctx, playlistID)
	if err != nil {
		return "", "", Diff{}, err
	}

	desiredSet := make(map[string]bool, len(desired))
	for _, uri := range desired {
		desiredSet[uri] = true
	}
	currentSet := make(map[string]bool, len(current))
	for _, uri := range current {
		currentSet[uri] = true
	}

	var toRemove, toAdd []string
	for _, uri := range current {
		if !desiredSet[uri] && !contains(toRemove, uri) {
			toRemove = append(toRemove, uri)
		}
	}
	unchanged := 0
	for _, uri := range desired {
		if currentSet[uri] {
			unchanged++
		} else {
			toAdd = append(toAdd, uri)
		}
	}

	diff := Diff{Added: len(toAdd), Removed: len(toRemove), Unchanged: unchanged}

	if len(toAdd) == 0 && len(toRemove) == 0 {
		r.saveIdentity(name, playlistID, remoteName, opts)
		return playlistID, ActionUnchanged, diff, nil
	}

	if float64(len(toAdd)+len(toRemove)) > replaceRatio*float64(len(desired)) {
		if err := r.setMembership(ctx, playlistID, desired); err != nil {
			return "", "", Diff{}, err
		}
		r.saveIdentity(name, playlistID, remoteName, opts)
		return playlistID, ActionReplaced, diff, nil
	}

	for offset := 0; offset < len(toRemove); offset += chunkSize {
		end := offset + chunkSize
		if end > len(toRemove) {
			end = len(toRemove)
		}
		if err := r.store.RemoveMembership(ctx, playlistID, toRemove[offset:end]); err != nil {
			return "", "", Diff{}, err
		}
	}
	for offset := 0; offset < len(toAdd); offset += chunkSize {
		end := offset + chunkSize
		if end > len(toAdd) {
			end = len(toAdd)
		}
		if err := r.store.AppendMembership(ctx, playlistID, toAdd[offset:end]); err != nil {
			return "", "", Diff{}, err
		}
	}

	r.saveIdentity(name, playlistID, remoteName, opts)
	return playlistID, ActionUpdated, diff, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
