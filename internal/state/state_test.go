package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStore(t *testing.T) {
	t.Run("get and set", func(t *testing.T) {
		s := NewStore(filepath.Join(t.TempDir(), "state.json"))

		if _, ok := s.Get("Peak Hour"); ok {
			t.Error("expected miss on empty store")
		}

		s.Set("Peak Hour", Identity{SpotifyID: "pl1", SpotifyName: "crates / Peak Hour", SourceType: "rekordbox"})
		identity, ok := s.Get("Peak Hour")
		if !ok || identity.SpotifyID != "pl1" {
			t.Errorf("got %+v ok=%v", identity, ok)
		}
		if s.Len() != 1 {
			t.Errorf("len = %d, want 1", s.Len())
		}
	})

	t.Run("save and load roundtrip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		s := NewStore(path)
		s.Set("Peak Hour", Identity{
			SpotifyID:   "pl1",
			SpotifyName: "crates / Peak Hour",
			SourcePath:  "Sets/Peak Hour",
			LastSynced:  "2026-03-01T12:00:00Z",
			PrefixUsed:  "crates",
			SourceType:  "rekordbox",
		})
		if err := s.Save(); err != nil {
			t.Fatalf("save: %v", err)
		}

		reloaded := NewStore(path)
		reloaded.Load()
		identity, ok := reloaded.Get("Peak Hour")
		if !ok || identity.SpotifyID != "pl1" || identity.PrefixUsed != "crates" || identity.SourceType != "rekordbox" {
			t.Errorf("got %+v ok=%v", identity, ok)
		}
	})

	t.Run("missing file loads empty", func(t *testing.T) {
		s := NewStore(filepath.Join(t.TempDir(), "absent.json"))
		s.Load()
		if s.Len() != 0 {
			t.Errorf("len = %d, want 0", s.Len())
		}
	})

	t.Run("version mismatch treated as absent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		doc := `{"version": 2, "entries": {"Peak Hour": {"spotify_id": "pl1"}}}`
		if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
			t.Fatal(err)
		}
		s := NewStore(path)
		s.Load()
		if s.Len() != 0 {
			t.Errorf("len = %d, want 0", s.Len())
		}
	})

	t.Run("touch stamps sync time", func(t *testing.T) {
		identity := Touch("pl1", "Peak Hour", "Sets/Peak Hour", "", "chart")
		if identity.LastSynced == "" {
			t.Error("expected a last-synced timestamp")
		}
		if identity.SourceType != "chart" {
			t.Errorf("source type = %q", identity.SourceType)
		}
	})
}
