package match

import (
	"testing"

	"github.com/dsoriano/cratesync/internal/library"
)

func makeTrack(title, artist, remixer string, duration int) library.Track {
	return library.Track{
		ID:       "1",
		Title:    title,
		Artist:   artist,
		Remixer:  remixer,
		Duration: duration,
	}
}

func makeCandidate(title, artist, uri string, durationMS int) Candidate {
	return Candidate{URI: uri, Title: title, Artist: artist, DurationMS: durationMS}
}

func TestExtractEditionDescriptors(t *testing.T) {
	t.Run("extracts remix from parens", func(t *testing.T) {
		descs := ExtractEditionDescriptors("Track (Joris Voorn Remix)")
		if len(descs) != 1 || descs[0] != "joris voorn remix" {
			t.Errorf("got %v", descs)
		}
	})

	t.Run("extracts from hyphen suffix", func(t *testing.T) {
		descs := ExtractEditionDescriptors("Track - Club Mix")
		if len(descs) != 1 || descs[0] != "club mix" {
			t.Errorf("got %v", descs)
		}
	})

	t.Run("plain title yields nothing", func(t *testing.T) {
		if descs := ExtractEditionDescriptors("Plain Title"); len(descs) != 0 {
			t.Errorf("got %v", descs)
		}
	})

	t.Run("deduplicates repeated descriptor", func(t *testing.T) {
		if descs := ExtractEditionDescriptors("Track (Club Mix) - Club Mix"); len(descs) != 1 {
			t.Errorf("got %v", descs)
		}
	})

	t.Run("original mix is extracted", func(t *testing.T) {
		descs := ExtractEditionDescriptors("Track (Original Mix)")
		if len(descs) != 1 || descs[0] != "original mix" {
			t.Errorf("got %v", descs)
		}
	})

	t.Run("brackets without keyword ignored", func(t *testing.T) {
		if descs := ExtractEditionDescriptors("Track [Permanent Vacation]"); len(descs) != 0 {
			t.Errorf("got %v", descs)
		}
	})
}

func TestIsNamedVariant(t *testing.T) {
	cases := []struct {
		descriptor string
		want       bool
	}{
		{"", false},
		{"original mix", false},
		{"extended original", false},
		{"joris voorn remix", true},
		{"radio edit", true},
		{"dub mix", true},
	}
	for _, tc := range cases {
		if got := IsNamedVariant(tc.descriptor); got != tc.want {
			t.Errorf("IsNamedVariant(%q) = %v, want %v", tc.descriptor, got, tc.want)
		}
	}
}

func TestClassifyVersionMatch(t *testing.T) {
	cases := []struct {
		name      string
		track     library.Track
		candidate Candidate
		want      Edition
	}{
		{
			"both original mix",
			makeTrack("Vultora (Original Mix)", "Solomun", "", 0),
			makeCandidate("Vultora (Original Mix)", "Solomun", "uri:1", 0),
			EditionExact,
		},
		{
			"both plain",
			makeTrack("Vultora", "Solomun", "", 0),
			makeCandidate("Vultora", "Solomun", "uri:1", 0),
			EditionExact,
		},
		{
			"original mix local, plain candidate",
			makeTrack("Vultora (Original Mix)", "Solomun", "", 0),
			makeCandidate("Vultora", "Solomun", "uri:1", 0),
			EditionExact,
		},
		{
			"matching remix descriptors across forms",
			makeTrack("Track (Joris Voorn Remix)", "Artist", "", 0),
			makeCandidate("Track - Joris Voorn Remix", "Artist", "uri:1", 0),
			EditionExact,
		},
		{
			"remix local, plain candidate",
			makeTrack("Track (Joris Voorn Remix)", "Artist", "", 0),
			makeCandidate("Track", "Artist", "uri:1", 0),
			EditionFallback,
		},
		{
			"plain local, remix candidate",
			makeTrack("Track", "Artist", "", 0),
			makeCandidate("Track (Club Remix)", "Artist", "uri:1", 0),
			EditionFallback,
		},
		{
			"mismatched remixers",
			makeTrack("Track (Joris Voorn Remix)", "Artist", "Joris Voorn", 0),
			makeCandidate("Track (Someone Else Remix)", "Artist", "uri:1", 0),
			EditionFallback,
		},
		{
			"remixer credited in candidate artist",
			makeTrack("Track (Joris Voorn Remix)", "Artist", "Joris Voorn", 0),
			makeCandidate("Track (Joris Voorn Remix)", "Artist, Joris Voorn", "uri:1", 0),
			EditionExact,
		},
		{
			"named remixer absent from candidate entirely",
			makeTrack("Track (Voorn Remix)", "Artist", "Joris Voorn", 0),
			makeCandidate("Track (Voorn Remix)", "Artist", "uri:1", 0),
			EditionFallback,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyVersionMatch(tc.track, tc.candidate); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}

	t.Run("identical title and artist is exact", func(t *testing.T) {
		titles := []string{"Plain", "Track (Club Remix)", "Track - Dub Mix", "Track (Original Mix)"}
		for _, title := range titles {
			track := makeTrack(title, "Artist", "", 0)
			cand := makeCandidate(title, "Artist", "uri:1", 0)
			if got := ClassifyVersionMatch(track, cand); got != EditionExact {
				t.Errorf("self-classification of %q = %q, want exact", title, got)
			}
		}
	})
}
