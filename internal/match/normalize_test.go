package match

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"strips surrounding whitespace", "  hello  ", "hello"},
		{"folds accents", "Für", "fur"},
		{"folds circumflex", "Âme", "ame"},
		{"removes two letter country tag", "Artist (UK)", "artist"},
		{"removes three letter country tag", "Artist (GER)", "artist"},
		{"removes bracket tag", "Track [Permanent Vacation]", "track"},
		{"replaces x separator", "Artist1 x Artist2", "artist1, artist2"},
		{"drops feat credit", "Track feat. Someone", "track"},
		{"drops ft credit", "Track ft. Someone", "track"},
		{"keeps ft inside words", "soft. landing", "soft. landing"},
		{"collapses internal whitespace", "hello   world", "hello world"},
		{"empty string", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.input); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}

	t.Run("idempotent", func(t *testing.T) {
		inputs := []string{
			"Für Elise (UK) [Label] feat. Someone",
			"Artist1 x Artist2",
			"  plain   title  ",
			"",
		}
		for _, input := range inputs {
			once := Normalize(input)
			if twice := Normalize(once); twice != once {
				t.Errorf("Normalize not idempotent for %q: %q != %q", input, once, twice)
			}
		}
	})
}

func TestStripEditionInfo(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"original mix parens", "Vultora (Original Mix)", "Vultora"},
		{"remix parens", "Track (Joris Voorn Remix)", "Track"},
		{"edit parens", "Track (Radio Edit)", "Track"},
		{"version parens", "Track (Extended Version)", "Track"},
		{"bracket tag", "Today [Permanent Vacation]", "Today"},
		{"hyphen remix suffix", "What Is Real - Deep in the Playa Mix", "What Is Real"},
		{"plain title unchanged", "Plain Title", "Plain Title"},
		{"case insensitive", "Track (CLUB REMIX)", "Track"},
		{"non-edition parens kept", "Time (Is on My Side)", "Time (Is on My Side)"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripEditionInfo(tc.input); got != tc.want {
				t.Errorf("StripEditionInfo(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}

	t.Run("idempotent on stripped titles", func(t *testing.T) {
		for _, input := range []string{"Vultora (Original Mix)", "Track - Club Mix", "Plain"} {
			once := StripEditionInfo(input)
			if twice := StripEditionInfo(once); twice != once {
				t.Errorf("StripEditionInfo not idempotent for %q: %q != %q", input, once, twice)
			}
		}
	})
}
