package shared

import "testing"

func TestFormatDuration(t *testing.T) {
	tc := []struct {
		name    string
		seconds int
		want    string
	}{
		{
			name:    "minutes and seconds",
			seconds: 372,
			want:    "6:12",
		},
		{
			name:    "zero padded seconds",
			seconds: 61,
			want:    "1:01",
		},
		{
			name:    "past the hour",
			seconds: 3725,
			want:    "1:02:05",
		},
		{
			name:    "zero is unknown",
			seconds: 0,
			want:    "-",
		},
		{
			name:    "negative is unknown",
			seconds: -5,
			want:    "-",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatDuration(tt.seconds)
			if got != tt.want {
				t.Errorf("FormatDuration(%d) = %v, want %v", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestFormatWait(t *testing.T) {
	tc := []struct {
		name    string
		seconds int
		want    string
	}{
		{
			name:    "seconds only",
			seconds: 45,
			want:    "45s",
		},
		{
			name:    "minutes and seconds",
			seconds: 150,
			want:    "2m 30s",
		},
		{
			name:    "hours and minutes",
			seconds: 3900,
			want:    "1h 5m",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatWait(tt.seconds)
			if got != tt.want {
				t.Errorf("FormatWait(%d) = %v, want %v", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()

	if a == "" || b == "" {
		t.Fatal("GenerateID returned an empty string")
	}

	if a == b {
		t.Errorf("GenerateID returned duplicate ids: %s", a)
	}

	if len(a) != 36 {
		t.Errorf("expected uuid string of length 36, got %d (%s)", len(a), a)
	}
}
