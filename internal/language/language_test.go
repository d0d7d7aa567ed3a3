package language_test

import (
	"testing"

	"loom/internal/language"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"english", "en"},
		{"  Japanese ", "ja"},
		{"pt-BR", "pt"},
		{"", ""},
		{"!!??", ""},
	}
	for _, tc := range cases {
		if got := language.Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := language.DisplayName("en"); got != "English" {
		t.Fatalf("DisplayName(en) = %q", got)
	}
	if got := language.DisplayName(""); got != "Unknown" {
		t.Fatalf("DisplayName(empty) = %q", got)
	}
	if got := language.DisplayName("zz-bogus"); got == "" {
		t.Fatal("DisplayName should never return empty for non-empty input")
	}
}
