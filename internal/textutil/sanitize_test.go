package textutil_test

import (
	"testing"

	"loom/internal/textutil"
)

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"scene_01.png", "scene_01.png"},
		{"  a/b:c*d  ", "a-b-c-d"},
		{`what?"<>|`, "what"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := textutil.SanitizeFileName(tc.in); got != tc.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Images", "images"},
		{"story outline", "story_outline"},
		{"--__", "unknown"},
		{"", "unknown"},
		{"bgm-v2", "bgm-v2"},
	}
	for _, tc := range cases {
		if got := textutil.SanitizeToken(tc.in); got != tc.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
