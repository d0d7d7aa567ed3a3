// Package language normalizes narration language codes. Outputs store
// a BCP 47 style tag; user input arrives as anything from "en" to
// "English" and must settle on one canonical form before prompts and
// speech synthesis see it.
package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultTag is used when an output carries no language of its own.
const DefaultTag = "en"

// Normalize canonicalizes a narration language to its BCP 47 base tag.
// Word forms like "english" are resolved through the tag parser, which
// understands names only as tags, so a small alias table covers the
// common spoken-word inputs first. Unrecognized input returns "".
func Normalize(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return ""
	}
	if alias, ok := wordAliases[input]; ok {
		input = alias
	}
	tag, err := language.Parse(input)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	return base.String()
}

// DisplayName returns the English name for a normalized language tag,
// for CLI views and notification text. Unrecognized input comes back
// uppercased so the raw value stays visible.
func DisplayName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "Unknown"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToUpper(code)
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		return strings.ToUpper(code)
	}
	return name
}

var wordAliases = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"polish":     "pl",
}
