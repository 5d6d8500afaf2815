// package match implements fuzzy matching between local catalog tracks and
// Spotify search results: text normalization, mix/version classification,
// candidate scoring, the multi-strategy search orchestrator, and the
// persistent match cache.
package match

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	countryTagRe = regexp.MustCompile(`\s*\([a-z]{2,3}\)`)
	bracketTagRe = regexp.MustCompile(`\s*\[[^\]]*\]`)
	featRe       = regexp.MustCompile(`\s*\b(feat\.?|ft\.?)\b.*$`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	// accentFolder decomposes and drops combining marks, e.g. "Âme" -> "Ame".
	accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Normalize canonicalizes a free-text title or artist string for comparison
// and cache keying: accents folded, lowercased, country-code and bracket tags
// removed, " x " artist separators rewritten, featuring credits dropped, and
// whitespace collapsed. Total and idempotent; empty in, empty out.
func Normalize(text string) string {
	if folded, _, err := transform.String(accentFolder, text); err == nil {
		text = folded
	}
	text = strings.TrimSpace(strings.ToLower(text))
	text = countryTagRe.ReplaceAllString(text, "")
	text = bracketTagRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, " x ", ", ")
	text = featRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var (
	parenEditionRe  = regexp.MustCompile(`(?i)\s*\([^)]*\b(mix|remix|edit|version|dub|extended|radio|instrumental|short)\b[^)]*\)`)
	hyphenEditionRe = regexp.MustCompile(`(?i)\s+-\s+[^-]*\b(mix|remix|edit|version|dub)\b.*$`)
)

// StripEditionInfo removes mix/remix/edit descriptors from a title, e.g.
// "Vultora (Original Mix)" -> "Vultora" and
// "What Is Real - Deep in the Playa Mix" -> "What Is Real".
// Idempotent on titles without a descriptor.
func StripEditionInfo(title string) string {
	title = parenEditionRe.ReplaceAllString(title, "")
	title = bracketTagRe.ReplaceAllString(title, "")
	title = hyphenEditionRe.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}
