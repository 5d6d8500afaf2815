package match

import (
	"regexp"
	"strings"

	"github.com/dsoriano/cratesync/internal/library"
)

// descriptorSimilarityFloor is the minimum fuzzy similarity between two
// edition descriptors for them to count as the same edition.
const descriptorSimilarityFloor = 80

var (
	parenSpanRe      = regexp.MustCompile(`\(([^)]*)\)`)
	bracketSpanRe    = regexp.MustCompile(`\[([^\]]*)\]`)
	hyphenSuffixRe   = regexp.MustCompile(`(?i)\s+-\s+([^-]*\b(?:mix|remix|edit|version|dub)\b.*)$`)
	editionKeywordRe = regexp.MustCompile(`(?i)\b(mix|remix|edit|version|dub|extended|radio|instrumental|short)\b`)
)

// ExtractEditionDescriptors returns the normalized mix/version descriptors
// found in a title, in order of appearance, deduplicated. A plain title
// yields an empty slice.
func ExtractEditionDescriptors(title string) []string {
	var spans []string
	for _, m := range parenSpanRe.FindAllStringSubmatch(title, -1) {
		spans = append(spans, m[1])
	}
	for _, m := range bracketSpanRe.FindAllStringSubmatch(title, -1) {
		spans = append(spans, m[1])
	}
	if m := hyphenSuffixRe.FindStringSubmatch(title); m != nil {
		spans = append(spans, m[1])
	}

	seen := make(map[string]bool)
	var descriptors []string
	for _, span := range spans {
		if !editionKeywordRe.MatchString(span) {
			continue
		}
		desc := Normalize(span)
		if desc == "" || seen[desc] {
			continue
		}
		seen[desc] = true
		descriptors = append(descriptors, desc)
	}
	return descriptors
}

// firstDescriptor returns the first edition descriptor of a title, or "" if none.
func firstDescriptor(title string) string {
	descs := ExtractEditionDescriptors(title)
	if len(descs) == 0 {
		return ""
	}
	return descs[0]
}

// IsNamedVariant reports whether a descriptor names a non-default edition.
// The empty descriptor and anything containing "original" count as the
// implicit default edition.
func IsNamedVariant(descriptor string) bool {
	if descriptor == "" {
		return false
	}
	return !strings.Contains(descriptor, "original")
}

// ClassifyVersionMatch decides whether a candidate is the same edition as the
// local track or a substitute.
//
// The rule is asymmetric: catalogs routinely omit "Original Mix" but always
// name remixes and edits explicitly, so a missing descriptor on the candidate
// is only informative when the local side expects a named variant.
func ClassifyVersionMatch(local library.Track, candidate Candidate) Edition {
	localDesc := firstDescriptor(local.Title)
	candDescs := ExtractEditionDescriptors(candidate.Title)
	candDesc := ""
	if len(candDescs) > 0 {
		candDesc = candDescs[0]
	}

	if !IsNamedVariant(localDesc) {
		if IsNamedVariant(candDesc) {
			return EditionFallback
		}
		return EditionExact
	}

	if candDesc == "" {
		return EditionFallback
	}
	if tokenSortRatio(localDesc, candDesc) < descriptorSimilarityFloor {
		return EditionFallback
	}
	// A candidate bundling multiple edition tags must agree on all of them.
	for _, extra := range candDescs[1:] {
		if tokenSortRatio(extra, localDesc) < descriptorSimilarityFloor {
			return EditionFallback
		}
	}
	if local.Remixer != "" {
		combined := Normalize(candidate.Artist + " " + candidate.Title)
		if !strings.Contains(combined, Normalize(local.Remixer)) {
			return EditionFallback
		}
	}
	return EditionExact
}
