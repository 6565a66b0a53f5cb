// Package bottle reads medication bottle labels: OCR text extraction with
// aggressive preprocessing, then a tiered search of the extracted text
// against the catalog names. The text search itself is pure so it can be
// tested without Tesseract.
package bottle

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"medcab/internal/catalog"
)

// Match tiers, best first. Scores are fixed per tier except fuzzy, which
// scales with the similarity ratio and caps below every exact tier.
const (
	scoreExactName   = 95.0
	scoreExactAlt    = 90.0
	scoreAllWords    = 85.0
	scoreFirstWord   = 75.0
	fuzzyRatioFloor  = 0.7
	fuzzyScoreWeight = 70.0
)

// MinReadableChars is the shortest OCR output still worth searching.
// Anything below is reported as unreadable, which calls for a retake, not
// a catalog addition.
const MinReadableChars = 3

// maxSecondaryMatches caps the alternates returned alongside the primary.
const maxSecondaryMatches = 3

// TextMatch is one catalog candidate found in OCR text.
type TextMatch struct {
	Entry  catalog.Entry `json:"entry"`
	Score  float64       `json:"score"`
	Method string        `json:"method"`
}

// dosagePattern matches tokens like "500mg", "12.5 ml", "2 units".
var dosagePattern = regexp.MustCompile(`(?i)(\d+\.?\d*)\s*(mg|mcg|g|ml|units?)`)

// SearchText scores every catalog entry against an OCR text block and
// returns candidates sorted best first. Per entry only the highest-scoring
// tier counts.
func SearchText(text string, snapshot catalog.Snapshot) []TextMatch {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	clean := strings.ToLower(text)
	clean = strings.Join(strings.Fields(clean), " ")
	lines := strings.Split(strings.ToLower(text), "\n")

	var matches []TextMatch
	for _, entry := range snapshot {
		if m, ok := scoreEntry(entry, clean, lines); ok {
			matches = append(matches, m)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

func scoreEntry(entry catalog.Entry, clean string, lines []string) (TextMatch, bool) {
	name := strings.ToLower(strings.TrimSpace(entry.Name))
	if name == "" {
		return TextMatch{}, false
	}
	alt := strings.ToLower(strings.TrimSpace(entry.GenericName))
	words := strings.Fields(name)

	switch {
	case strings.Contains(clean, name):
		return TextMatch{Entry: entry, Score: scoreExactName, Method: "exact match"}, true

	case alt != "" && strings.Contains(clean, alt):
		return TextMatch{Entry: entry, Score: scoreExactAlt, Method: "generic name exact"}, true

	case len(words) > 1 && allWordsPresent(words, clean):
		return TextMatch{Entry: entry, Score: scoreAllWords, Method: "all words present"}, true

	case len(words) > 1 && strings.Contains(clean, words[0]):
		// The leading word carries the medication identity in compound
		// names ("penicillin" in "Penicillin V").
		return TextMatch{Entry: entry, Score: scoreFirstWord,
			Method: fmt.Sprintf("main word %q", words[0])}, true
	}

	// Last resort: best per-line fuzzy similarity against the full name.
	if ratio := bestLineRatio(name, lines); ratio > fuzzyRatioFloor {
		return TextMatch{Entry: entry, Score: ratio * fuzzyScoreWeight,
			Method: fmt.Sprintf("fuzzy match (%.0f%%)", ratio*100)}, true
	}
	return TextMatch{}, false
}

func allWordsPresent(words []string, text string) bool {
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

func bestLineRatio(name string, lines []string) float64 {
	best := 0.0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < MinReadableChars {
			continue
		}
		ratio := sequenceRatio(name, line)
		if ratio > best {
			best = ratio
		}
	}
	return best
}

// sequenceRatio is the difflib SequenceMatcher similarity of two strings.
func sequenceRatio(a, b string) float64 {
	sm := difflib.NewMatcher(splitChars(a), splitChars(b))
	return sm.Ratio()
}

func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// ExtractDosage pulls the first dosage token from OCR text, normalized as
// "<number> <unit>", or empty when none is present.
func ExtractDosage(text string) string {
	m := dosagePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s %s", m[1], strings.ToLower(m[2]))
}
