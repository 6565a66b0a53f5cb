// Package recognize identifies a physical pill against the catalog using a
// priority cascade of independent strategies: trained classifier, then
// geometric/color feature matching, then reference-image similarity. The
// most discriminating method runs first and the cascade short-circuits on
// the first confident result.
package recognize

import (
	"medcab/internal/catalog"
)

// Method names the strategy that produced a result.
type Method string

const (
	MethodClassifier Method = "CLASSIFIER"
	MethodFeature    Method = "FEATURE"
	MethodSimilarity Method = "SIMILARITY"
	MethodOCR        Method = "OCR"
	MethodNone       Method = "NONE"
)

// Match is one candidate catalog entry with a method-specific confidence on
// a 0-100 scale and a human-readable rationale for the audit trail.
type Match struct {
	Entry      catalog.Entry `json:"entry"`
	Confidence float64       `json:"confidence"`
	Rationale  string        `json:"rationale"`
}

// Result is the transient outcome of one identification attempt. It is
// never persisted by this package; the caller hands it to the audit log.
type Result struct {
	Method   Method        `json:"method"`
	Matches  []Match       `json:"matches,omitempty"`
	Features *PillFeatures `json:"features,omitempty"`
}

// Best returns the primary (highest confidence) match, or nil.
func (r Result) Best() *Match {
	if len(r.Matches) == 0 {
		return nil
	}
	return &r.Matches[0]
}

// Found reports whether any strategy produced a match.
func (r Result) Found() bool {
	return r.Method != MethodNone && len(r.Matches) > 0
}
