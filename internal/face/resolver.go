// Package face resolves a captured camera frame to an enrolled identity.
//
// Detection and embedding run on OpenCV DNN models; the accept/reject logic
// itself is pure and operates only on embedding vectors, so it can be
// exercised without any image fixtures.
package face

import (
	"fmt"
	"math"
	"sort"

	"medcab/internal/identity"
)

// Matching constants. The distance threshold is deliberately stricter than
// the 0.6 the embedding model was published with: a false accept opens a
// medication cabinet. The margin gate rejects queries where the two nearest
// enrolled identities are nearly indistinguishable.
const (
	DistanceThreshold = 0.45
	MarginMin         = 0.08
)

// Reason tags why an authentication attempt was rejected.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNoEnrolled     Reason = "NO_ENROLLED"
	ReasonNoFace         Reason = "NO_FACE"
	ReasonNoEncoding     Reason = "NO_ENCODING"
	ReasonBelowThreshold Reason = "BELOW_THRESHOLD"
	ReasonAmbiguous      Reason = "AMBIGUOUS"
)

// Guidance returns the user-facing instruction for a rejection. Raw error
// text never reaches the operator; every reason maps to an action.
func (r Reason) Guidance() string {
	switch r {
	case ReasonNoEnrolled:
		return "No registered users found in the system."
	case ReasonNoFace:
		return "No face detected. Please ensure your face is clearly visible and well-lit."
	case ReasonNoEncoding:
		return "Could not process face. Please try again."
	case ReasonBelowThreshold:
		return "Face not recognized. Please try again or re-register your face."
	case ReasonAmbiguous:
		return "Could not confidently identify face. Please try again."
	default:
		return ""
	}
}

// Outcome is the result of one authentication attempt.
type Outcome struct {
	Identity     *identity.Identity
	Confidence   float64 // (1 - best distance) * 100, one decimal
	Reason       Reason
	BestDistance float64
	Margin       float64 // second best minus best; zero with one enrollee
	FaceCount    int
	Detail       string // rationale for the audit trail
}

// Accepted reports whether the attempt resolved to an identity.
func (o Outcome) Accepted() bool {
	return o.Identity != nil
}

// match is the per-face nearest-with-margin result.
type match struct {
	identity *identity.Identity
	best     float64
	margin   float64
	reason   Reason
}

// matchOne resolves a single query embedding against the enrolled set.
func matchOne(query identity.Embedding, known identity.Snapshot) (match, error) {
	type scored struct {
		idx  int
		dist float64
	}
	distances := make([]scored, 0, len(known))
	for i := range known {
		d, err := query.Distance(known[i].Embedding)
		if err != nil {
			return match{}, fmt.Errorf("distance to %s: %w", known[i].ID, err)
		}
		distances = append(distances, scored{idx: i, dist: d})
	}
	sort.Slice(distances, func(i, j int) bool { return distances[i].dist < distances[j].dist })

	m := match{best: distances[0].dist}

	if m.best > DistanceThreshold {
		m.reason = ReasonBelowThreshold
		return m, nil
	}

	if len(distances) > 1 {
		m.margin = distances[1].dist - distances[0].dist
		// Two enrolled individuals who resemble each other: refuse to guess.
		if m.margin < MarginMin {
			m.reason = ReasonAmbiguous
			return m, nil
		}
	}

	m.identity = &known[distances[0].idx]
	return m, nil
}

// Resolve applies the accept/reject rule to every detected face embedding
// and returns a single deterministic outcome.
//
// Policy for frames with multiple faces: every face is evaluated; exactly
// one enrolled identity may pass the gates. Two passing faces that resolve
// to different identities are rejected as ambiguous, since the system
// cannot know who is standing at the cabinet.
func Resolve(queries []identity.Embedding, known identity.Snapshot) (Outcome, error) {
	enrolled := known.WithEmbeddings()
	if len(enrolled) == 0 {
		return Outcome{
			Reason: ReasonNoEnrolled,
			Detail: "no enrolled identities",
		}, nil
	}
	if len(queries) == 0 {
		return Outcome{
			Reason:    ReasonNoEncoding,
			FaceCount: 0,
			Detail:    "no embeddings extracted from frame",
		}, nil
	}

	var (
		accepted []match
		rejected []match
	)
	for _, q := range queries {
		m, err := matchOne(q, enrolled)
		if err != nil {
			return Outcome{}, err
		}
		if m.identity != nil {
			accepted = append(accepted, m)
		} else {
			rejected = append(rejected, m)
		}
	}

	switch {
	case len(accepted) == 0:
		// Report the near-miss closest to acceptance so the audit trail
		// shows how far off the attempt was.
		best := rejected[0]
		for _, m := range rejected[1:] {
			if m.dominates(best) {
				best = m
			}
		}
		return Outcome{
			Reason:       best.reason,
			BestDistance: round4(best.best),
			Margin:       round4(best.margin),
			FaceCount:    len(queries),
			Detail: fmt.Sprintf("rejected %s (best distance %.4f, margin %.4f)",
				best.reason, best.best, best.margin),
		}, nil

	case distinctIdentities(accepted) > 1:
		return Outcome{
			Reason:       ReasonAmbiguous,
			BestDistance: round4(accepted[0].best),
			FaceCount:    len(queries),
			Detail:       fmt.Sprintf("%d faces matched different identities", len(accepted)),
		}, nil
	}

	best := accepted[0]
	for _, m := range accepted[1:] {
		if m.best < best.best {
			best = m
		}
	}
	confidence := math.Round((1-best.best)*1000) / 10

	return Outcome{
		Identity:     best.identity,
		Confidence:   confidence,
		BestDistance: round4(best.best),
		Margin:       round4(best.margin),
		FaceCount:    len(queries),
		Detail: fmt.Sprintf("matched %s (distance %.4f, margin %.4f, confidence %.1f%%)",
			best.identity.Name, best.best, best.margin, confidence),
	}, nil
}

// dominates orders rejections for reporting: ambiguity outranks a plain
// miss, then smaller distance wins.
func (m match) dominates(other match) bool {
	if (m.reason == ReasonAmbiguous) != (other.reason == ReasonAmbiguous) {
		return m.reason == ReasonAmbiguous
	}
	return m.best < other.best
}

func distinctIdentities(matches []match) int {
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		seen[m.identity.ID] = struct{}{}
	}
	return len(seen)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
