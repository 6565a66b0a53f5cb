package face

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"medcab/internal/identity"
)

// Identifier runs the full frame-to-identity pipeline: detect, embed,
// resolve. It holds no state between calls; concurrent use is safe as long
// as the underlying OpenCV nets are not shared across goroutines, so one
// Identifier per worker.
type Identifier struct {
	detector *Detector
	embedder *Embedder
	log      *logrus.Entry
}

// NewIdentifier wires a detector and embedder together.
func NewIdentifier(det *Detector, emb *Embedder, log *logrus.Entry) *Identifier {
	return &Identifier{detector: det, embedder: emb, log: log}
}

// Authenticate resolves a captured frame against the enrolled identities.
// The returned outcome is never an error for the "expected" failures (no
// face, no match, ambiguity); errors are reserved for broken inputs and
// model failures.
func (id *Identifier) Authenticate(frame gocv.Mat, known identity.Snapshot) (Outcome, error) {
	if len(known.WithEmbeddings()) == 0 {
		// Distinct from NO_FACE: the cabinet has nobody to match against,
		// so running the detector would only manufacture a misleading reason.
		return Outcome{Reason: ReasonNoEnrolled, Detail: "no enrolled identities"}, nil
	}
	if frame.Empty() {
		return Outcome{}, fmt.Errorf("empty frame")
	}

	faces := id.detector.Detect(frame)
	if len(faces) == 0 {
		return Outcome{Reason: ReasonNoFace, Detail: "no face detected in frame"}, nil
	}

	queries := make([]identity.Embedding, 0, len(faces))
	for _, f := range faces {
		emb, err := id.embedder.Embed(frame, f)
		if err != nil {
			id.log.WithError(err).WithField("face", f).Warn("embedding failed for face region")
			continue
		}
		queries = append(queries, emb)
	}

	outcome, err := Resolve(queries, known)
	if err != nil {
		return Outcome{}, err
	}

	fields := logrus.Fields{
		"faces":    len(faces),
		"distance": outcome.BestDistance,
		"margin":   outcome.Margin,
	}
	if outcome.Accepted() {
		id.log.WithFields(fields).WithField("identity", outcome.Identity.Name).
			Info("face authenticated")
	} else {
		id.log.WithFields(fields).WithField("reason", outcome.Reason).
			Info("face authentication rejected")
	}
	return outcome, nil
}

// EnrollEmbedding extracts a single enrollment embedding from a photo. The
// photo must contain exactly one detectable face.
func (id *Identifier) EnrollEmbedding(photo gocv.Mat) (identity.Embedding, error) {
	if photo.Empty() {
		return nil, fmt.Errorf("empty photo")
	}
	faces := id.detector.Detect(photo)
	if len(faces) == 0 {
		return nil, fmt.Errorf("no face detected in photo")
	}
	if len(faces) > 1 {
		return nil, fmt.Errorf("photo contains %d faces, need exactly one", len(faces))
	}
	return id.embedder.Embed(photo, faces[0])
}
