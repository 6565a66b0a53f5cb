package recognize

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"medcab/internal/catalog"
)

// MinClassifierConfidence is the probability (0-100) under which a
// classifier prediction is ignored and the cascade falls through.
const MinClassifierConfidence = 70.0

// classifierInputSize is the fixed input resolution of the trained model.
var classifierInputSize = image.Pt(224, 224)

// Classifier wraps an optional pretrained image-classification network.
// Training happens offline; this only runs inference and maps the predicted
// class index back to a catalog entry.
type Classifier struct {
	net gocv.Net
}

// NewClassifier loads a trained model (ONNX export). A missing model is a
// configuration choice, not an error; callers pass nil to the cascade.
func NewClassifier(modelPath string) (*Classifier, error) {
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load classifier model %q", modelPath)
	}
	return &Classifier{net: net}, nil
}

// Close releases the network.
func (c *Classifier) Close() error {
	return c.net.Close()
}

// Predict runs inference and returns the arg-max class with its confidence
// on a 0-100 scale.
func (c *Classifier) Predict(img gocv.Mat) (class int, confidence float64, err error) {
	if img.Empty() {
		return 0, 0, fmt.Errorf("empty image")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, classifierInputSize,
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	c.net.SetInput(blob, "")
	out := c.net.Forward("")
	defer out.Close()

	best := 0
	bestProb := float32(0)
	for i := 0; i < out.Total(); i++ {
		if p := out.GetFloatAt(0, i); p > bestProb {
			bestProb = p
			best = i
		}
	}
	return best, float64(bestProb) * 100, nil
}

// MatchByClassifier resolves a prediction to a catalog entry via the stored
// class-index mapping. A confident prediction with no mapping returns nil so
// the cascade falls through to the next strategy.
func (c *Classifier) MatchByClassifier(img gocv.Mat, snapshot catalog.Snapshot) ([]Match, error) {
	class, confidence, err := c.Predict(img)
	if err != nil {
		return nil, err
	}
	if confidence <= MinClassifierConfidence {
		return nil, nil
	}

	entry := snapshot.ByClassIndex(class)
	if entry == nil {
		return nil, nil
	}
	return []Match{{
		Entry:      *entry,
		Confidence: round2(confidence),
		Rationale:  fmt.Sprintf("classifier class %d at %.1f%%", class, confidence),
	}}, nil
}
