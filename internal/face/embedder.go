package face

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"medcab/internal/identity"
	"medcab/pkg/geometry"
)

// embedInputSize is the fixed input resolution of the embedding network.
var embedInputSize = image.Pt(96, 96)

// jitterOffsets are the crop shifts applied when jittered averaging is
// enabled. Fixed offsets keep the embedding deterministic for a frame.
var jitterOffsets = []image.Point{
	{X: 0, Y: 0}, {X: 2, Y: 0}, {X: -2, Y: 0}, {X: 0, Y: 2}, {X: 0, Y: -2},
	{X: 2, Y: 2}, {X: -2, Y: -2}, {X: 2, Y: -2}, {X: -2, Y: 2},
}

// Embedder computes fixed-length face embeddings with a DNN model.
type Embedder struct {
	net gocv.Net

	// Jitters is how many shifted computations of the same crop are averaged.
	// 1 disables jittering; more passes trade latency for stability.
	Jitters int
}

// NewEmbedder loads the embedding network (an OpenFace-style Torch model
// producing 128-dimensional descriptors).
func NewEmbedder(modelPath string) (*Embedder, error) {
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load embedding model %q", modelPath)
	}
	return &Embedder{net: net, Jitters: 5}, nil
}

// Close releases the network.
func (e *Embedder) Close() error {
	return e.net.Close()
}

// Embed computes the embedding for one face region of a frame. When Jitters
// is greater than one the crop is re-embedded at slightly shifted positions
// and the results averaged, which suppresses detector-placement noise.
func (e *Embedder) Embed(img gocv.Mat, face geometry.RectInt) (identity.Embedding, error) {
	jitters := e.Jitters
	if jitters < 1 {
		jitters = 1
	}
	if jitters > len(jitterOffsets) {
		jitters = len(jitterOffsets)
	}

	var samples []identity.Embedding
	for _, off := range jitterOffsets[:jitters] {
		crop := geometry.RectInt{
			X: face.X + off.X, Y: face.Y + off.Y,
			Width: face.Width, Height: face.Height,
		}.ClampTo(img.Cols(), img.Rows())
		if crop.Width < 8 || crop.Height < 8 {
			continue
		}

		emb, err := e.embedCrop(img, crop)
		if err != nil {
			return nil, err
		}
		samples = append(samples, emb)
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("face region too small to embed")
	}
	return identity.Average(samples), nil
}

func (e *Embedder) embedCrop(img gocv.Mat, crop geometry.RectInt) (identity.Embedding, error) {
	region := img.Region(crop.ToImageRect())
	defer region.Close()

	blob := gocv.BlobFromImage(region, 1.0/255.0, embedInputSize,
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	n := out.Total()
	if n != identity.EmbeddingSize {
		return nil, fmt.Errorf("unexpected embedding size %d (want %d)", n, identity.EmbeddingSize)
	}

	emb := make(identity.Embedding, n)
	for i := 0; i < n; i++ {
		emb[i] = float64(out.GetFloatAt(0, i))
	}
	return emb, nil
}
