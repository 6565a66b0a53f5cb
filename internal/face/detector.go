package face

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"medcab/pkg/geometry"
)

// Detector finds face regions in a frame using a two-tier strategy: a DNN
// SSD detector first (precise, better with occlusion), then a Haar cascade
// retry (more forgiving of poor lighting and angle) when the DNN finds
// nothing.
type Detector struct {
	net        gocv.Net
	hasNet     bool
	cascade    gocv.CascadeClassifier
	hasCascade bool

	// MinConfidence is the SSD acceptance threshold.
	MinConfidence float32
}

// ssdInputSize is the fixed input resolution of the res10 SSD face model.
var ssdInputSize = image.Pt(300, 300)

// NewDetector loads the primary DNN model (Caffe prototxt + weights) and the
// secondary Haar cascade. Either tier may be absent; at least one must load.
func NewDetector(modelPath, configPath, cascadePath string) (*Detector, error) {
	d := &Detector{MinConfidence: 0.5}

	if modelPath != "" {
		net := gocv.ReadNet(modelPath, configPath)
		if !net.Empty() {
			d.net = net
			d.hasNet = true
		}
	}

	if cascadePath != "" {
		cascade := gocv.NewCascadeClassifier()
		if cascade.Load(cascadePath) {
			d.cascade = cascade
			d.hasCascade = true
		} else {
			cascade.Close()
		}
	}

	if !d.hasNet && !d.hasCascade {
		return nil, fmt.Errorf("no face detector available (model: %q, cascade: %q)",
			modelPath, cascadePath)
	}
	return d, nil
}

// Close releases detector resources.
func (d *Detector) Close() error {
	if d.hasNet {
		if err := d.net.Close(); err != nil {
			return err
		}
		d.hasNet = false
	}
	if d.hasCascade {
		if err := d.cascade.Close(); err != nil {
			return err
		}
		d.hasCascade = false
	}
	return nil
}

// Detect returns the face bounding boxes found in the frame. The primary
// detector runs first; the secondary only runs when the primary found
// nothing, trading precision for recall on a second look.
func (d *Detector) Detect(img gocv.Mat) []geometry.RectInt {
	if img.Empty() {
		return nil
	}

	if d.hasNet {
		if faces := d.detectDNN(img); len(faces) > 0 {
			return faces
		}
	}
	if d.hasCascade {
		return d.detectCascade(img)
	}
	return nil
}

func (d *Detector) detectDNN(img gocv.Mat) []geometry.RectInt {
	blob := gocv.BlobFromImage(img, 1.0, ssdInputSize,
		gocv.NewScalar(104, 177, 123, 0), false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	defer prob.Close()

	w := float32(img.Cols())
	h := float32(img.Rows())

	var faces []geometry.RectInt
	for i := 0; i < prob.Total(); i += 7 {
		confidence := prob.GetFloatAt(0, i+2)
		if confidence < d.MinConfidence {
			continue
		}
		r := geometry.RectInt{
			X:      int(prob.GetFloatAt(0, i+3) * w),
			Y:      int(prob.GetFloatAt(0, i+4) * h),
			Width:  int((prob.GetFloatAt(0, i+5) - prob.GetFloatAt(0, i+3)) * w),
			Height: int((prob.GetFloatAt(0, i+6) - prob.GetFloatAt(0, i+4)) * h),
		}
		r = r.ClampTo(img.Cols(), img.Rows())
		if r.Width > 0 && r.Height > 0 {
			faces = append(faces, r)
		}
	}
	return faces
}

func (d *Detector) detectCascade(img gocv.Mat) []geometry.RectInt {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	rects := d.cascade.DetectMultiScale(gray)
	faces := make([]geometry.RectInt, 0, len(rects))
	for _, r := range rects {
		faces = append(faces, geometry.FromImageRect(r))
	}
	return faces
}
