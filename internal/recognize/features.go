package recognize

import (
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"

	"medcab/internal/catalog"
	"medcab/pkg/colorutil"
)

// PillFeatures holds the shape/color/size descriptors extracted from a pill
// photo. They exist even when no catalog entry matches, so the operator can
// use them to enroll a new entry.
type PillFeatures struct {
	Shape       catalog.Shape  `json:"shape"`
	Color       colorutil.Name `json:"color"`
	Circularity float64        `json:"circularity"`
	Vertices    int            `json:"vertices"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Area        int            `json:"area"`
}

// Feature match scoring. Shape and color each contribute 40 points; a
// candidate below the floor is noise, not a match.
const (
	shapeScore        = 40
	colorScore        = 40
	featureScoreFloor = 30
	maxFeatureMatches = 5
)

// ExtractFeatures derives shape and dominant color descriptors from a pill
// image: edge/contour analysis for the outline, k-means color clustering
// for the dominant color.
func ExtractFeatures(img gocv.Mat) (*PillFeatures, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, 50, 150)

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return nil, fmt.Errorf("no contours found")
	}

	// Largest contour is assumed to be the pill.
	largestIdx := 0
	largestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); a > largestArea {
			largestArea = a
			largestIdx = i
		}
	}
	pill := contours.At(largestIdx)

	perimeter := gocv.ArcLength(pill, true)
	circularity := 0.0
	if perimeter > 0 {
		circularity = 4 * 3.141592653589793 * largestArea / (perimeter * perimeter)
	}

	approx := gocv.ApproxPolyDP(pill, 0.04*perimeter, true)
	defer approx.Close()
	vertices := approx.Size()

	bounds := gocv.BoundingRect(pill)

	f := &PillFeatures{
		Shape:       ShapeFromMetrics(vertices, circularity),
		Circularity: round2(circularity),
		Vertices:    vertices,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Area:        int(largestArea),
	}
	f.Color = dominantColor(img)
	return f, nil
}

// ShapeFromMetrics classifies a pill outline from its polygon approximation
// and circularity. Rule order matters: a highly circular outline with few
// vertices is round even when the approximation yields exactly 4 points.
func ShapeFromMetrics(vertices int, circularity float64) catalog.Shape {
	switch {
	case vertices < 6 && circularity > 0.7:
		return catalog.ShapeRound
	case vertices == 4:
		return catalog.ShapeSquare
	case vertices > 4 && vertices < 8:
		return catalog.ShapeOval
	default:
		return catalog.ShapeCapsule
	}
}

// dominantColor clusters the image pixels into 3 RGB groups and names the
// centroid of the most populated cluster.
func dominantColor(img gocv.Mat) colorutil.Name {
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(img, &rgb, gocv.ColorBGRToRGB)

	h, w := rgb.Rows(), rgb.Cols()
	pixels := gocv.NewMatWithSize(h*w, 3, gocv.MatTypeCV32F)
	defer pixels.Close()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			vec := rgb.GetVecbAt(y, x)
			pixels.SetFloatAt(idx, 0, float32(vec[0]))
			pixels.SetFloatAt(idx, 1, float32(vec[1]))
			pixels.SetFloatAt(idx, 2, float32(vec[2]))
		}
	}

	const numClusters = 3
	labels := gocv.NewMat()
	defer labels.Close()
	centers := gocv.NewMat()
	defer centers.Close()

	criteria := gocv.NewTermCriteria(gocv.EPS+gocv.MaxIter, 100, 0.2)
	gocv.KMeans(pixels, numClusters, &labels, criteria, 10, gocv.KMeansRandomCenters, &centers)

	// Most populated cluster wins; the pill body dominates a framed shot.
	counts := make([]int, numClusters)
	for i := 0; i < labels.Rows(); i++ {
		counts[labels.GetIntAt(i, 0)]++
	}
	dominant := 0
	for i := 1; i < numClusters; i++ {
		if counts[i] > counts[dominant] {
			dominant = i
		}
	}

	r := float64(centers.GetFloatAt(dominant, 0))
	g := float64(centers.GetFloatAt(dominant, 1))
	b := float64(centers.GetFloatAt(dominant, 2))
	return colorutil.NameRGB(r, g, b)
}

// MatchByFeatures scores every catalog entry against extracted descriptors
// and returns the top candidates above the score floor, best first.
func MatchByFeatures(f *PillFeatures, snapshot catalog.Snapshot) []Match {
	if f == nil {
		return nil
	}

	var matches []Match
	for _, entry := range snapshot.InStock() {
		score := 0
		if entry.Shape != "" && entry.Shape == f.Shape {
			score += shapeScore
		}
		if entry.Color != "" && entry.Color == f.Color {
			score += colorScore
		}
		if score > featureScoreFloor {
			matches = append(matches, Match{
				Entry:      entry,
				Confidence: float64(score),
				Rationale:  fmt.Sprintf("matched on shape: %s, color: %s", f.Shape, f.Color),
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	if len(matches) > maxFeatureMatches {
		matches = matches[:maxFeatureMatches]
	}
	return matches
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
