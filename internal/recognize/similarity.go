package recognize

import (
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"

	"medcab/internal/catalog"
)

// Similarity matching thresholds. Correlation below the floor means the
// reference photo and the query simply do not look alike.
const (
	similarityFloor      = 60.0
	maxSimilarityMatches = 5
)

// compareSize is the common resolution both images are scaled to before
// histogram comparison.
var compareSize = image.Pt(224, 224)

// SimilarityMatcher compares a query photo against the stored reference
// image of every catalog entry using HSV color-histogram correlation.
type SimilarityMatcher struct {
	// LoadImage reads a reference image by catalog path. Swappable so tests
	// and the CLI can source images from anywhere.
	LoadImage func(path string) (gocv.Mat, error)
}

// NewSimilarityMatcher builds a matcher reading reference images from disk.
func NewSimilarityMatcher() *SimilarityMatcher {
	return &SimilarityMatcher{
		LoadImage: func(path string) (gocv.Mat, error) {
			m := gocv.IMRead(path, gocv.IMReadColor)
			if m.Empty() {
				return m, fmt.Errorf("failed to read reference image %q", path)
			}
			return m, nil
		},
	}
}

// Similarity computes the normalized histogram correlation of two images on
// a 0-100 scale. Both are resized to a common size and compared in HSV,
// which is far more stable than RGB under consumer-camera lighting.
func Similarity(a, b gocv.Mat) float64 {
	if a.Empty() || b.Empty() {
		return 0
	}

	histA := hsvHistogram(a)
	defer histA.Close()
	histB := hsvHistogram(b)
	defer histB.Close()

	corr := gocv.CompareHist(histA, histB, gocv.HistCmpCorrel)
	return float64(corr) * 100
}

func hsvHistogram(img gocv.Mat) gocv.Mat {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, compareSize, 0, 0, gocv.InterpolationLinear)

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(resized, &hsv, gocv.ColorBGRToHSV)

	hist := gocv.NewMat()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.CalcHist([]gocv.Mat{hsv}, []int{0, 1, 2}, mask, &hist,
		[]int{8, 8, 8}, []float64{0, 256, 0, 256, 0, 256}, false)
	gocv.Normalize(hist, &hist, 0, 1, gocv.NormMinMax)
	return hist
}

// MatchByImage compares the query against every in-stock entry that has a
// reference image and returns candidates above the similarity floor, best
// first. Entries whose reference image cannot be read are skipped, not
// fatal: one bad file must not break recognition for the rest.
func (m *SimilarityMatcher) MatchByImage(query gocv.Mat, snapshot catalog.Snapshot) []Match {
	var matches []Match
	for _, entry := range snapshot.InStock() {
		if entry.ImagePath == "" {
			continue
		}
		ref, err := m.LoadImage(entry.ImagePath)
		if err != nil {
			continue
		}
		score := Similarity(query, ref)
		ref.Close()

		if score > similarityFloor {
			matches = append(matches, Match{
				Entry:      entry,
				Confidence: round2(score),
				Rationale:  fmt.Sprintf("visual similarity: %.1f%%", score),
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	if len(matches) > maxSimilarityMatches {
		matches = matches[:maxSimilarityMatches]
	}
	return matches
}
