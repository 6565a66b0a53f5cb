package bottle

import (
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"medcab/internal/catalog"
)

// Reading is the outcome of one bottle scan. Unreadable and not-found are
// distinct failures: the first asks for a better photo, the second for a
// catalog addition.
type Reading struct {
	Success     bool        `json:"success"`
	Unreadable  bool        `json:"unreadable"`
	RawText     string      `json:"raw_text,omitempty"`
	Dosage      string      `json:"dosage,omitempty"`
	Primary     *TextMatch  `json:"primary,omitempty"`
	Alternates  []TextMatch `json:"alternates,omitempty"`
	Guidance    string      `json:"guidance,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

// Reader extracts label text with Tesseract under multiple configuration
// profiles and matches it against the catalog. A Reader owns one Tesseract
// client and must not be shared between goroutines.
type Reader struct {
	client *gosseract.Client
	log    *logrus.Entry
}

// NewReader creates a label reader.
func NewReader(log *logrus.Entry) (*Reader, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	return &Reader{client: client, log: log}, nil
}

// Close releases OCR resources.
func (r *Reader) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Read runs the complete pipeline on a bottle photo: preprocess, extract
// text under every profile, then search the catalog.
func (r *Reader) Read(img gocv.Mat, snapshot catalog.Snapshot) (Reading, error) {
	if img.Empty() {
		return Reading{}, fmt.Errorf("empty image")
	}

	text, err := r.ExtractText(img)
	if err != nil {
		return Reading{}, err
	}

	reading := Evaluate(text, snapshot)
	if reading.Primary != nil {
		r.log.WithFields(logrus.Fields{
			"medication": reading.Primary.Entry.Name,
			"score":      reading.Primary.Score,
			"method":     reading.Primary.Method,
		}).Info("bottle label matched")
	} else {
		r.log.WithField("chars", len(text)).Info("bottle label yielded no match")
	}
	return reading, nil
}

// ExtractText OCRs the image under several page-segmentation profiles plus
// one pass over the untouched grayscale, concatenating every non-empty
// result. Different profiles win on different label layouts; the search
// layer tolerates the duplication.
func (r *Reader) ExtractText(img gocv.Mat) (string, error) {
	processed := preprocessLabel(img)
	defer processed.Close()

	profiles := []gosseract.PageSegMode{
		gosseract.PSM_SINGLE_BLOCK,
		gosseract.PSM_SPARSE_TEXT,
		gosseract.PSM_AUTO,
	}

	var results []string
	for _, psm := range profiles {
		text, err := r.recognize(processed, psm)
		if err != nil {
			r.log.WithError(err).WithField("psm", psm).Debug("OCR profile failed")
			continue
		}
		if text != "" {
			results = append(results, text)
		}
	}

	// A plain grayscale pass catches labels the binarization destroys
	// (colored text on colored plastic).
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	if text, err := r.recognize(gray, gosseract.PSM_SINGLE_BLOCK); err == nil && text != "" {
		results = append(results, text)
	}

	return strings.Join(results, "\n"), nil
}

func (r *Reader) recognize(img gocv.Mat, psm gosseract.PageSegMode) (string, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	if err := r.client.SetPageSegMode(psm); err != nil {
		return "", fmt.Errorf("failed to set PSM: %w", err)
	}
	if err := r.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := r.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// preprocessLabel prepares a bottle photo for OCR: bounded downscale,
// grayscale, contrast enhancement, denoise, sharpen, Otsu binarization,
// morphological cleanup, then a 2x upscale for small label text.
func preprocessLabel(img gocv.Mat) gocv.Mat {
	// Bound very large photos before the expensive denoise step.
	var working gocv.Mat
	h, w := img.Rows(), img.Cols()
	if w > 1920 || h > 1080 {
		working = gocv.NewMat()
		scale := minFloat(1920.0/float64(w), 1080.0/float64(h))
		gocv.Resize(img, &working, image.Point{}, scale, scale, gocv.InterpolationArea)
	} else {
		working = img.Clone()
	}

	gray := gocv.NewMat()
	gocv.CvtColor(working, &gray, gocv.ColorBGRToGray)
	working.Close()

	clahe := gocv.NewCLAHEWithParams(4.0, image.Pt(8, 8))
	defer clahe.Close()
	enhanced := gocv.NewMat()
	clahe.Apply(gray, &enhanced)
	gray.Close()

	denoised := gocv.NewMat()
	gocv.FastNlMeansDenoisingWithParams(enhanced, &denoised, 15, 7, 21)
	enhanced.Close()

	sharpened := gocv.NewMat()
	kernel := sharpenKernel()
	defer kernel.Close()
	gocv.Filter2D(denoised, &sharpened, -1, kernel, image.Pt(-1, -1), 0, gocv.BorderDefault)
	denoised.Close()

	binary := gocv.NewMat()
	gocv.Threshold(sharpened, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	sharpened.Close()

	closeKernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(2, 2))
	defer closeKernel.Close()
	cleaned := gocv.NewMat()
	gocv.MorphologyEx(binary, &cleaned, gocv.MorphClose, closeKernel)
	binary.Close()

	scaled := gocv.NewMat()
	gocv.Resize(cleaned, &scaled, image.Point{}, 2.0, 2.0, gocv.InterpolationCubic)
	cleaned.Close()

	return scaled
}

func sharpenKernel() gocv.Mat {
	k := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			k.SetFloatAt(y, x, -1)
		}
	}
	k.SetFloatAt(1, 1, 9)
	return k
}

// Evaluate turns raw OCR text and the catalog into a Reading. Pure: the
// OCR engine produces text, this decides what the text means.
func Evaluate(text string, snapshot catalog.Snapshot) Reading {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < MinReadableChars {
		return Reading{
			Unreadable: true,
			Guidance:   "Could not read text from bottle. Please ensure the label is clearly visible and well-lit.",
			Suggestions: []string{
				"Hold the bottle steady",
				"Ensure good lighting",
				"Avoid glare on the label",
				"Make sure text is in focus",
			},
		}
	}

	matches := SearchText(trimmed, snapshot)
	if len(matches) == 0 {
		return Reading{
			RawText:  trimmed,
			Dosage:   ExtractDosage(trimmed),
			Guidance: "No medications from the inventory were found on this label.",
			Suggestions: []string{
				"Make sure the medication is in the catalog first",
				"Try scanning the label more clearly",
				"Check that the medication name is visible in the camera",
			},
		}
	}

	alternates := matches[1:]
	if len(alternates) > maxSecondaryMatches {
		alternates = alternates[:maxSecondaryMatches]
	}
	if len(alternates) == 0 {
		alternates = nil
	}

	return Reading{
		Success:    true,
		RawText:    trimmed,
		Dosage:     ExtractDosage(trimmed),
		Primary:    &matches[0],
		Alternates: alternates,
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
