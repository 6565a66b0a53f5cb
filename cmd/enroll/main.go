// Command enroll registers a face in the cabinet database from one or
// more photos.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	_ "golang.org/x/image/tiff"

	"medcab/internal/face"
	"medcab/internal/identity"
	"medcab/internal/store/sqlite"
)

func main() {
	name := flag.String("name", "", "Person's display name")
	code := flag.String("code", "", "Badge or employee code")
	dbPath := flag.String("db", "medcab.db", "Path to cabinet database")
	detectorModel := flag.String("detector", "models/res10_300x300_ssd.caffemodel", "Face detector weights")
	detectorConfig := flag.String("detector-config", "models/deploy.prototxt", "Face detector config")
	embedderModel := flag.String("embedder", "models/openface.nn4.small2.v1.t7", "Face embedder model")
	cascadeFile := flag.String("cascade", "models/haarcascade_frontalface_default.xml", "Fallback cascade file")
	remove := flag.String("remove", "", "Delete the identity with this ID and exit")
	flag.Parse()

	st, err := sqlite.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()
	ctx := context.Background()

	if *remove != "" {
		if err := st.DeleteIdentity(ctx, *remove); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to delete identity: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted identity %s\n", *remove)
		return
	}

	photos := flag.Args()
	if *name == "" || len(photos) == 0 {
		fmt.Println("Usage: enroll -name <name> [-code <code>] <photo> [photo...]")
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	detector, err := face.NewDetector(*detectorModel, *detectorConfig, *cascadeFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load face detector: %v\n", err)
		os.Exit(1)
	}
	defer detector.Close()

	embedder, err := face.NewEmbedder(*embedderModel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load face embedder: %v\n", err)
		os.Exit(1)
	}
	defer embedder.Close()

	identifier := face.NewIdentifier(detector, embedder, logrus.NewEntry(logger))

	var embeddings []identity.Embedding
	for _, path := range photos {
		img, err := loadPhoto(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load photo %s: %v\n", path, err)
			os.Exit(1)
		}
		emb, err := identifier.EnrollEmbedding(img)
		img.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Photo %s: %v\n", path, err)
			os.Exit(1)
		}
		embeddings = append(embeddings, emb)
		fmt.Printf("Processed %s\n", path)
	}

	id := identity.Identity{
		ID:         uuid.NewString(),
		Code:       *code,
		Name:       *name,
		Embedding:  identity.Average(embeddings),
		EnrolledAt: time.Now().UTC(),
	}
	if err := st.SaveIdentity(ctx, id); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save identity: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Enrolled %s (%s) from %d photo(s)\n", id.Name, id.ID, len(photos))
}

// loadPhoto reads a photo into a BGR Mat. OpenCV covers the usual camera
// formats; scanner TIFFs go through the registered image decoders.
func loadPhoto(path string) (gocv.Mat, error) {
	if img := gocv.IMRead(path, gocv.IMReadColor); !img.Empty() {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer f.Close()

	decoded, _, err := image.Decode(f)
	if err != nil {
		return gocv.Mat{}, err
	}
	rgb, err := gocv.ImageToMatRGB(decoded)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer rgb.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgb, &bgr, gocv.ColorBGRToRGB)
	return bgr, nil
}
