// Command pillscan runs the pill recognition cascade on a photo against
// a catalog database and prints the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"medcab/internal/bottle"
	"medcab/internal/catalog"
	"medcab/internal/recognize"
	"medcab/internal/store/sqlite"
)

func main() {
	imagePath := flag.String("image", "", "Path to pill or bottle photo")
	dbPath := flag.String("db", "medcab.db", "Path to catalog database")
	classifierPath := flag.String("classifier", "", "Optional ONNX pill classifier")
	label := flag.Bool("label", false, "Scan as a bottle label instead of a loose pill")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: pillscan -image <path> [-db medcab.db] [-label] [-classifier model.onnx]")
		os.Exit(1)
	}

	logger := logrus.New()
	if !*verbose {
		logger.SetOutput(io.Discard)
	}
	log := logrus.NewEntry(logger)

	img := gocv.IMRead(*imagePath, gocv.IMReadColor)
	if img.Empty() {
		fmt.Fprintf(os.Stderr, "Failed to load image %s\n", *imagePath)
		os.Exit(1)
	}
	defer img.Close()

	st, err := sqlite.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	snapshot, err := st.Entries(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load catalog: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Catalog: %d medications\n", len(snapshot))

	if *label {
		scanLabel(img, snapshot, log)
		return
	}
	scanPill(img, snapshot, *classifierPath, log)
}

func scanPill(img gocv.Mat, snapshot catalog.Snapshot, classifierPath string, log *logrus.Entry) {
	var classifier *recognize.Classifier
	if classifierPath != "" {
		c, err := recognize.NewClassifier(classifierPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load classifier: %v\n", err)
			os.Exit(1)
		}
		defer c.Close()
		classifier = c
	}

	cascade := recognize.NewCascade(classifier, recognize.NewSimilarityMatcher(), log)
	result := cascade.Identify(img, snapshot)

	fmt.Printf("Method: %s\n", result.Method)
	if result.Features != nil {
		f := result.Features
		fmt.Printf("Features: shape=%s color=%s circularity=%.2f vertices=%d\n",
			f.Shape, f.Color, f.Circularity, f.Vertices)
	}
	if !result.Found() {
		fmt.Println("No match found")
		os.Exit(2)
	}
	for i, m := range result.Matches {
		fmt.Printf("%d. %s (%.1f%%) %s\n", i+1, m.Entry.Name, m.Confidence, m.Rationale)
	}
}

func scanLabel(img gocv.Mat, snapshot catalog.Snapshot, log *logrus.Entry) {
	reader, err := bottle.NewReader(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start OCR: %v\n", err)
		os.Exit(1)
	}
	defer reader.Close()

	reading, err := reader.Read(img, snapshot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
		os.Exit(1)
	}

	if reading.Unreadable {
		fmt.Println(reading.Guidance)
		os.Exit(2)
	}
	if reading.Dosage != "" {
		fmt.Printf("Dosage: %s\n", reading.Dosage)
	}
	if reading.Primary == nil {
		fmt.Println("No matching medication found")
		os.Exit(2)
	}
	fmt.Printf("Match: %s (score %.0f, %s)\n",
		reading.Primary.Entry.Name, reading.Primary.Score, reading.Primary.Method)
	for _, alt := range reading.Alternates {
		fmt.Printf("  also: %s (score %.0f)\n", alt.Entry.Name, alt.Score)
	}
}
