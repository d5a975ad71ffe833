// scan_debug runs the locate+extract pipeline over a local screenshot and
// prints every intermediate, for tuning thresholds without a running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"shardscan/pkg/ocr"
)

func main() {
	img := flag.String("img", "tmp/test.png", "screenshot to scan")
	templates := flag.String("templates", "assets/icons", "icon template directory")
	threshold := flag.Float64("threshold", 0.65, "template match threshold")
	minAnchors := flag.Int("min-anchors", 3, "anchors required before falling back to bands")
	floor := flag.Float64("floor", 18, "confidence floor")
	dump := flag.String("dump", "", "directory to write binarized crops into")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(zerolog.DebugLevel)

	store, err := ocr.NewTemplateStore(*templates, logger)
	if err != nil {
		log.Fatalf("templates: %v", err)
	}
	p := &ocr.Pipeline{
		Templates:     store,
		Locator:       ocr.NewLocator(*threshold, *minAnchors, logger),
		Extractor:     ocr.NewTesseractExtractor(*floor, logger),
		BandWidthFrac: 0.5,
		ROITimeout:    30 * time.Second,
		Log:           logger,
	}

	path, _ := filepath.Abs(*img)
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	result, err := p.Scan(context.Background(), raw)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}

	fmt.Printf("status=%s fallback=%v anchors=%d\n", result.Status, result.UsedFallback, len(result.Anchors))
	for _, a := range result.Anchors {
		fmt.Printf("  anchor %-8s at (%d,%d) %dx%d score=%.3f scale=%.2f\n", a.Shard, a.X, a.Y, a.W, a.H, a.Score, a.Scale)
	}
	for _, rd := range result.Readings {
		fmt.Printf("  %-8s value=%-6d conf=%5.1f low=%-5v raw=%q\n", rd.Shard, rd.Value, rd.Confidence, rd.Low, rd.Raw)
	}

	if *dump != "" {
		if err := os.MkdirAll(*dump, 0o755); err != nil {
			log.Fatalf("mkdir %s: %v", *dump, err)
		}
		for shard, png := range result.Binarized {
			out := filepath.Join(*dump, shard.String()+".png")
			if err := os.WriteFile(out, png, 0o644); err != nil {
				log.Fatalf("write %s: %v", out, err)
			}
			fmt.Printf("wrote %s\n", out)
		}
	}
}
