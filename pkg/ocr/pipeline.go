package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"shardscan/models"
)

// CountReading is one recognized counter, tagged with its origin.
type CountReading struct {
	Shard      models.ShardType `json:"shard"`
	Value      int              `json:"value"`
	Confidence float64          `json:"confidence"`
	// Source is "ocr" for pipeline output; the confirm step flips it to
	// "manual" when the user corrected the value.
	Source string `json:"source"`
	Low    bool   `json:"low"`
	Raw    string `json:"raw,omitempty"`
}

// Scan statuses. ManualEntryRequired is a designed branch, not a failure:
// every reading came back under the floor and the caller must collect the
// numbers by hand.
const (
	StatusAccepted            = "accepted"
	StatusManualEntryRequired = "manual_entry_required"
)

// ScanResult carries the five readings plus every intermediate the debug
// overlay needs: anchors, projected boxes and the binarized crops. The crops
// ride along in serialized form so cached results keep their diagnostics.
type ScanResult struct {
	Readings     []CountReading              `json:"readings"`
	Status       string                      `json:"status"`
	UsedFallback bool                        `json:"used_fallback"`
	Anchors      []Anchor                    `json:"anchors,omitempty"`
	ROIs         []NumericROI                `json:"rois"`
	Binarized    map[models.ShardType][]byte `json:"binarized,omitempty"`
}

// LowCount returns how many of the readings are below the floor.
func (r *ScanResult) LowCount() int {
	n := 0
	for _, rd := range r.Readings {
		if rd.Low {
			n++
		}
	}
	return n
}

// Pipeline wires locator, projector, binarizer and extractor behind the
// confidence gate. It is safe for concurrent use; per-scan state stays on
// the stack.
type Pipeline struct {
	Templates     *TemplateStore
	Locator       *Locator
	Extractor     Extractor
	BandWidthFrac float64
	ROITimeout    time.Duration
	Log           zerolog.Logger
}

// upscaleFactor widens small phone screenshots before matching; tesseract
// and the correlation matcher both degrade under ~900px width.
func upscaleFactor(w int) float64 {
	switch {
	case w < 900:
		return 2.0
	case w < 1300:
		return 1.5
	default:
		return 1.0
	}
}

// Scan runs the whole extraction pass over one screenshot. Expected
// conditions (no anchors, low confidence) come back inside the result;
// only undecodable input is an error.
func (p *Pipeline) Scan(ctx context.Context, imageBytes []byte) (*ScanResult, error) {
	img, err := imaging.Decode(bytes.NewReader(imageBytes), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if f := upscaleFactor(img.Bounds().Dx()); f != 1.0 {
		img = imaging.Resize(img, int(float64(img.Bounds().Dx())*f), 0, imaging.Lanczos)
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	result := &ScanResult{Binarized: make(map[models.ShardType][]byte, 5)}

	anchors, err := p.Locator.Locate(img, p.Templates.Table())
	result.Anchors = anchors
	if err != nil {
		// Recoverable: one consistent set of fallback bands for the whole
		// scan, never a mix of anchor and band boxes.
		p.Log.Info().Int("anchors", len(anchors)).Msg("locator insufficient, using fallback bands")
		result.UsedFallback = true
		result.ROIs = FallbackBands(p.BandWidthFrac)
	} else {
		result.ROIs = ProjectFromAnchors(anchors, w, h)
	}

	byShard := make(map[models.ShardType]NumericROI, len(result.ROIs))
	for _, roi := range result.ROIs {
		byShard[roi.Shard] = roi
	}

	for _, st := range models.DisplayOrder {
		roi, ok := byShard[st]
		if !ok {
			result.Readings = append(result.Readings, CountReading{Shard: st, Source: "ocr", Low: true})
			continue
		}
		bw := PrepareROI(img, roi)
		if buf := encodePNG(bw); buf != nil {
			result.Binarized[st] = buf
		}
		reading := p.readWithBudget(ctx, bw, st)
		result.Readings = append(result.Readings, reading)
	}

	if result.LowCount() == len(result.Readings) {
		result.Status = StatusManualEntryRequired
	} else {
		result.Status = StatusAccepted
	}
	return result, nil
}

// readWithBudget runs the extractor under the per-ROI wall clock budget.
// A pass that overruns is abandoned and reported as a low-confidence zero;
// the goroutine drains in the background.
func (p *Pipeline) readWithBudget(ctx context.Context, bw image.Image, st models.ShardType) CountReading {
	budget := p.ROITimeout
	if budget <= 0 {
		budget = 10 * time.Second
	}
	roiCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		reading DigitReading
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		r, err := p.Extractor.ReadDigits(roiCtx, bw, st)
		ch <- outcome{r, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			p.Log.Warn().Err(out.err).Str("shard", st.String()).Msg("ocr read failed")
			return CountReading{Shard: st, Source: "ocr", Low: true}
		}
		return CountReading{
			Shard:      st,
			Value:      out.reading.Value,
			Confidence: out.reading.Confidence,
			Source:     "ocr",
			Low:        out.reading.Low,
			Raw:        out.reading.Raw,
		}
	case <-roiCtx.Done():
		p.Log.Warn().Str("shard", st.String()).Dur("budget", budget).Msg("ocr budget exceeded, treating as low confidence")
		return CountReading{Shard: st, Source: "ocr", Low: true}
	}
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil
	}
	return buf.Bytes()
}
