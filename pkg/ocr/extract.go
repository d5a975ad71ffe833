package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"shardscan/models"
)

// DigitReading is the result of recognizing one counter box. Low marks a
// reading whose best pass stayed under the confidence floor; the value is
// still carried so the caller can surface it for manual correction.
type DigitReading struct {
	Value      int     `json:"value"`
	Confidence float64 `json:"confidence"`
	Raw        string  `json:"raw"`
	Low        bool    `json:"low"`
}

// Extractor recognizes a digit string in a binarized counter image.
type Extractor interface {
	ReadDigits(ctx context.Context, img image.Image, shard models.ShardType) (DigitReading, error)
}

// TesseractExtractor drives tesseract with a digit-only vocabulary under a
// ladder of page-segmentation strategies: a single-line assumption first,
// then a sparse-text pass for counters tesseract refuses to segment.
type TesseractExtractor struct {
	Floor float64
	Log   zerolog.Logger
}

func NewTesseractExtractor(floor float64, log zerolog.Logger) *TesseractExtractor {
	return &TesseractExtractor{Floor: floor, Log: log}
}

var segmentationLadder = []gosseract.PageSegMode{
	gosseract.PSM_SINGLE_LINE,
	gosseract.PSM_SPARSE_TEXT,
}

func (e *TesseractExtractor) ReadDigits(ctx context.Context, img image.Image, shard models.ShardType) (DigitReading, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return DigitReading{Low: true}, fmt.Errorf("encode roi: %w", err)
	}
	png := buf.Bytes()

	var best DigitReading
	for _, psm := range segmentationLadder {
		if err := ctx.Err(); err != nil {
			// Budget exhausted mid-ladder: report whatever we have as low
			// confidence rather than failing the scan.
			best.Low = true
			return best, nil
		}
		reading, err := e.readOnce(png, psm)
		if err != nil {
			e.Log.Warn().Err(err).Str("shard", shard.String()).Int("psm", int(psm)).Msg("tesseract pass failed")
			continue
		}
		if better(reading, best) {
			best = reading
		}
		if best.Raw != "" && best.Confidence >= e.Floor {
			best.Low = false
			return best, nil
		}
	}

	// Last resort: a plain text read without per-word confidences rescues
	// digits the data pass filtered away entirely.
	if best.Raw == "" {
		if raw := e.lenientText(png); raw != "" {
			if v, err := ParseCount(raw); err == nil {
				best = DigitReading{Value: v, Raw: raw}
			}
		}
	}
	best.Low = true
	e.Log.Debug().Str("shard", shard.String()).Str("raw", snippet(best.Raw, 32)).Float64("conf", best.Confidence).Msg("digit read stayed under floor")
	return best, nil
}

// readOnce runs one tesseract pass and folds the per-word boxes into a
// candidate reading. Tokens under the floor are kept in a loose candidate;
// the longer, better-scored of strict/loose wins.
func (e *TesseractExtractor) readOnce(png []byte, psm gosseract.PageSegMode) (DigitReading, error) {
	client := gosseract.NewClient()
	defer client.Close()
	_ = client.SetLanguage("eng")
	_ = client.SetWhitelist("0123456789., ")
	_ = client.SetPageSegMode(psm)
	if err := client.SetImageFromBytes(png); err != nil {
		return DigitReading{}, fmt.Errorf("set image: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return DigitReading{}, fmt.Errorf("bounding boxes: %w", err)
	}

	var strictParts, looseParts []string
	var strictConf, looseConf []float64
	for _, b := range boxes {
		token := normalizeDigits(b.Word)
		if token == "" || !looksLikeCount(token) {
			continue
		}
		looseParts = append(looseParts, token)
		looseConf = append(looseConf, b.Confidence)
		if b.Confidence < e.Floor {
			continue
		}
		strictParts = append(strictParts, token)
		strictConf = append(strictConf, b.Confidence)
	}

	strict := DigitReading{Raw: strings.Join(strictParts, ""), Confidence: mean(strictConf)}
	loose := DigitReading{Raw: strings.Join(looseParts, ""), Confidence: mean(looseConf)}
	cand := strict
	if better(loose, strict) {
		cand = loose
	}
	if cand.Raw == "" {
		return DigitReading{}, nil
	}
	v, err := ParseCount(cand.Raw)
	if err != nil {
		return DigitReading{}, nil
	}
	cand.Value = v
	return cand, nil
}

func (e *TesseractExtractor) lenientText(png []byte) string {
	client := gosseract.NewClient()
	defer client.Close()
	_ = client.SetLanguage("eng")
	_ = client.SetWhitelist("0123456789,")
	_ = client.SetPageSegMode(gosseract.PSM_SINGLE_LINE)
	if err := client.SetImageFromBytes(png); err != nil {
		return ""
	}
	text, err := client.Text()
	if err != nil {
		return ""
	}
	return onlyDigits(normalizeText(text))
}

// better prefers the candidate with more recognized digits, then higher
// mean confidence.
func better(a, b DigitReading) bool {
	da, db := len(onlyDigits(a.Raw)), len(onlyDigits(b.Raw))
	if da != db {
		return da > db
	}
	return a.Confidence > b.Confidence
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var s float64
	for _, v := range vals {
		s += v
	}
	return s / float64(len(vals))
}
