package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"shardscan/models"
)

// fakeExtractor returns canned readings per shard type.
type fakeExtractor struct {
	readings map[models.ShardType]DigitReading
	delay    time.Duration
}

func (f *fakeExtractor) ReadDigits(ctx context.Context, _ image.Image, shard models.ShardType) (DigitReading, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return DigitReading{Low: true}, nil
		}
	}
	return f.readings[shard], nil
}

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{200, 200, 200, 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// emptyTemplates yields a store whose table is empty so every scan takes the
// fallback band path, keeping these tests independent of template assets.
func emptyTemplates() *TemplateStore {
	s := &TemplateStore{log: zerolog.Nop()}
	s.current.Store(&TemplateTable{})
	return s
}

func testPipeline(ex Extractor) *Pipeline {
	return &Pipeline{
		Templates:     emptyTemplates(),
		Locator:       NewLocator(0.65, 3, zerolog.Nop()),
		Extractor:     ex,
		BandWidthFrac: 0.5,
		ROITimeout:    time.Second,
		Log:           zerolog.Nop(),
	}
}

func TestScanAcceptedWithMixedConfidence(t *testing.T) {
	ex := &fakeExtractor{readings: map[models.ShardType]DigitReading{
		models.ShardMystery: {Value: 1610, Confidence: 88},
		models.ShardAncient: {Value: 95, Confidence: 72},
		models.ShardVoid:    {Value: 3, Confidence: 64},
		models.ShardPrimal:  {Value: 0, Confidence: 12, Low: true},
		models.ShardSacred:  {Value: 2, Confidence: 41},
	}}
	result, err := testPipeline(ex).Scan(context.Background(), encodeTestPNG(t, 1400, 1000))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Status != StatusAccepted {
		t.Fatalf("status = %s, want %s", result.Status, StatusAccepted)
	}
	if !result.UsedFallback {
		t.Fatal("expected fallback bands with no templates")
	}
	if result.LowCount() != 1 {
		t.Fatalf("low count = %d, want 1", result.LowCount())
	}
	if len(result.Readings) != 5 {
		t.Fatalf("readings = %d, want 5", len(result.Readings))
	}
	for i, rd := range result.Readings {
		if rd.Shard != models.DisplayOrder[i] {
			t.Fatalf("reading %d shard = %s, want %s", i, rd.Shard, models.DisplayOrder[i])
		}
		if rd.Source != "ocr" {
			t.Fatalf("reading %d source = %s", i, rd.Source)
		}
	}
}

func TestScanAllLowRequiresManualEntry(t *testing.T) {
	low := map[models.ShardType]DigitReading{}
	for _, st := range models.DisplayOrder {
		low[st] = DigitReading{Value: 0, Confidence: 5, Low: true}
	}
	result, err := testPipeline(&fakeExtractor{readings: low}).Scan(context.Background(), encodeTestPNG(t, 1400, 1000))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Status != StatusManualEntryRequired {
		t.Fatalf("status = %s, want %s", result.Status, StatusManualEntryRequired)
	}
	if result.LowCount() != 5 {
		t.Fatalf("low count = %d, want 5", result.LowCount())
	}
}

func TestScanBudgetOverrunBecomesLowConfidence(t *testing.T) {
	good := map[models.ShardType]DigitReading{}
	for _, st := range models.DisplayOrder {
		good[st] = DigitReading{Value: 7, Confidence: 90}
	}
	p := testPipeline(&fakeExtractor{readings: good, delay: 200 * time.Millisecond})
	p.ROITimeout = 20 * time.Millisecond
	result, err := p.Scan(context.Background(), encodeTestPNG(t, 1400, 1000))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Status != StatusManualEntryRequired {
		t.Fatalf("status = %s, want %s after universal overrun", result.Status, StatusManualEntryRequired)
	}
}

func TestScanRejectsUndecodableImage(t *testing.T) {
	_, err := testPipeline(&fakeExtractor{}).Scan(context.Background(), []byte("not a png"))
	if !errors.Is(err, ErrBadImage) {
		t.Fatalf("expected ErrBadImage, got %v", err)
	}
}

func TestUpscaleFactor(t *testing.T) {
	cases := []struct {
		w    int
		want float64
	}{
		{640, 2.0},
		{899, 2.0},
		{900, 1.5},
		{1299, 1.5},
		{1300, 1.0},
		{2560, 1.0},
	}
	for _, tc := range cases {
		if got := upscaleFactor(tc.w); got != tc.want {
			t.Fatalf("upscaleFactor(%d) = %v, want %v", tc.w, got, tc.want)
		}
	}
}
