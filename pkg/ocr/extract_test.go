package ocr

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"shardscan/models"
)

func TestBetterPrefersMoreDigitsThenConfidence(t *testing.T) {
	long := DigitReading{Raw: "1610", Confidence: 40}
	short := DigitReading{Raw: "95", Confidence: 90}
	if !better(long, short) {
		t.Fatal("longer digit string must win over higher confidence")
	}
	a := DigitReading{Raw: "95", Confidence: 70}
	b := DigitReading{Raw: "95", Confidence: 40}
	if !better(a, b) {
		t.Fatal("equal length ties break on confidence")
	}
	if better(b, a) {
		t.Fatal("lower confidence must not win a tie")
	}
}

func TestMean(t *testing.T) {
	if mean(nil) != 0 {
		t.Fatal("mean of nothing is 0")
	}
	if got := mean([]float64{10, 20, 30}); got != 20 {
		t.Fatalf("mean = %v, want 20", got)
	}
}

// TestTesseractReadsSample is an opt-in smoke test against a real tesseract
// install. Point OCR_SAMPLE at a binarized counter crop and OCR_EXPECT at
// its value, e.g. OCR_SAMPLE=testdata/sacred_95.png OCR_EXPECT=95.
func TestTesseractReadsSample(t *testing.T) {
	sample := os.Getenv("OCR_SAMPLE")
	if sample == "" {
		t.Skip("set OCR_SAMPLE and OCR_EXPECT to run the tesseract smoke test")
	}
	want, err := strconv.Atoi(os.Getenv("OCR_EXPECT"))
	if err != nil {
		t.Fatalf("OCR_EXPECT must be an integer: %v", err)
	}
	img, err := imaging.Open(sample)
	if err != nil {
		t.Fatalf("open sample: %v", err)
	}
	ex := NewTesseractExtractor(18, zerolog.Nop())
	reading, err := ex.ReadDigits(context.Background(), img, models.ShardSacred)
	if err != nil {
		t.Fatalf("ReadDigits: %v", err)
	}
	if reading.Value != want {
		t.Fatalf("read %d (raw %q, conf %.1f, low %v), want %d", reading.Value, reading.Raw, reading.Confidence, reading.Low, want)
	}
}
