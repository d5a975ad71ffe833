package ocr

import (
	"image"
	"sort"

	"shardscan/models"
)

// NumericROI is the box expected to contain one digit string, expressed as
// fractions of the full image so it converts to pixels at any resolution.
type NumericROI struct {
	Shard models.ShardType `json:"shard"`
	X     float64          `json:"x"`
	Y     float64          `json:"y"`
	W     float64          `json:"w"`
	H     float64          `json:"h"`
}

// ToPixels converts the fractional box into a pixel rectangle, clamped to
// the image extents.
func (r NumericROI) ToPixels(imgW, imgH int) image.Rectangle {
	x0 := int(r.X * float64(imgW))
	y0 := int(r.Y * float64(imgH))
	x1 := int((r.X + r.W) * float64(imgW))
	y1 := int((r.Y + r.H) * float64(imgH))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, imgW, imgH))
}

// Tile geometry relative to a matched icon. The counter sits in the lower
// left of the tile the icon belongs to; both scale with the icon size so the
// projection is resolution-independent.
const (
	tileWidthFactor  = 2.1
	tileHeightFactor = 1.9
	tileLeftInset    = 0.25
	tileTopInset     = 0.35

	numberX = 0.06
	numberY = 0.76
	numberW = 0.30
	numberH = 0.20
)

// ProjectFromAnchors derives one counter ROI per anchor. Output boxes are
// clamped to the image and nudged apart so no two overlap.
func ProjectFromAnchors(anchors []Anchor, imgW, imgH int) []NumericROI {
	rois := make([]NumericROI, 0, len(anchors))
	fw, fh := float64(imgW), float64(imgH)
	for _, a := range anchors {
		tileW := float64(a.W) * tileWidthFactor
		tileH := float64(a.H) * tileHeightFactor
		tileX := clampf(float64(a.X)-float64(a.W)*tileLeftInset, 0, fw)
		tileY := clampf(float64(a.Y)-float64(a.H)*tileTopInset, 0, fh)
		tileW = clampf(tileW, 0, fw-tileX)
		tileH = clampf(tileH, 0, fh-tileY)

		roi := NumericROI{
			Shard: a.Shard,
			X:     (tileX + numberX*tileW) / fw,
			Y:     (tileY + numberY*tileH) / fh,
			W:     (numberW * tileW) / fw,
			H:     (numberH * tileH) / fh,
		}
		rois = append(rois, clampROI(roi))
	}
	return resolveOverlaps(rois)
}

// FallbackBands splits the image into five equal-height bands over the left
// widthFrac of the image, ordered to match the in-game panel. Used when the
// locator found too few anchors; by construction the bands never overlap.
func FallbackBands(widthFrac float64) []NumericROI {
	if widthFrac <= 0 || widthFrac > 1 {
		widthFrac = 0.5
	}
	n := len(models.DisplayOrder)
	bandH := 1.0 / float64(n)
	rois := make([]NumericROI, 0, n)
	for i, st := range models.DisplayOrder {
		rois = append(rois, NumericROI{
			Shard: st,
			X:     0,
			Y:     float64(i) * bandH,
			W:     widthFrac,
			H:     bandH,
		})
	}
	return rois
}

func clampROI(r NumericROI) NumericROI {
	r.X = clampf(r.X, 0, 1)
	r.Y = clampf(r.Y, 0, 1)
	r.W = clampf(r.W, 0, 1-r.X)
	r.H = clampf(r.H, 0, 1-r.Y)
	return r
}

// resolveOverlaps pushes each box below the bottom edge of the one above it.
// Counter boxes are stacked vertically in the panel, so a vertical nudge is
// enough to keep them disjoint.
func resolveOverlaps(rois []NumericROI) []NumericROI {
	sort.Slice(rois, func(i, j int) bool { return rois[i].Y < rois[j].Y })
	for i := 1; i < len(rois); i++ {
		prevBottom := rois[i-1].Y + rois[i-1].H
		if rois[i].Y < prevBottom {
			shift := prevBottom - rois[i].Y
			rois[i].Y = clampf(rois[i].Y+shift, 0, 1)
			rois[i].H = clampf(rois[i].H-shift, 0, 1-rois[i].Y)
		}
	}
	return rois
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
