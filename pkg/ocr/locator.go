package ocr

import (
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"shardscan/models"
)

// Anchor is one located icon: its pixel bounding box, the normalized
// correlation score and the template scale that produced the best match.
type Anchor struct {
	Shard models.ShardType `json:"shard"`
	X     int              `json:"x"`
	Y     int              `json:"y"`
	W     int              `json:"w"`
	H     int              `json:"h"`
	Score float64          `json:"score"`
	Scale float64          `json:"scale"`
}

// DefaultScales covers the screenshot resolutions seen in the wild, from
// small phone captures to 1440p desktop grabs.
var DefaultScales = []float64{0.60, 0.70, 0.80, 0.90, 1.00, 1.10, 1.20, 1.30, 1.40, 1.50}

// Locator finds the five shard icons via multi-scale normalized template
// matching. Pure over its inputs; missing templates are skipped silently.
type Locator struct {
	Scales     []float64
	Threshold  float64
	MinAnchors int
	Log        zerolog.Logger
}

func NewLocator(threshold float64, minAnchors int, log zerolog.Logger) *Locator {
	return &Locator{Scales: DefaultScales, Threshold: threshold, MinAnchors: minAnchors, Log: log}
}

// Locate tries every template at every scale and keeps the best location per
// shard type above the score threshold. Returns ErrInsufficientAnchors when
// fewer than MinAnchors matched; the anchors found so far are still returned
// for diagnostics.
func (l *Locator) Locate(img image.Image, table *TemplateTable) ([]Anchor, error) {
	if table == nil || table.Len() == 0 {
		return nil, ErrInsufficientAnchors
	}
	hay := newGrayPlane(imaging.Grayscale(img))
	sums, sqs := integralImages(hay)

	var anchors []Anchor
	for _, st := range models.DisplayOrder {
		tpl := table.Get(st)
		if tpl == nil {
			continue
		}
		best, ok := l.matchOne(hay, sums, sqs, tpl)
		if !ok {
			l.Log.Debug().Str("shard", st.String()).Msg("no template match above threshold")
			continue
		}
		best.Shard = st
		anchors = append(anchors, best)
		l.Log.Debug().Str("shard", st.String()).Float64("score", best.Score).Float64("scale", best.Scale).Msg("icon matched")
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].Y < anchors[j].Y })
	if len(anchors) < l.MinAnchors {
		return anchors, ErrInsufficientAnchors
	}
	return anchors, nil
}

func (l *Locator) matchOne(hay *grayPlane, sums, sqs []float64, tpl *grayPlane) (Anchor, bool) {
	var best Anchor
	found := false
	for _, scale := range l.Scales {
		tw := int(float64(tpl.w) * scale)
		th := int(float64(tpl.h) * scale)
		if tw < 10 {
			tw = 10
		}
		if th < 10 {
			th = 10
		}
		if tw > hay.w || th > hay.h {
			continue
		}
		resized := tpl
		if tw != tpl.w || th != tpl.h {
			resized = tpl.resized(tw, th)
		}
		score, x, y := bestCorrelation(hay, sums, sqs, resized)
		if score < l.Threshold {
			continue
		}
		if !found || score > best.Score {
			best = Anchor{X: x, Y: y, W: tw, H: th, Score: score, Scale: scale}
			found = true
		}
	}
	return best, found
}

// integralImages returns summed-area tables for pixel values and squares,
// each sized (w+1)*(h+1) with a zero border row/column.
func integralImages(p *grayPlane) (sums, sqs []float64) {
	w1 := p.w + 1
	sums = make([]float64, w1*(p.h+1))
	sqs = make([]float64, w1*(p.h+1))
	for y := 0; y < p.h; y++ {
		var rowSum, rowSq float64
		for x := 0; x < p.w; x++ {
			v := p.at(x, y)
			rowSum += v
			rowSq += v * v
			idx := (y+1)*w1 + x + 1
			sums[idx] = sums[idx-w1] + rowSum
			sqs[idx] = sqs[idx-w1] + rowSq
		}
	}
	return sums, sqs
}

func windowSums(tbl []float64, w1, x, y, tw, th int) float64 {
	return tbl[(y+th)*w1+x+tw] - tbl[y*w1+x+tw] - tbl[(y+th)*w1+x] + tbl[y*w1+x]
}

// bestCorrelation computes zero-mean normalized cross-correlation of the
// template against every position and returns the maximum with its origin.
// Window means and variances come from the integral images; only the dot
// product against the zero-mean template is evaluated directly.
func bestCorrelation(hay *grayPlane, sums, sqs []float64, tpl *grayPlane) (float64, int, int) {
	n := float64(tpl.w * tpl.h)
	var tplSum float64
	for _, v := range tpl.pix {
		tplSum += v
	}
	tplMean := tplSum / n
	zeroMean := make([]float64, len(tpl.pix))
	var tplVar float64
	for i, v := range tpl.pix {
		zv := v - tplMean
		zeroMean[i] = zv
		tplVar += zv * zv
	}
	if tplVar <= 1e-9 {
		return 0, 0, 0 // flat template matches nothing meaningfully
	}
	tplNorm := math.Sqrt(tplVar)

	w1 := hay.w + 1
	bestScore := math.Inf(-1)
	bestX, bestY := 0, 0
	for y := 0; y+tpl.h <= hay.h; y++ {
		for x := 0; x+tpl.w <= hay.w; x++ {
			winSum := windowSums(sums, w1, x, y, tpl.w, tpl.h)
			winSq := windowSums(sqs, w1, x, y, tpl.w, tpl.h)
			winVar := winSq - winSum*winSum/n
			if winVar <= 1e-9 {
				continue
			}
			var dot float64
			ti := 0
			for ty := 0; ty < tpl.h; ty++ {
				row := (y+ty)*hay.w + x
				for tx := 0; tx < tpl.w; tx++ {
					dot += hay.pix[row+tx] * zeroMean[ti]
					ti++
				}
			}
			score := dot / (math.Sqrt(winVar) * tplNorm)
			if score > bestScore {
				bestScore = score
				bestX, bestY = x, y
			}
		}
	}
	return bestScore, bestX, bestY
}
