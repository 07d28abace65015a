package suggest

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

// SaliencyConfig holds configuration for local subject detection
type SaliencyConfig struct {
	// EdgeThreshold is the minimum mean saliency for a window to count as a region.
	EdgeThreshold    float64
	ContrastWeight   float64
	BrightnessWeight float64
	// MinSubjectRatio drops windows smaller than this share of the image area.
	MinSubjectRatio float64
	MaxRegions      int
	// MaxDim bounds the long side of the working copy.
	MaxDim int
}

// DefaultSaliencyConfig returns the defaults.
func DefaultSaliencyConfig() SaliencyConfig {
	return SaliencyConfig{
		EdgeThreshold:    0.01,
		ContrastWeight:   0.3,
		BrightnessWeight: 0.2,
		MinSubjectRatio:  0.01,
		MaxRegions:       10,
		MaxDim:           256,
	}
}

// Region is a scored window in working-copy pixels.
type Region struct {
	image.Rectangle
	Score float64
}

// Saliency suggests crops from an edge and brightness saliency map. It needs no model.
type Saliency struct {
	config SaliencyConfig
	aspect float64
}

// NewSaliency creates a saliency suggester for crops of the given width/height ratio.
func NewSaliency(aspect float64) *Saliency {
	return NewSaliencyWithConfig(aspect, DefaultSaliencyConfig())
}

// NewSaliencyWithConfig creates a saliency suggester with custom configuration.
func NewSaliencyWithConfig(aspect float64, config SaliencyConfig) *Saliency {
	if config.MaxDim <= 0 {
		config.MaxDim = 256
	}
	if config.MaxRegions <= 0 {
		config.MaxRegions = 10
	}
	return &Saliency{config: config, aspect: aspect}
}

// Suggest returns the largest crop of the configured aspect that covers the most salient regions.
func (s *Saliency) Suggest(ctx context.Context, img image.Image) (image.Rectangle, error) {
	b := img.Bounds()
	if b.Empty() {
		return image.Rectangle{}, ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return image.Rectangle{}, err
	}

	work := imaging.Clone(img)
	if b.Dx() > s.config.MaxDim || b.Dy() > s.config.MaxDim {
		work = imaging.Fit(img, s.config.MaxDim, s.config.MaxDim, imaging.Box)
	}
	scaleX := float64(b.Dx()) / float64(work.Bounds().Dx())
	scaleY := float64(b.Dy()) / float64(work.Bounds().Dy())

	regions := s.DetectRegions(work)
	if err := ctx.Err(); err != nil {
		return image.Rectangle{}, err
	}
	best := s.bestCrop(regions, work.Bounds().Dx(), work.Bounds().Dy())

	scaled := image.Rect(
		int(math.Round(float64(best.Min.X)*scaleX)),
		int(math.Round(float64(best.Min.Y)*scaleY)),
		int(math.Round(float64(best.Max.X)*scaleX)),
		int(math.Round(float64(best.Max.Y)*scaleY)),
	)
	return FitAspect(scaled, s.aspect, b.Dx(), b.Dy()), nil
}

// DetectRegions returns the highest scoring windows of img, best first.
func (s *Saliency) DetectRegions(img *image.NRGBA) []Region {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	sal := s.saliencyMap(img)

	var regions []Region
	minArea := int(float64(w*h) * s.config.MinSubjectRatio)
	for _, size := range []int{w / 20, w / 16, w / 12, w / 8, w / 4} {
		if size < 10 || size*size < minArea {
			continue
		}
		step := max(size/8, 1)
		for y := 0; y+size <= h; y += step {
			for x := 0; x+size <= w; x += step {
				score := sal.mean(x, y, size, size)
				if score > s.config.EdgeThreshold {
					regions = append(regions, Region{Rectangle: image.Rect(x, y, x+size, y+size), Score: score})
				}
			}
		}
	}

	sort.SliceStable(regions, func(i, j int) bool { return regions[i].Score > regions[j].Score })
	if len(regions) > s.config.MaxRegions {
		regions = regions[:s.config.MaxRegions]
	}
	return regions
}

type saliencyMap struct {
	w, h int
	v    []float64
}

func (m saliencyMap) mean(x, y, w, h int) float64 {
	var total float64
	n := 0
	for ry := y; ry < y+h && ry < m.h; ry++ {
		for rx := x; rx < x+w && rx < m.w; rx++ {
			total += m.v[ry*m.w+rx]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// saliencyMap scores every interior pixel by its colour distance to its 8 neighbours
// combined with its brightness.
func (s *Saliency) saliencyMap(img *image.NRGBA) saliencyMap {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	m := saliencyMap{w: w, h: h, v: make([]float64, w*h)}
	px := func(x, y int) (float64, float64, float64) {
		i := y*img.Stride + x*4
		return float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			r1, g1, b1 := px(x, y)
			var edge float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					r2, g2, b2 := px(x+dx, y+dy)
					edge += math.Sqrt((r1-r2)*(r1-r2) + (g1-g2)*(g1-g2) + (b1-b2)*(b1-b2))
				}
			}
			edge /= 8 * 255
			brightness := (r1 + g1 + b1) / (3 * 255)
			m.v[y*w+x] = s.config.ContrastWeight*edge + s.config.BrightnessWeight*brightness
		}
	}
	return m
}

// bestCrop slides the largest crop of the configured aspect over the image and keeps
// the position covering the most region score. Ties keep the centred crop.
func (s *Saliency) bestCrop(regions []Region, w, h int) image.Rectangle {
	cw, ch := w, h
	if s.aspect > 0 {
		if s.aspect > float64(w)/float64(h) {
			ch = int(float64(w) / s.aspect)
		} else {
			cw = int(float64(h) * s.aspect)
		}
	}
	cw, ch = max(cw, 1), max(ch, 1)

	best := image.Rect((w-cw)/2, (h-ch)/2, (w-cw)/2+cw, (h-ch)/2+ch)
	bestScore := coverage(regions, best)
	step := max(max(cw, ch)/20, 1)
	for y := 0; y+ch <= h; y += step {
		for x := 0; x+cw <= w; x += step {
			r := image.Rect(x, y, x+cw, y+ch)
			if score := coverage(regions, r); score > bestScore {
				best, bestScore = r, score
			}
		}
	}
	return best
}

func coverage(regions []Region, r image.Rectangle) float64 {
	var score float64
	for _, reg := range regions {
		overlap := reg.Intersect(r)
		if overlap.Empty() {
			continue
		}
		ratio := float64(overlap.Dx()*overlap.Dy()) / float64(reg.Dx()*reg.Dy())
		score += ratio * reg.Score
	}
	return score
}
