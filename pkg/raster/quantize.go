package raster

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// colorCount is one distinct color of an image and how often it occurs
type colorCount struct {
	c     color.NRGBA
	count float64
}

// colorBox is a set of distinct colors that end up as one palette entry
type colorBox struct {
	colors []colorCount
}

func channel(c color.NRGBA, ch int) float64 {
	switch ch {
	case 0:
		return float64(c.R)
	case 1:
		return float64(c.G)
	case 2:
		return float64(c.B)
	}
	return float64(c.A)
}

// spread returns the channel with the highest weighted variance and that variance
func (b *colorBox) spread() (int, float64) {
	if len(b.colors) < 2 {
		return 0, 0
	}
	x := make([]float64, len(b.colors))
	w := make([]float64, len(b.colors))
	best, bestVar := 0, -1.0
	for ch := 0; ch < 4; ch++ {
		for i, cc := range b.colors {
			x[i] = channel(cc.c, ch)
			w[i] = cc.count
		}
		if v := stat.Variance(x, w); v > bestVar {
			best, bestVar = ch, v
		}
	}
	return best, bestVar
}

// split cuts the box at the weighted median of channel ch
func (b *colorBox) split(ch int) (*colorBox, *colorBox) {
	sort.Slice(b.colors, func(i, j int) bool {
		return channel(b.colors[i].c, ch) < channel(b.colors[j].c, ch)
	})
	x := make([]float64, len(b.colors))
	w := make([]float64, len(b.colors))
	for i, cc := range b.colors {
		x[i] = channel(cc.c, ch)
		w[i] = cc.count
	}
	median := stat.Quantile(0.5, stat.Empirical, x, w)

	cut := sort.Search(len(x), func(i int) bool { return x[i] > median })
	if cut == 0 || cut == len(x) {
		cut = len(x) / 2
	}
	return &colorBox{colors: b.colors[:cut]}, &colorBox{colors: b.colors[cut:]}
}

// mean is the count weighted average color of the box
func (b *colorBox) mean() color.NRGBA {
	x := make([]float64, len(b.colors))
	w := make([]float64, len(b.colors))
	var out [4]uint8
	for ch := 0; ch < 4; ch++ {
		for i, cc := range b.colors {
			x[i] = channel(cc.c, ch)
			w[i] = cc.count
		}
		out[ch] = uint8(stat.Mean(x, w) + 0.5)
	}
	return color.NRGBA{R: out[0], G: out[1], B: out[2], A: out[3]}
}

// Quantize reduces img to a palette of at most colors entries using median
// cut. Fully transparent pixels share a single palette entry.
func (p *Processor) Quantize(img image.Image, colors int) (*image.Paletted, error) {
	if colors < 1 || colors > 256 {
		return nil, fmt.Errorf("palette size must be in [1,256], got %d", colors)
	}
	b := img.Bounds()

	counts := make(map[color.NRGBA]float64)
	transparent := false
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := toNRGBA(img.At(x, y))
			if c.A == 0 {
				transparent = true
				continue
			}
			counts[c]++
		}
	}

	distinct := make([]colorCount, 0, len(counts))
	for c, n := range counts {
		distinct = append(distinct, colorCount{c, n})
	}
	// deterministic order, independent of map iteration
	sort.Slice(distinct, func(i, j int) bool {
		a, c := distinct[i].c, distinct[j].c
		if a.A != c.A {
			return a.A < c.A
		}
		if a.R != c.R {
			return a.R < c.R
		}
		if a.G != c.G {
			return a.G < c.G
		}
		return a.B < c.B
	})

	var palette color.Palette
	lookup := make(map[color.NRGBA]uint8, len(distinct)+1)
	if transparent && len(distinct) > 0 && colors < 2 {
		return nil, fmt.Errorf("a palette of %d entries cannot hold both transparent and opaque pixels", colors)
	}
	if transparent {
		// index 0 is reserved for fully transparent pixels
		palette = append(palette, color.NRGBA{})
		lookup[color.NRGBA{}] = 0
		colors--
	}

	if len(distinct) > 0 && colors > 0 {
		boxes := []*colorBox{{colors: distinct}}
		for len(boxes) < colors {
			idx, ch, best := -1, 0, 0.0
			for i, box := range boxes {
				if c, v := box.spread(); v > best {
					idx, ch, best = i, c, v
				}
			}
			if idx < 0 {
				break
			}
			lo, hi := boxes[idx].split(ch)
			boxes[idx] = lo
			boxes = append(boxes, hi)
		}
		for _, box := range boxes {
			i := uint8(len(palette))
			palette = append(palette, box.mean())
			for _, cc := range box.colors {
				lookup[cc.c] = i
			}
		}
	}
	if len(palette) == 0 {
		palette = append(palette, color.NRGBA{A: 0xff})
	}

	dst := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), palette)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetColorIndex(x-b.Min.X, y-b.Min.Y, lookup[toNRGBA(img.At(x, y))])
		}
	}
	return dst, nil
}

// toNRGBA converts c, collapsing every fully transparent color to the zero value
func toNRGBA(c color.Color) color.NRGBA {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if n.A == 0 {
		return color.NRGBA{}
	}
	return n
}
