// Package raster implements the image operations the tile pipeline needs:
// crop, edge-anchored padding, resampling, color lookup tables, transparency,
// bit depth conversion, palette quantization and PNG/JPEG encoding.
package raster

import (
	"image"
	"image/color"
	"io"

	xdraw "golang.org/x/image/draw"
)

// Anchor says on which sides padding is added. Content is pushed to the
// opposite side, so a tile on the left edge of the grid keeps its pixels
// against its right border.
type Anchor struct {
	PadLeft bool
	PadTop  bool
}

// EncodeParams controls how a tile is written
type EncodeParams struct {
	// Format is "png" or "jpeg"
	Format string

	// Quality is the ImageMagick style compression quality: JPEG quality
	// for JPEG, tens digit = zlib level for PNG
	Quality int
}

// Ops is the set of raster operations used by the tile normalizer.
// Implementations must not modify their inputs.
type Ops interface {
	Crop(img image.Image, r image.Rectangle) image.Image
	Pad(img image.Image, width, height int, anchor Anchor) image.Image
	Resize(img image.Image, width, height int) image.Image
	ApplyColorTable(img image.Image, table color.Palette) image.Image
	PaintTransparent(img, ref image.Image) image.Image
	SetBitDepth(img image.Image, depth int) (image.Image, error)
	Quantize(img image.Image, colors int) (*image.Paletted, error)
	Encode(w io.Writer, img image.Image, p EncodeParams) error
	WriteFile(path string, img image.Image, p EncodeParams) error
}

// Processor is the pure Go implementation of Ops
type Processor struct {
	// Interpolator resamples continuous data. Defaults to Catmull-Rom.
	Interpolator xdraw.Interpolator
}

// NewProcessor returns a Processor using Catmull-Rom resampling
func NewProcessor() *Processor {
	return &Processor{Interpolator: xdraw.CatmullRom}
}

var _ Ops = (*Processor)(nil)

// Crop returns a copy of the part of img inside r, with bounds starting at (0,0)
func (p *Processor) Crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	dst := newLike(img, r.Dx(), r.Dy())
	xdraw.Copy(dst, image.Point{}, img, r, xdraw.Src, nil)
	return dst
}

// Pad grows img to at least width x height, filling with zero (transparent
// or black) pixels on the sides selected by anchor. Axes already at or above
// the target are left alone.
func (p *Processor) Pad(img image.Image, width, height int, anchor Anchor) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w >= width && h >= height {
		return img
	}
	padX := max(width-w, 0)
	padY := max(height-h, 0)

	dst := newLike(img, w+padX, h+padY)
	at := image.Point{}
	if anchor.PadLeft {
		at.X = padX
	}
	if anchor.PadTop {
		at.Y = padY
	}
	xdraw.Copy(dst, at, img, b, xdraw.Src, nil)
	return dst
}

// Resize resamples img to exactly width x height
func (p *Processor) Resize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	interp := p.Interpolator
	if interp == nil {
		interp = xdraw.CatmullRom
	}
	if _, ok := img.(*image.Paletted); ok {
		// palette indices are not continuous values
		interp = xdraw.NearestNeighbor
	}
	dst := newLike(img, width, height)
	interp.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// newLike allocates a w x h image able to hold the pixels of img without loss
func newLike(img image.Image, w, h int) xdraw.Image {
	r := image.Rect(0, 0, w, h)
	switch src := img.(type) {
	case *image.Gray:
		return image.NewGray(r)
	case *image.Gray16:
		return image.NewGray16(r)
	case *image.NRGBA:
		return image.NewNRGBA(r)
	case *image.NRGBA64:
		return image.NewNRGBA64(r)
	case *image.RGBA64:
		return image.NewRGBA64(r)
	case *image.Paletted:
		pal := make(color.Palette, len(src.Palette))
		copy(pal, src.Palette)
		return image.NewPaletted(r, pal)
	}
	return image.NewRGBA(r)
}
