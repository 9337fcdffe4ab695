package raster

import (
	"fmt"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// ApplyColorTable maps the intensity of every pixel through table. The
// intensity range is spread over the whole table, so a 256 entry table maps
// 8-bit values one to one. An empty table returns img unchanged.
func (p *Processor) ApplyColorTable(img image.Image, table color.Palette) image.Image {
	if len(table) == 0 {
		return img
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	last := uint32(len(table) - 1)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := intensity16(img.At(x, y))
			c := color.NRGBAModel.Convert(table[(v*last+0x7fff)/0xffff]).(color.NRGBA)
			dst.SetNRGBA(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return dst
}

// intensity16 returns the 16-bit gray level of c
func intensity16(c color.Color) uint32 {
	switch g := c.(type) {
	case color.Gray:
		return uint32(g.Y) * 0x101
	case color.Gray16:
		return uint32(g.Y)
	}
	return uint32(color.Gray16Model.Convert(c).(color.Gray16).Y)
}

// PaintTransparent returns an NRGBA copy of img in which every pixel whose
// counterpart in ref is zero (black) is fully transparent. ref is usually the
// raster before a color table was applied; pass img itself to clear black pixels.
func (p *Processor) PaintTransparent(img, ref image.Image) image.Image {
	b := img.Bounds()
	rb := ref.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Copy(dst, image.Point{}, img, b, xdraw.Src, nil)

	for y := 0; y < b.Dy() && y < rb.Dy(); y++ {
		for x := 0; x < b.Dx() && x < rb.Dx(); x++ {
			r, g, bl, _ := ref.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			if r == 0 && g == 0 && bl == 0 {
				dst.SetNRGBA(x, y, color.NRGBA{})
			}
		}
	}
	return dst
}

// SetBitDepth converts img to 8 or 16 bits per channel, keeping gray images
// gray and paletted images untouched.
func (p *Processor) SetBitDepth(img image.Image, depth int) (image.Image, error) {
	if depth != 8 && depth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", depth)
	}
	b := img.Bounds()
	r := image.Rect(0, 0, b.Dx(), b.Dy())

	var dst xdraw.Image
	switch img.(type) {
	case *image.Paletted:
		return img, nil
	case *image.Gray, *image.Gray16:
		if depth == 8 {
			if g, ok := img.(*image.Gray); ok {
				return g, nil
			}
			dst = image.NewGray(r)
		} else {
			if g, ok := img.(*image.Gray16); ok {
				return g, nil
			}
			dst = image.NewGray16(r)
		}
	default:
		if depth == 8 {
			if n, ok := img.(*image.NRGBA); ok {
				return n, nil
			}
			dst = image.NewNRGBA(r)
		} else {
			if n, ok := img.(*image.NRGBA64); ok {
				return n, nil
			}
			dst = image.NewNRGBA64(r)
		}
	}
	xdraw.Copy(dst, image.Point{}, img, b, xdraw.Src, nil)
	return dst, nil
}
