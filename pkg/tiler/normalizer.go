package tiler

import (
	"fmt"
	"image"
	"math"

	"jp2tiles/internal/models"
	"jp2tiles/pkg/colortable"
	"jp2tiles/pkg/raster"
)

// OutputOptions are the encoding parameters shared by every tile
type OutputOptions struct {
	PNGQuality  int
	JPEGQuality int
	BitDepth    int
	NumColors   int
}

// NormalizeInput describes the tile a raw raster belongs to
type NormalizeInput struct {
	TileSize int

	// Expected is the size, in decoded pixels, of a full inner tile at
	// the applied reduction
	Expected float64

	Position     models.GridPosition
	Detector     string
	Measurement  string
	OpacityGroup bool
}

// Normalizer turns decoded rasters into square output tiles
type Normalizer struct {
	ops    raster.Ops
	tables *colortable.Store
	opts   OutputOptions
}

// NewNormalizer returns a Normalizer. tables may be nil, in which case no
// color table is ever applied.
func NewNormalizer(ops raster.Ops, tables *colortable.Store, opts OutputOptions) *Normalizer {
	if opts.BitDepth == 0 {
		opts.BitDepth = 8
	}
	return &Normalizer{ops: ops, tables: tables, opts: opts}
}

// Format returns the output format for images of the given opacity group
func Format(opacityGroup bool) string {
	if opacityGroup {
		return models.FormatPNG
	}
	return models.FormatJPEG
}

// EncodeParams returns the encoder settings for a tile format
func (n *Normalizer) EncodeParams(format string) raster.EncodeParams {
	p := raster.EncodeParams{Format: format}
	if format == models.FormatPNG {
		p.Quality = n.opts.PNGQuality
	} else {
		p.Quality = n.opts.JPEGQuality
	}
	return p
}

// Normalize pads, resizes, colors and quantizes raw into a tile of exactly
// in.TileSize pixels on each side.
func (n *Normalizer) Normalize(raw *models.RawRaster, in NormalizeInput) (*models.OutputTile, error) {
	ts := in.TileSize
	if raw == nil || raw.Image == nil || raw.Width() == 0 || raw.Height() == 0 {
		return nil, &NormalizationError{Stage: "input", TileSize: ts}
	}
	anchor := raster.Anchor{PadLeft: in.Position.PadsLeft(), PadTop: in.Position.PadsTop()}
	img := raw.Image

	// Outer tiles cover less of the source than inner ones. Bring them up
	// to the inner tile size before scaling so they scale by the same factor.
	// Inner axes are only ever a sub-pixel off and are stretched instead.
	outerX := in.Position.LeftEdge() || in.Position.RightEdge()
	outerY := in.Position.TopEdge() || in.Position.BottomEdge()
	expected := max(int(math.Round(in.Expected)), 1)
	padW, padH := raw.Width(), raw.Height()
	if outerX {
		padW = expected
	}
	if outerY {
		padH = expected
	}
	img = n.ops.Pad(img, padW, padH, anchor)

	if b := img.Bounds(); b.Dx() != ts || b.Dy() != ts {
		scale := float64(ts) / float64(expected)
		w, h := ts, ts
		if outerX {
			w = max(int(math.Round(float64(b.Dx())*scale)), 1)
		}
		if outerY {
			h = max(int(math.Round(float64(b.Dy())*scale)), 1)
		}
		img = n.ops.Resize(img, w, h)
	}

	img = n.ops.Pad(img, ts, ts, anchor)
	if b := img.Bounds(); b.Dx() > ts || b.Dy() > ts {
		// drop the excess on the outward side, where padding would go
		r := image.Rect(0, 0, ts, ts)
		if anchor.PadLeft {
			r = r.Add(image.Pt(b.Dx()-ts, 0))
		}
		if anchor.PadTop {
			r = r.Add(image.Pt(0, b.Dy()-ts))
		}
		img = n.ops.Crop(img, r.Add(b.Min))
	}

	format := Format(in.OpacityGroup)
	reference := img
	if n.tables != nil {
		table, err := n.tables.Lookup(in.Detector, in.Measurement)
		if err != nil {
			return nil, &NormalizationError{Stage: "color table", TileSize: ts, Err: err}
		}
		if table != nil {
			img = n.ops.ApplyColorTable(img, table)
		}
	}
	if format == models.FormatPNG {
		img = n.ops.PaintTransparent(img, reference)
	}

	img, err := n.ops.SetBitDepth(img, n.opts.BitDepth)
	if err != nil {
		return nil, &NormalizationError{Stage: "bit depth", TileSize: ts, Err: err}
	}

	paletted := false
	if format == models.FormatPNG && n.opts.NumColors > 0 && n.opts.BitDepth == 8 {
		q, err := n.ops.Quantize(img, n.opts.NumColors)
		if err != nil {
			return nil, &NormalizationError{Stage: "quantize", TileSize: ts, Err: err}
		}
		img, paletted = q, true
	}

	if b := img.Bounds(); b.Dx() != ts || b.Dy() != ts {
		return nil, &NormalizationError{Stage: "size check", Width: b.Dx(), Height: b.Dy(), TileSize: ts}
	}
	return &models.OutputTile{Image: img, Format: format, Size: ts, Paletted: paletted}, nil
}

// String describes the options for log messages
func (o OutputOptions) String() string {
	return fmt.Sprintf("png quality %d, jpeg quality %d, %d-bit, %d colors",
		o.PNGQuality, o.JPEGQuality, o.BitDepth, o.NumColors)
}
