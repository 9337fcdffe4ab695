package models

import (
	"image"
	"time"
)

// SourceImage is the metadata snapshot of one JPEG 2000 source image.
// It is loaded once per request and never mutated.
type SourceImage struct {
	// ID is the catalog identifier of the image
	ID int64 `yaml:"id" json:"id"`

	// URI is the path of the JP2 codestream on disk
	URI string `yaml:"uri" json:"uri"`

	// Width and Height are the full-resolution pixel dimensions
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// NativeScale is the physical length covered by one source pixel
	// (arcseconds per pixel for solar imagery)
	NativeScale float64 `yaml:"scale" json:"scale"`

	Instrument  string `yaml:"instrument" json:"instrument"`
	Detector    string `yaml:"detector" json:"detector"`
	Measurement string `yaml:"measurement" json:"measurement"`

	// OpacityGroup marks images that are layered with transparency and
	// therefore emitted as alpha-capable PNG tiles
	OpacityGroup bool `yaml:"opacityGroup" json:"opacityGroup"`

	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
}

// TileRequest identifies one tile of one image at one zoom level.
// TileX and TileY are signed and relative to the image center: the tiles
// left of and above the center are negative.
type TileRequest struct {
	ImageID   int64
	ZoomLevel int
	TileX     int
	TileY     int
	TileSize  int
}

// ScaleContext holds the scale values derived for a single request
type ScaleContext struct {
	// DesiredScale is the physical scale requested by the zoom level
	DesiredScale float64

	// ReductionFactor is log2(DesiredScale/NativeScale), unrounded
	ReductionFactor float64

	// RelativeTileSize is the tile size expressed in native source pixels
	RelativeTileSize float64

	// AppliedReduction is the discrete resolution level handed to the decoder
	AppliedReduction int
}

// DecodedTileSize is the size, in decoded pixels, that a full inner tile has
// once the decoder has applied AppliedReduction.
func (s ScaleContext) DecodedTileSize() float64 {
	return s.RelativeTileSize / float64(int(1)<<uint(s.AppliedReduction))
}

// RegionSpec is a normalized rectangle, every field in [0,1], relative to
// the source image dimensions.
type RegionSpec struct {
	Top    float64
	Left   float64
	Height float64
	Width  float64
}

// Bottom returns Top+Height
func (r RegionSpec) Bottom() float64 { return r.Top + r.Height }

// Right returns Left+Width
func (r RegionSpec) Right() float64 { return r.Left + r.Width }

// Pixels converts the region to a pixel rectangle of an image with the given
// dimensions. Edges are rounded to the nearest pixel so that neighbouring
// regions share their boundaries.
func (r RegionSpec) Pixels(width, height int) image.Rectangle {
	x0 := roundPixel(r.Left * float64(width))
	y0 := roundPixel(r.Top * float64(height))
	x1 := roundPixel(r.Right() * float64(width))
	y1 := roundPixel(r.Bottom() * float64(height))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, width, height))
}

func roundPixel(v float64) int {
	return int(v + 0.5)
}

// GridPosition locates a tile in the 0-based tile grid of an image
type GridPosition struct {
	Column  int
	Row     int
	Columns int
	Rows    int
}

// LeftEdge reports whether the tile is in the first column
func (p GridPosition) LeftEdge() bool { return p.Column == 0 }

// RightEdge reports whether the tile is in the last column
func (p GridPosition) RightEdge() bool { return p.Column == p.Columns-1 }

// TopEdge reports whether the tile is in the first row
func (p GridPosition) TopEdge() bool { return p.Row == 0 }

// BottomEdge reports whether the tile is in the last row
func (p GridPosition) BottomEdge() bool { return p.Row == p.Rows-1 }

// PadsLeft reports whether padding for this tile goes on its left side.
// Tiles in the left half of the grid are padded outward, i.e. on the left.
func (p GridPosition) PadsLeft() bool { return p.Column < p.Columns/2 }

// PadsTop reports whether padding for this tile goes on its top side
func (p GridPosition) PadsTop() bool { return p.Row < p.Rows/2 }

// RawRaster is the intermediate image produced by a decoder. Its dimensions
// are decided by the decoder and may be smaller than a full tile.
type RawRaster struct {
	Image image.Image
}

// Width of the raster in pixels
func (r *RawRaster) Width() int { return r.Image.Bounds().Dx() }

// Height of the raster in pixels
func (r *RawRaster) Height() int { return r.Image.Bounds().Dy() }

// Tile output formats
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// OutputTile is the final square tile
type OutputTile struct {
	Image    image.Image
	Format   string
	Size     int
	Paletted bool

	// Encoded holds the encoded file bytes once the tile has been encoded
	Encoded []byte
}
