package tiler

import (
	"errors"
	"image"
	"testing"

	"jp2tiles/internal/models"
	"jp2tiles/pkg/raster"
)

func grayRaster(w, h int, v uint8) *models.RawRaster {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return &models.RawRaster{Image: img}
}

// TestNormalizeSizes always yields the tile size
func TestNormalizeSizes(t *testing.T) {
	n := NewNormalizer(raster.NewProcessor(), nil, OutputOptions{BitDepth: 8})
	grid := []models.GridPosition{
		{Column: 0, Row: 0, Columns: 4, Rows: 4},
		{Column: 3, Row: 3, Columns: 4, Rows: 4},
		{Column: 1, Row: 2, Columns: 4, Rows: 4},
	}
	cases := []struct {
		w, h     int
		expected float64
	}{
		{64, 64, 64},    // exact
		{10, 40, 64},    // outer tile
		{70, 66, 64},    // decoder overshoot
		{16, 16, 16},    // upscale
		{5, 16, 16},     // upscaled outer tile
		{128, 128, 128}, // downscale
		{1, 1, 0.4},     // degenerate
	}
	for _, pos := range grid {
		for _, c := range cases {
			tile, err := n.Normalize(grayRaster(c.w, c.h, 100), NormalizeInput{
				TileSize: 64,
				Expected: c.expected,
				Position: pos,
			})
			if err != nil {
				t.Fatalf("%dx%d at %+v: %v", c.w, c.h, pos, err)
			}
			if b := tile.Image.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
				t.Errorf("%dx%d at %+v: expected 64x64, got %dx%d", c.w, c.h, pos, b.Dx(), b.Dy())
			}
		}
	}
}

// TestNormalizeStretchesInnerTiles never pads an inner tile that is a pixel short
func TestNormalizeStretchesInnerTiles(t *testing.T) {
	n := NewNormalizer(raster.NewProcessor(), nil, OutputOptions{BitDepth: 8})
	tile, err := n.Normalize(grayRaster(27, 28, 200), NormalizeInput{
		TileSize: 64,
		Expected: 27.6,
		Position: models.GridPosition{Column: 2, Row: 3, Columns: 10, Rows: 10},
	})
	if err != nil {
		t.Fatal(err)
	}
	gray := tile.Image.(*image.Gray)
	for _, x := range []int{0, 1, 62, 63} {
		if v := gray.GrayAt(x, 32).Y; v < 190 {
			t.Errorf("Expected content at column %d, got %d", x, v)
		}
	}

	// an outer column of the same tile is still padded outward
	tile, err = n.Normalize(grayRaster(14, 28, 200), NormalizeInput{
		TileSize: 64,
		Expected: 27.6,
		Position: models.GridPosition{Column: 0, Row: 3, Columns: 10, Rows: 10},
	})
	if err != nil {
		t.Fatal(err)
	}
	if v := tile.Image.(*image.Gray).GrayAt(0, 32).Y; v != 0 {
		t.Errorf("Expected padding on the left of an outer tile, got %d", v)
	}
}

// TestNormalizeRejectsEmpty fails on rasters without pixels
func TestNormalizeRejectsEmpty(t *testing.T) {
	n := NewNormalizer(raster.NewProcessor(), nil, OutputOptions{})
	_, err := n.Normalize(grayRaster(0, 0, 0), NormalizeInput{TileSize: 64, Expected: 64})
	var normErr *NormalizationError
	if !errors.As(err, &normErr) {
		t.Errorf("Expected NormalizationError, got %v", err)
	}
}

// stuckOps never changes image sizes
type stuckOps struct {
	*raster.Processor
}

func (stuckOps) Pad(img image.Image, width, height int, anchor raster.Anchor) image.Image {
	return img
}

func (stuckOps) Resize(img image.Image, width, height int) image.Image {
	return img
}

// TestNormalizeSizeCheck reports a wrong final size instead of emitting it
func TestNormalizeSizeCheck(t *testing.T) {
	n := NewNormalizer(stuckOps{raster.NewProcessor()}, nil, OutputOptions{BitDepth: 8})
	_, err := n.Normalize(grayRaster(18, 64, 10), NormalizeInput{
		TileSize: 64,
		Expected: 64,
		Position: models.GridPosition{Column: 0, Row: 2, Columns: 4, Rows: 4},
	})
	var normErr *NormalizationError
	if !errors.As(err, &normErr) {
		t.Fatalf("Expected NormalizationError, got %v", err)
	}
	if normErr.Width != 18 || normErr.Height != 64 {
		t.Errorf("Expected reported size 18x64, got %dx%d", normErr.Width, normErr.Height)
	}
}

// TestNormalizeBitDepth converts gray tiles to 16 bits
func TestNormalizeBitDepth(t *testing.T) {
	n := NewNormalizer(raster.NewProcessor(), nil, OutputOptions{BitDepth: 16})
	tile, err := n.Normalize(grayRaster(64, 64, 3), NormalizeInput{TileSize: 64, Expected: 64})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tile.Image.(*image.Gray16); !ok {
		t.Errorf("Expected 16-bit gray tile, got %T", tile.Image)
	}
}

// TestEncodeParams picks the quality of the tile format
func TestEncodeParams(t *testing.T) {
	n := NewNormalizer(raster.NewProcessor(), nil, OutputOptions{PNGQuality: 50, JPEGQuality: 80})
	if p := n.EncodeParams(Format(true)); p.Format != "png" || p.Quality != 50 {
		t.Errorf("Unexpected png params %+v", p)
	}
	if p := n.EncodeParams(Format(false)); p.Format != "jpeg" || p.Quality != 80 {
		t.Errorf("Unexpected jpeg params %+v", p)
	}
}
