package geometry

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

const tol = 1e-12

// TestDesiredScaleAtBaseZoom verifies that the base zoom level maps to the base scale exactly
func TestDesiredScaleAtBaseZoom(t *testing.T) {
	for _, base := range []float64{2.63, 0.6, 1.0, 12.5} {
		if got := DesiredScale(10, base, 10); got != base {
			t.Errorf("Expected scale %v at base zoom, got %v", base, got)
		}
	}
}

// TestDesiredScaleSteps checks doubling and halving per zoom step
func TestDesiredScaleSteps(t *testing.T) {
	if got := DesiredScale(12, 2.63, 10); got != 10.52 {
		t.Errorf("Expected 10.52 two levels out, got %v", got)
	}
	if got := DesiredScale(9, 2.63, 10); got != 1.315 {
		t.Errorf("Expected 1.315 one level in, got %v", got)
	}
	if got := DesiredScale(-3, 1, 0); got != 0.125 {
		t.Errorf("Expected 0.125 for negative zoom, got %v", got)
	}
}

// TestReductionFactor covers the equal, coarser and finer cases
func TestReductionFactor(t *testing.T) {
	if got := ReductionFactor(2.63, 2.63); got != 0 {
		t.Errorf("Expected reduction 0 for equal scales, got %v", got)
	}

	desired := DesiredScale(12, 2.63, 10)
	if got := ReductionFactor(desired, 2.63); got != 2.0 {
		t.Errorf("Expected reduction 2.0, got %v", got)
	}

	if got := ReductionFactor(0.6, 2.4); got != -2.0 {
		t.Errorf("Expected reduction -2.0 for finer request, got %v", got)
	}

	got := ReductionFactor(3.0, 2.0)
	if !scalar.EqualWithinAbs(got, math.Log2(1.5), tol) {
		t.Errorf("Expected continuous reduction %v, got %v", math.Log2(1.5), got)
	}
}

// TestDiscreteReduction verifies flooring and clamping
func TestDiscreteReduction(t *testing.T) {
	cases := []struct {
		factor float64
		max    int
		want   int
	}{
		{0, 5, 0},
		{-1.5, 5, 0},
		{0.58, 5, 0},
		{1.0, 5, 1},
		{1.9999999999999, 5, 2},
		{2.7, 5, 2},
		{7.2, 5, 5},
		{7.2, -1, 7},
		{math.NaN(), 5, 0},
	}
	for _, c := range cases {
		if got := DiscreteReduction(c.factor, c.max); got != c.want {
			t.Errorf("DiscreteReduction(%v, %d): expected %d, got %d", c.factor, c.max, c.want, got)
		}
	}
}

// TestRelativeTileSize checks scaling of the tile into source pixels
func TestRelativeTileSize(t *testing.T) {
	if got := RelativeTileSize(512, 10.52, 2.63); got != 2048 {
		t.Errorf("Expected relative tile size 2048, got %v", got)
	}
	if got := RelativeTileSize(512, 0.6, 2.4); got != 128 {
		t.Errorf("Expected relative tile size 128, got %v", got)
	}
}

// TestTilesPerAxis checks the even-rounding rule, including exact multiples
func TestTilesPerAxis(t *testing.T) {
	cases := []struct {
		dim  int
		ts   float64
		want int
	}{
		{4096, 512, 8},
		{4200, 512, 10},
		{4608, 512, 10}, // exactly 9 tiles -> forced even
		{5120, 512, 10}, // exactly 10 tiles, no doubling
		{1024, 512, 2},
		{1025, 512, 4},
		{100, 512, 2},
		{512, 512, 2},
		{3, 1, 4},
	}
	for _, c := range cases {
		if got := TilesPerAxis(c.dim, c.ts); got != c.want {
			t.Errorf("TilesPerAxis(%d, %v): expected %d, got %d", c.dim, c.ts, c.want, got)
		}
	}
}

// TestMapRegionUniformGrid is the 4096/512 scenario where outer tiles equal inner ones
func TestMapRegionUniformGrid(t *testing.T) {
	if got := OuterTileSize(4096, 512); got != 512 {
		t.Fatalf("Expected outer tile size 512, got %v", got)
	}

	r := MapRegion(4096, 4096, 512, -4, -4)
	if r.Top != 0 || r.Left != 0 || r.Height != 0.125 || r.Width != 0.125 {
		t.Errorf("Expected {0,0,0.125,0.125}, got %+v", r)
	}

	r = MapRegion(4096, 4096, 512, 0, 0)
	if r.Top != 0.5 || r.Left != 0.5 {
		t.Errorf("Expected tile (0,0) to start at the image center, got %+v", r)
	}
}

// TestMapRegionOuterTiles is the 4200/512 scenario with 52 pixel outer tiles
func TestMapRegionOuterTiles(t *testing.T) {
	if got := OuterTileSize(4200, 512); got != 52 {
		t.Fatalf("Expected outer tile size 52, got %v", got)
	}

	first := MapRegion(4200, 4200, 512, -5, -5)
	if first.Top != 0 || first.Left != 0 {
		t.Errorf("Expected first tile at origin, got %+v", first)
	}
	if !scalar.EqualWithinAbs(first.Height, 52.0/4200, tol) || !scalar.EqualWithinAbs(first.Width, 52.0/4200, tol) {
		t.Errorf("Expected first tile extent %v, got %+v", 52.0/4200, first)
	}

	second := MapRegion(4200, 4200, 512, -4, -4)
	if !scalar.EqualWithinAbs(second.Left, 52.0/4200, tol) || !scalar.EqualWithinAbs(second.Width, 512.0/4200, tol) {
		t.Errorf("Expected second tile at 52px with 512px width, got %+v", second)
	}

	last := MapRegion(4200, 4200, 512, 4, 4)
	if !scalar.EqualWithinAbs(last.Right(), 1, tol) || !scalar.EqualWithinAbs(last.Width, 52.0/4200, tol) {
		t.Errorf("Expected last tile to end at 1 with outer width, got %+v", last)
	}
}

// TestMapRegionTilesUnitSquare checks that the grid covers each axis without gaps or overlaps
func TestMapRegionTilesUnitSquare(t *testing.T) {
	cases := []struct {
		w, h int
		ts   float64
	}{
		{4096, 4096, 512},
		{4200, 4200, 512},
		{4608, 3000, 512},
		{1024, 1024, 512},
		{1023, 2049, 256},
		{4096, 4096, 2048},
		{4096, 4096, 137.5},
		{5120, 5120, 512},
	}
	for _, c := range cases {
		g := NewGrid(c.w, c.h, c.ts)
		xlo, xhi := Range(g.Columns)
		ylo, yhi := Range(g.Rows)

		widths := make([]float64, 0, g.Columns)
		edge := 0.0
		for x := xlo; x <= xhi; x++ {
			r := MapRegion(c.w, c.h, c.ts, x, ylo)
			if !scalar.EqualWithinAbs(r.Left, edge, 1e-9) {
				t.Errorf("%dx%d/%v: tile x=%d starts at %v, expected %v", c.w, c.h, c.ts, x, r.Left, edge)
			}
			edge = r.Right()
			widths = append(widths, r.Width)
		}
		if sum := floats.Sum(widths); !scalar.EqualWithinAbs(sum, 1, 1e-9) {
			t.Errorf("%dx%d/%v: widths sum to %v, expected 1", c.w, c.h, c.ts, sum)
		}

		heights := make([]float64, 0, g.Rows)
		edge = 0.0
		for y := ylo; y <= yhi; y++ {
			r := MapRegion(c.w, c.h, c.ts, xlo, y)
			if !scalar.EqualWithinAbs(r.Top, edge, 1e-9) {
				t.Errorf("%dx%d/%v: tile y=%d starts at %v, expected %v", c.w, c.h, c.ts, y, r.Top, edge)
			}
			edge = r.Bottom()
			heights = append(heights, r.Height)
		}
		if sum := floats.Sum(heights); !scalar.EqualWithinAbs(sum, 1, 1e-9) {
			t.Errorf("%dx%d/%v: heights sum to %v, expected 1", c.w, c.h, c.ts, sum)
		}
	}
}

// TestMapRegionSymmetric verifies that mirrored tiles have equal extents
func TestMapRegionSymmetric(t *testing.T) {
	g := NewGrid(4200, 3000, 512)
	lo, hi := Range(g.Columns)
	for x := lo; x <= hi; x++ {
		a := MapRegion(4200, 3000, 512, x, 0)
		b := MapRegion(4200, 3000, 512, -x-1, 0)
		if !scalar.EqualWithinAbs(a.Width, b.Width, tol) {
			t.Errorf("Expected tile %d and %d to have equal widths, got %v and %v", x, -x-1, a.Width, b.Width)
		}
	}
}

// TestGridValidate checks the accepted index range
func TestGridValidate(t *testing.T) {
	g := NewGrid(4200, 4096, 512)
	if g.Columns != 10 || g.Rows != 8 {
		t.Fatalf("Expected 10x8 grid, got %dx%d", g.Columns, g.Rows)
	}

	valid := [][2]int{{-5, -4}, {4, 3}, {0, 0}, {-1, -1}}
	for _, v := range valid {
		if err := g.Validate(v[0], v[1]); err != nil {
			t.Errorf("Expected (%d,%d) to be valid, got %v", v[0], v[1], err)
		}
	}

	invalid := [][2]int{{-6, 0}, {5, 0}, {0, -5}, {0, 4}}
	for _, v := range invalid {
		err := g.Validate(v[0], v[1])
		var coordErr *InvalidTileCoordinateError
		if !errors.As(err, &coordErr) {
			t.Errorf("Expected InvalidTileCoordinateError for (%d,%d), got %v", v[0], v[1], err)
		}
	}
}

// TestGridPosition checks conversion to 0-based indices and edge predicates
func TestGridPosition(t *testing.T) {
	g := NewGrid(4096, 4096, 512)

	p := g.Position(-4, 3)
	if p.Column != 0 || p.Row != 7 {
		t.Errorf("Expected (0,7), got (%d,%d)", p.Column, p.Row)
	}
	if !p.LeftEdge() || !p.BottomEdge() || p.RightEdge() || p.TopEdge() {
		t.Errorf("Unexpected edge flags for %+v", p)
	}
	if !p.PadsLeft() || p.PadsTop() {
		t.Errorf("Expected bottom-left tile to pad left and bottom, got %+v", p)
	}

	p = g.Position(0, -1)
	if p.PadsLeft() || !p.PadsTop() {
		t.Errorf("Expected tile (0,-1) to pad right and top, got %+v", p)
	}
}

// TestRegionString checks the decoder argument literal and its precision
func TestRegionString(t *testing.T) {
	r := MapRegion(4200, 4200, 512, -5, 0)
	got := RegionString(r)
	want := "{0.500000000,0.000000000},{0.121904762,0.012380952}"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}
