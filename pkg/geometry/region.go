package geometry

import (
	"fmt"
	"math"

	"jp2tiles/internal/models"
)

// TilesPerAxis returns the number of tiles needed to cover pixelDim pixels
// with tiles of tileSize pixels. The grid is centered on the image, so the
// count is always even and at least two.
func TilesPerAxis(pixelDim int, tileSize float64) int {
	n := int(math.Ceil(float64(pixelDim) / tileSize))
	if n < 2 {
		n = 2
	}
	if n%2 != 0 {
		n++
	}
	return n
}

// OuterTileSize returns the extent in source pixels of the first and last
// tile along an axis. The inner tiles are exactly tileSize wide, and the two
// outer tiles split whatever remains so that
// 2*outer + (tiles-2)*tileSize == pixelDim.
func OuterTileSize(pixelDim int, tileSize float64) float64 {
	inner := TilesPerAxis(pixelDim, tileSize) - 2
	return (float64(pixelDim) - float64(inner)*tileSize) / 2
}

// axisSpan computes the offset and extent, in source pixels, of the tile at
// the center-relative index along one axis.
func axisSpan(pixelDim int, tileSize float64, index int) (offset, extent float64) {
	n := TilesPerAxis(pixelDim, tileSize)
	gridIndex := n/2 + index
	outer := OuterTileSize(pixelDim, tileSize)

	if gridIndex == 0 {
		offset = 0
	} else {
		offset = outer + float64(gridIndex-1)*tileSize
	}

	if gridIndex == 0 || gridIndex == n-1 {
		extent = outer
	} else {
		extent = tileSize
	}
	return offset, extent
}

// MapRegion returns the normalized rectangle of the source image covered by
// tile (tileX, tileY). tileSize is measured in source pixels and may be
// fractional when the requested scale differs from the native one.
//
// Callers must reject indices outside the grid (see Grid.Validate) and
// non-positive sizes beforehand; MapRegion does not check its arguments.
func MapRegion(pixelWidth, pixelHeight int, tileSize float64, tileX, tileY int) models.RegionSpec {
	left, width := axisSpan(pixelWidth, tileSize, tileX)
	top, height := axisSpan(pixelHeight, tileSize, tileY)

	return models.RegionSpec{
		Top:    top / float64(pixelHeight),
		Left:   left / float64(pixelWidth),
		Height: height / float64(pixelHeight),
		Width:  width / float64(pixelWidth),
	}
}

// RegionString renders a region in the form understood by kdu_expand's
// -region argument: {top,left},{height,width}. Nine decimals keep tiles
// aligned at the deepest zoom levels.
func RegionString(r models.RegionSpec) string {
	return fmt.Sprintf("{%.9f,%.9f},{%.9f,%.9f}", r.Top, r.Left, r.Height, r.Width)
}

// Grid describes the centered tile grid of one image at one relative tile size
type Grid struct {
	Columns  int
	Rows     int
	TileSize float64
}

// NewGrid returns the tile grid of a pixelWidth x pixelHeight image
func NewGrid(pixelWidth, pixelHeight int, tileSize float64) Grid {
	return Grid{
		Columns:  TilesPerAxis(pixelWidth, tileSize),
		Rows:     TilesPerAxis(pixelHeight, tileSize),
		TileSize: tileSize,
	}
}

// Range returns the smallest and largest valid center-relative index along
// an axis with n tiles.
func Range(n int) (lo, hi int) {
	return -n / 2, n/2 - 1
}

// Validate checks that (tileX, tileY) lies inside the grid
func (g Grid) Validate(tileX, tileY int) error {
	xlo, xhi := Range(g.Columns)
	ylo, yhi := Range(g.Rows)
	if tileX < xlo || tileX > xhi || tileY < ylo || tileY > yhi {
		return &InvalidTileCoordinateError{
			X: tileX, Y: tileY,
			MinX: xlo, MaxX: xhi,
			MinY: ylo, MaxY: yhi,
		}
	}
	return nil
}

// Position converts center-relative tile coordinates to 0-based grid indices
func (g Grid) Position(tileX, tileY int) models.GridPosition {
	return models.GridPosition{
		Column:  g.Columns/2 + tileX,
		Row:     g.Rows/2 + tileY,
		Columns: g.Columns,
		Rows:    g.Rows,
	}
}

// InvalidTileCoordinateError is returned for tiles outside the grid
type InvalidTileCoordinateError struct {
	X, Y       int
	MinX, MaxX int
	MinY, MaxY int
}

func (e *InvalidTileCoordinateError) Error() string {
	return fmt.Sprintf("tile (%d,%d) outside grid: x must be in [%d,%d], y in [%d,%d]",
		e.X, e.Y, e.MinX, e.MaxX, e.MinY, e.MaxY)
}
