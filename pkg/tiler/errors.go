package tiler

import (
	"errors"
	"fmt"

	"jp2tiles/pkg/decoder"
	"jp2tiles/pkg/geometry"
)

// ErrMetadataNotFound is returned when the catalog has no record for the
// requested image. The catalog error is wrapped alongside it.
var ErrMetadataNotFound = errors.New("image metadata not found")

// DecodeError and InvalidTileCoordinateError are the decoder and geometry
// failures surfaced by the pipeline. Use errors.As to inspect them.
type (
	DecodeError                = decoder.DecodeError
	InvalidTileCoordinateError = geometry.InvalidTileCoordinateError
)

// NormalizationError reports a tile that could not be brought to its
// required size or format
type NormalizationError struct {
	Stage         string
	Width, Height int
	TileSize      int
	Err           error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalization failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("normalization failed at %s: tile is %dx%d, expected %dx%d",
		e.Stage, e.Width, e.Height, e.TileSize, e.TileSize)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// PreconditionError reports a request or source record the pipeline cannot
// work with, such as a non-positive tile size or scale
type PreconditionError struct {
	Field string
	Value interface{}
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Value)
}
