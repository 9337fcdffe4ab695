package decoder

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/mrjoshuak/go-jpeg2000"

	"jp2tiles/internal/models"
	"jp2tiles/pkg/raster"
)

// Native decodes regions in process with a pure Go JPEG 2000 decoder. It
// needs no external program and writes no intermediate file.
type Native struct {
	headerProbe
	ops raster.Ops
}

// NewNative returns a Native backend
func NewNative() *Native {
	return &Native{headerProbe: newHeaderProbe(0), ops: raster.NewProcessor()}
}

var _ RegionDecoder = (*Native)(nil)

// reduced maps a full resolution pixel rectangle onto resolution level
// reduction, rounding every edge up as the codestream does
func reduced(r image.Rectangle, reduction int) image.Rectangle {
	if reduction <= 0 {
		return r
	}
	d := 1 << uint(reduction)
	ceilDiv := func(v int) int { return (v + d - 1) / d }
	return image.Rect(ceilDiv(r.Min.X), ceilDiv(r.Min.Y), ceilDiv(r.Max.X), ceilDiv(r.Max.Y))
}

// Decode extracts req.Region at resolution level req.Reduction
func (n *Native) Decode(ctx context.Context, req Request) (*models.RawRaster, error) {
	command := fmt.Sprintf("jpeg2000 decode %s reduce=%d", req.SourceURI, req.Reduction)

	width, height, err := n.NativeDimensions(ctx, req.SourceURI)
	if err != nil {
		return nil, &DecodeError{Command: command, ExitCode: -1, Err: err}
	}
	area := req.Region.Pixels(width, height)
	if area.Empty() {
		return nil, &DecodeError{Command: command, ExitCode: -1, Err: ErrEmptyOutput}
	}

	f, err := os.Open(req.SourceURI)
	if err != nil {
		return nil, &DecodeError{Command: command, ExitCode: -1, Err: err}
	}
	defer f.Close()

	img, err := jpeg2000.DecodeConfig(f, &jpeg2000.Config{
		DecodeArea:       &area,
		ReduceResolution: req.Reduction,
	})
	if err != nil {
		return nil, &DecodeError{Command: command, ExitCode: -1, Err: err}
	}

	// The decoder may hand back the whole frame at the requested level
	// rather than only the area; cut the area out in that case.
	want := reduced(area, req.Reduction)
	if img.Bounds().Size() != want.Size() {
		img = n.ops.Crop(img, want.Add(img.Bounds().Min))
	}
	if img.Bounds().Empty() {
		return nil, &DecodeError{Command: command, ExitCode: -1, Err: ErrEmptyOutput}
	}
	return &models.RawRaster{Image: img}, nil
}
