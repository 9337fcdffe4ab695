// Package decoder extracts a rectangular region of a JPEG 2000 source at a
// given resolution level. Two backends are provided: Kakadu, which runs the
// external kdu_expand program, and Native, a pure Go decoder.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/mrjoshuak/go-jpeg2000"

	"jp2tiles/internal/models"
)

// ErrEmptyOutput is wrapped by a DecodeError when the decoder exited cleanly
// but produced no pixels
var ErrEmptyOutput = errors.New("decoder produced no output")

// Request describes one region extraction
type Request struct {
	// SourceURI is the path of the JP2 codestream
	SourceURI string

	// Region is the normalized area to extract
	Region models.RegionSpec

	// Reduction is the number of resolution levels to discard
	Reduction int

	// IntermediatePath is where a backend that works through files writes
	// its output. It must be unique per request.
	IntermediatePath string
}

// RegionDecoder decodes regions of JPEG 2000 images. Implementations must be
// safe for concurrent use; sources are only ever read.
type RegionDecoder interface {
	Decode(ctx context.Context, req Request) (*models.RawRaster, error)
	NativeDimensions(ctx context.Context, uri string) (width, height int, err error)
	MaxReduction(ctx context.Context, uri string) (int, error)
}

// DecodeError reports a failed decode. Command is the invocation that failed
// and Stderr whatever it wrote before failing.
type DecodeError struct {
	Command  string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode failed: %s", e.Command)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit status %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// headerProbe reads codestream headers, keeping recent ones in memory
type headerProbe struct {
	cache *lru.Cache // uri -> *jpeg2000.Metadata
}

func newHeaderProbe(size int) headerProbe {
	if size < 1 {
		size = 128
	}
	cache, _ := lru.New(size)
	return headerProbe{cache: cache}
}

func (p headerProbe) metadata(ctx context.Context, uri string) (*jpeg2000.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.cache != nil {
		if v, ok := p.cache.Get(uri); ok {
			return v.(*jpeg2000.Metadata), nil
		}
	}
	f, err := os.Open(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer f.Close()

	md, err := jpeg2000.DecodeMetadata(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", uri, err)
	}
	if p.cache != nil {
		p.cache.Add(uri, md)
	}
	return md, nil
}

// NativeDimensions returns the full resolution size recorded in the header
func (p headerProbe) NativeDimensions(ctx context.Context, uri string) (int, int, error) {
	md, err := p.metadata(ctx, uri)
	if err != nil {
		return 0, 0, err
	}
	return md.Width, md.Height, nil
}

// MaxReduction returns the number of resolution levels that can be discarded
func (p headerProbe) MaxReduction(ctx context.Context, uri string) (int, error) {
	md, err := p.metadata(ctx, uri)
	if err != nil {
		return 0, err
	}
	return max(md.NumResolutions-1, 0), nil
}
