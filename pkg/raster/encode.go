package raster

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
)

// Formats understood by Encode
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// pngLevel maps an ImageMagick PNG quality (tens digit = zlib level) to the
// closest compression level of image/png.
func pngLevel(quality int) png.CompressionLevel {
	switch level := quality / 10; {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// Encode writes img to w in the requested format. Output is never interlaced.
func (p *Processor) Encode(w io.Writer, img image.Image, params EncodeParams) error {
	switch params.Format {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: pngLevel(params.Quality)}
		return enc.Encode(w, img)
	case FormatJPEG, "jpg":
		q := params.Quality
		if q < 1 || q > 100 {
			q = jpeg.DefaultQuality
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	}
	return fmt.Errorf("unsupported output format %q", params.Format)
}

// WriteFile encodes img to path. The file is written under a temporary name
// and renamed, so readers never see a partial tile.
func (p *Processor) WriteFile(path string, img image.Image, params EncodeParams) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary tile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := p.Encode(tmp, img, params); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
