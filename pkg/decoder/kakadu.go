package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/twinj/uuid"
	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"jp2tiles/internal/models"
	"jp2tiles/pkg/geometry"
	"jp2tiles/pkg/logging"
)

// Kakadu decodes regions by running kdu_expand
type Kakadu struct {
	headerProbe

	// Binary is the kdu_expand executable
	Binary string

	// LibDir, when set, is appended to LD_LIBRARY_PATH of the child process
	LibDir string

	// Format is the intermediate file type, "bmp" or "tif"
	Format string
}

// NewKakadu returns a Kakadu backend
func NewKakadu(binary, libDir, format string) *Kakadu {
	if binary == "" {
		binary = "kdu_expand"
	}
	if format == "" {
		format = "bmp"
	}
	return &Kakadu{
		headerProbe: newHeaderProbe(0),
		Binary:      binary,
		LibDir:      libDir,
		Format:      strings.TrimPrefix(strings.ToLower(format), "."),
	}
}

var _ RegionDecoder = (*Kakadu)(nil)

// Args returns the kdu_expand arguments for req writing to out
func (k *Kakadu) Args(req Request, out string) []string {
	args := []string{"-i", req.SourceURI, "-o", out}
	if req.Reduction > 0 {
		args = append(args, "-reduce", fmt.Sprintf("%d", req.Reduction))
	}
	return append(args, "-region", geometry.RegionString(req.Region))
}

// intermediate returns the file kdu_expand should write. The extension
// decides the format kdu_expand produces.
func (k *Kakadu) intermediate(req Request) string {
	ext := "." + k.Format
	if req.IntermediatePath == "" {
		return filepath.Join(os.TempDir(), fmt.Sprintf("jp2tiles.%x%s", uuid.NewV4().Bytes(), ext))
	}
	if strings.EqualFold(filepath.Ext(req.IntermediatePath), ext) {
		return req.IntermediatePath
	}
	return req.IntermediatePath + ext
}

func (k *Kakadu) environ() []string {
	env := os.Environ()
	if k.LibDir == "" {
		return env
	}
	for i, kv := range env {
		if strings.HasPrefix(kv, "LD_LIBRARY_PATH=") {
			env[i] = kv + string(os.PathListSeparator) + k.LibDir
			return env
		}
	}
	return append(env, "LD_LIBRARY_PATH="+k.LibDir)
}

// Decode runs kdu_expand and reads back the intermediate raster, which is
// removed afterwards whatever the outcome.
func (k *Kakadu) Decode(ctx context.Context, req Request) (*models.RawRaster, error) {
	out := k.intermediate(req)
	args := k.Args(req, out)
	command := k.Binary + " " + strings.Join(args, " ")

	cmd := exec.CommandContext(ctx, k.Binary, args...)
	cmd.Env = k.environ()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	defer os.Remove(out)

	timedLog := logging.NewTimeLog()
	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &DecodeError{Command: command, Stderr: stderr.String(), ExitCode: exitCode, Err: err}
	}
	timedLog.Debugf("Ran %s", command)

	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		return nil, &DecodeError{Command: command, Stderr: stderr.String(), Err: ErrEmptyOutput}
	}

	img, err := readIntermediate(out)
	if err != nil {
		return nil, &DecodeError{Command: command, Stderr: stderr.String(), Err: err}
	}
	return &models.RawRaster{Image: img}, nil
}

// readIntermediate decodes a BMP or TIFF written by kdu_expand
func readIntermediate(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bmp":
		img, err = bmp.Decode(f)
	case ".tif", ".tiff":
		img, err = tiff.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported intermediate format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read intermediate %s: %w", path, err)
	}
	return grayFromPalette(img), nil
}

// grayFromPalette turns an 8-bit BMP with a gray ramp palette into a plain
// gray image. Other images are returned unchanged.
func grayFromPalette(img image.Image) image.Image {
	p, ok := img.(*image.Paletted)
	if !ok {
		return img
	}
	for _, c := range p.Palette {
		r, g, b, _ := c.RGBA()
		if r != g || g != b {
			return img
		}
	}
	gray := image.NewGray(image.Rect(0, 0, p.Bounds().Dx(), p.Bounds().Dy()))
	xdraw.Copy(gray, image.Point{}, p, p.Bounds(), xdraw.Src, nil)
	return gray
}
