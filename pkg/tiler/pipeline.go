// Package tiler renders map tiles from JPEG 2000 sources. A tile request is
// resolved to a scale, a decoder resolution level and a region of the source,
// decoded, and normalized into a square PNG or JPEG tile.
package tiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math/bits"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/twinj/uuid"
	"golang.org/x/sync/errgroup"

	"jp2tiles/internal/models"
	"jp2tiles/pkg/catalog"
	"jp2tiles/pkg/colortable"
	"jp2tiles/pkg/config"
	"jp2tiles/pkg/decoder"
	"jp2tiles/pkg/geometry"
	"jp2tiles/pkg/logging"
	"jp2tiles/pkg/raster"
)

// Pipeline extracts tiles. It holds no per-request state and is safe for
// concurrent use.
type Pipeline struct {
	baseScale     float64
	baseZoomLevel int
	tileSize      int
	workers       int
	cacheDir      string
	disableCache  bool

	catalog    catalog.Lookup
	decoder    decoder.RegionDecoder
	ops        raster.Ops
	normalizer *Normalizer
}

// New returns a Pipeline configured from cfg
func New(cfg *config.Config, cat catalog.Lookup, dec decoder.RegionDecoder, ops raster.Ops, tables *colortable.Store) *Pipeline {
	out := OutputOptions{
		PNGQuality:  cfg.Output.PNGCompressionQuality,
		JPEGQuality: cfg.Output.JPEGCompressionQuality,
		BitDepth:    cfg.Output.BitDepth,
		NumColors:   cfg.Output.NumColors,
	}
	logging.Debugf("Tile output: %s", out)
	if cfg.Output.Interlace {
		logging.Warningf("output.interlace is set but tiles are always written non-interlaced")
	}
	return &Pipeline{
		baseScale:     cfg.Tiling.BaseScale,
		baseZoomLevel: cfg.Tiling.BaseZoomLevel,
		tileSize:      cfg.Tiling.TileSize,
		workers:       cfg.Tiling.Workers,
		cacheDir:      cfg.Output.CacheDir,
		disableCache:  cfg.Output.DisableCache,
		catalog:       cat,
		decoder:       dec,
		ops:           ops,
		normalizer:    NewNormalizer(ops, tables, out),
	}
}

// withDefaults fills in the configured tile size
func (p *Pipeline) withDefaults(req models.TileRequest) models.TileRequest {
	if req.TileSize == 0 {
		req.TileSize = p.tileSize
	}
	return req
}

// Scale derives the scale values for a request against img. maxReduction
// bounds the discrete resolution level.
func (p *Pipeline) Scale(img *models.SourceImage, req models.TileRequest, maxReduction int) models.ScaleContext {
	desired := geometry.DesiredScale(req.ZoomLevel, p.baseScale, p.baseZoomLevel)
	factor := geometry.ReductionFactor(desired, img.NativeScale)
	return models.ScaleContext{
		DesiredScale:     desired,
		ReductionFactor:  factor,
		RelativeTileSize: geometry.RelativeTileSize(req.TileSize, desired, img.NativeScale),
		AppliedReduction: geometry.DiscreteReduction(factor, maxReduction),
	}
}

// lookup fetches and checks the source record
func (p *Pipeline) lookup(ctx context.Context, req models.TileRequest) (*models.SourceImage, error) {
	if req.TileSize <= 0 {
		return nil, &PreconditionError{Field: "tile size", Value: req.TileSize}
	}
	img, err := p.catalog.Image(ctx, req.ImageID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrMetadataNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up image %d: %w", req.ImageID, err)
	}
	if img.Width <= 0 || img.Height <= 0 {
		return nil, &PreconditionError{Field: "source dimensions", Value: fmt.Sprintf("%dx%d", img.Width, img.Height)}
	}
	if img.NativeScale <= 0 {
		return nil, &PreconditionError{Field: "source scale", Value: img.NativeScale}
	}
	return img, nil
}

// maxReduction asks the decoder how many levels the source has. When the
// header cannot be read the bound falls back to the number of halvings the
// smaller dimension allows.
func (p *Pipeline) maxReduction(ctx context.Context, img *models.SourceImage) int {
	levels, err := p.decoder.MaxReduction(ctx, img.URI)
	if err == nil {
		return levels
	}
	fallback := bits.Len(uint(min(img.Width, img.Height))) - 1
	logging.Warningf("Unable to read resolution levels of %s, assuming %d: %v", img.URI, fallback, err)
	return fallback
}

// extract runs the pipeline without encoding the result
func (p *Pipeline) extract(ctx context.Context, req models.TileRequest, intermediate string) (*models.OutputTile, error) {
	img, err := p.lookup(ctx, req)
	if err != nil {
		return nil, err
	}
	sc := p.Scale(img, req, p.maxReduction(ctx, img))

	grid := geometry.NewGrid(img.Width, img.Height, sc.RelativeTileSize)
	if err := grid.Validate(req.TileX, req.TileY); err != nil {
		return nil, err
	}
	region := geometry.MapRegion(img.Width, img.Height, sc.RelativeTileSize, req.TileX, req.TileY)
	logging.Debugf("Image %d zoom %d tile (%d,%d): scale %.4f, reduction %d, region %s",
		img.ID, req.ZoomLevel, req.TileX, req.TileY, sc.DesiredScale, sc.AppliedReduction, geometry.RegionString(region))

	raw, err := p.decoder.Decode(ctx, decoder.Request{
		SourceURI:        img.URI,
		Region:           region,
		Reduction:        sc.AppliedReduction,
		IntermediatePath: intermediate,
	})
	if err != nil {
		return nil, err
	}

	return p.normalizer.Normalize(raw, NormalizeInput{
		TileSize:     req.TileSize,
		Expected:     sc.DecodedTileSize(),
		Position:     grid.Position(req.TileX, req.TileY),
		Detector:     img.Detector,
		Measurement:  img.Measurement,
		OpacityGroup: img.OpacityGroup,
	})
}

// Extract renders one tile and encodes it into OutputTile.Encoded
func (p *Pipeline) Extract(ctx context.Context, req models.TileRequest) (*models.OutputTile, error) {
	req = p.withDefaults(req)
	tile, err := p.extract(ctx, req, "")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := p.ops.Encode(&buf, tile.Image, p.normalizer.EncodeParams(tile.Format)); err != nil {
		return nil, &NormalizationError{Stage: "encode", TileSize: tile.Size, Err: err}
	}
	tile.Encoded = buf.Bytes()
	return tile, nil
}

// TilePath returns where WriteTile stores a tile by default
func (p *Pipeline) TilePath(req models.TileRequest, opacityGroup bool) string {
	req = p.withDefaults(req)
	ext := "jpg"
	if Format(opacityGroup) == models.FormatPNG {
		ext = "png"
	}
	name := fmt.Sprintf("%d_%d_%d_%d_%d.%s", req.ImageID, req.ZoomLevel, req.TileSize, req.TileX, req.TileY, ext)
	return filepath.Join(p.cacheDir, fmt.Sprintf("%d", req.ImageID), name)
}

// WriteTile renders a tile to path. An existing file is kept unless caching
// is disabled. The returned bool reports whether a new file was written.
func (p *Pipeline) WriteTile(ctx context.Context, req models.TileRequest, path string) (bool, error) {
	req = p.withDefaults(req)
	if !p.disableCache {
		if _, err := os.Stat(path); err == nil {
			logging.Debugf("Tile %s already exists", path)
			return false, nil
		}
	}

	timedLog := logging.NewTimeLog()
	base := strings.TrimSuffix(path, filepath.Ext(path))
	intermediate := fmt.Sprintf("%s.%x", base, uuid.NewV4().Bytes())
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create tile directory: %w", err)
	}

	tile, err := p.extract(ctx, req, intermediate)
	if err != nil {
		return false, err
	}
	if err := p.ops.WriteFile(path, tile.Image, p.normalizer.EncodeParams(tile.Format)); err != nil {
		return false, err
	}

	size := "?"
	if info, err := os.Stat(path); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	timedLog.Infof("Wrote %s tile %s (%s)", tile.Format, path, size)
	return true, nil
}

// TileRange is a rectangle of tile coordinates, bounds included
type TileRange struct {
	MinX, MaxX int
	MinY, MaxY int
}

// FullRange returns the range covering every tile of an image at a zoom level
func (p *Pipeline) FullRange(ctx context.Context, req models.TileRequest) (TileRange, error) {
	req = p.withDefaults(req)
	img, err := p.lookup(ctx, req)
	if err != nil {
		return TileRange{}, err
	}
	sc := p.Scale(img, req, p.maxReduction(ctx, img))
	grid := geometry.NewGrid(img.Width, img.Height, sc.RelativeTileSize)
	r := TileRange{}
	r.MinX, r.MaxX = geometry.Range(grid.Columns)
	r.MinY, r.MaxY = geometry.Range(grid.Rows)
	return r, nil
}

// ExtractRange writes every tile of r for the image and zoom level of req,
// using at most the configured number of workers. Tiles are written to
// TilePath. The first failure cancels the remaining tiles.
func (p *Pipeline) ExtractRange(ctx context.Context, req models.TileRequest, r TileRange) (int, error) {
	req = p.withDefaults(req)
	if r.MaxX < r.MinX || r.MaxY < r.MinY {
		return 0, nil
	}
	img, err := p.lookup(ctx, req)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.workers > 0 {
		g.SetLimit(p.workers)
	}
	written := make([]bool, (r.MaxX-r.MinX+1)*(r.MaxY-r.MinY+1))
	i := 0
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			tileReq := req
			tileReq.TileX, tileReq.TileY = x, y
			slot := i
			i++
			g.Go(func() error {
				ok, err := p.WriteTile(gctx, tileReq, p.TilePath(tileReq, img.OpacityGroup))
				written[slot] = ok
				return err
			})
		}
	}
	err = g.Wait()

	count := 0
	for _, ok := range written {
		if ok {
			count++
		}
	}
	return count, err
}

// BlankTile returns a fully transparent tile of the given size. The pipeline
// never substitutes it on its own; callers that prefer an empty tile to an
// error for unknown images can use it.
func BlankTile(size int) *models.OutputTile {
	return &models.OutputTile{
		Image:  image.NewNRGBA(image.Rect(0, 0, size, size)),
		Format: models.FormatPNG,
		Size:   size,
	}
}
