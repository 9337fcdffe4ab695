package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"jp2tiles/internal/models"
	"jp2tiles/pkg/catalog"
	"jp2tiles/pkg/colortable"
	"jp2tiles/pkg/config"
	"jp2tiles/pkg/decoder"
	"jp2tiles/pkg/logging"
	"jp2tiles/pkg/raster"
	"jp2tiles/pkg/tiler"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "jp2tiles.yaml", "Configuration file (.yaml or .toml)")
	initConfig := flag.Bool("init", false, "Write a default configuration file to -config and exit")
	importPath := flag.String("import", "", "YAML image list to import into a badger catalog")
	imageID := flag.Int64("image", 0, "Catalog identifier of the source image")
	zoom := flag.Int("zoom", 10, "Zoom level")
	tileX := flag.Int("x", 0, "Tile column, relative to the image center")
	tileY := flag.Int("y", 0, "Tile row, relative to the image center")
	tileSize := flag.Int("size", 0, "Tile size in pixels (default: from config)")
	all := flag.Bool("all", false, "Render every tile of the zoom level")
	outPath := flag.String("out", "", "Output file for a single tile (default: under the cache directory)")
	blank := flag.Bool("blank", false, "Write a transparent tile when the image is not in the catalog")
	backend := flag.String("decoder", "", "Decoder backend override: kakadu or native")
	verbose := flag.Bool("v", false, "Log debug messages")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *backend != "" {
		cfg.Decoder.Backend = *backend
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid decoder backend: %v", err)
		}
	}

	mode, _ := logging.ParseMode(cfg.Log.Level)
	if *verbose {
		mode = logging.DebugMode
	}
	logging.SetLogMode(mode)
	cfg.Log.SetLogger()
	defer logging.Shutdown()

	if err := run(cfg, *importPath, models.TileRequest{
		ImageID:   *imageID,
		ZoomLevel: *zoom,
		TileX:     *tileX,
		TileY:     *tileY,
		TileSize:  *tileSize,
	}, *all, *outPath, *blank); err != nil {
		logging.Errorf("%v", err)
		logging.Shutdown()
		os.Exit(1)
	}
}

func run(cfg *config.Config, importPath string, req models.TileRequest, all bool, outPath string, blank bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lookup, closeCatalog, err := openCatalog(cfg, importPath)
	if err != nil {
		return err
	}
	defer closeCatalog()

	var dec decoder.RegionDecoder
	switch cfg.Decoder.Backend {
	case config.DecoderNative:
		dec = decoder.NewNative()
	default:
		dec = decoder.NewKakadu(cfg.Decoder.KduExpand, cfg.Decoder.KduLibDir, cfg.Decoder.IntermediateFormat)
	}

	tables, err := colortable.NewStore(cfg.ColorTables.Dir, cfg.ColorTables.Rules, len(cfg.ColorTables.Rules)*8)
	if err != nil {
		return err
	}
	ops := raster.NewProcessor()
	pipeline := tiler.New(cfg, lookup, dec, ops, tables)
	logging.Debugf("Decoder %s, workers %d", cfg.Decoder.Backend, cfg.Tiling.Workers)

	startTime := time.Now()
	if all {
		r, err := pipeline.FullRange(ctx, req)
		if err != nil {
			return err
		}
		n, err := pipeline.ExtractRange(ctx, req, r)
		if err != nil {
			return fmt.Errorf("rendering zoom level %d of image %d: %w", req.ZoomLevel, req.ImageID, err)
		}
		fmt.Printf("Rendered %d tiles (x %d..%d, y %d..%d) in %.2f seconds\n",
			n, r.MinX, r.MaxX, r.MinY, r.MaxY, time.Since(startTime).Seconds())
		return nil
	}

	path := outPath
	if path == "" {
		img, err := lookup.Image(ctx, req.ImageID)
		switch {
		case errors.Is(err, catalog.ErrNotFound) && blank:
			path = pipeline.TilePath(req, true)
		case err != nil:
			return err
		default:
			path = pipeline.TilePath(req, img.OpacityGroup)
		}
	}

	written, err := pipeline.WriteTile(ctx, req, path)
	if errors.Is(err, tiler.ErrMetadataNotFound) && blank {
		size := req.TileSize
		if size == 0 {
			size = cfg.Tiling.TileSize
		}
		logging.Warningf("Image %d not found, writing a blank tile", req.ImageID)
		tile := tiler.BlankTile(size)
		return ops.WriteFile(path, tile.Image, raster.EncodeParams{Format: tile.Format})
	}
	if err != nil {
		return err
	}
	if written {
		fmt.Printf("Tile saved to: %s (%.2f seconds)\n", path, time.Since(startTime).Seconds())
	} else {
		fmt.Printf("Tile already present: %s\n", path)
	}
	return nil
}

// openCatalog opens the configured metadata catalog behind an LRU cache
func openCatalog(cfg *config.Config, importPath string) (catalog.Lookup, func(), error) {
	var (
		backend catalog.Lookup
		closer  = func() {}
	)
	switch cfg.Catalog.Backend {
	case config.CatalogBadger:
		db, err := catalog.OpenBadger(cfg.Catalog.Path)
		if err != nil {
			return nil, nil, err
		}
		closer = func() {
			if err := db.Close(); err != nil {
				logging.Errorf("Failed to close catalog: %v", err)
			}
		}
		if importPath != "" {
			images, err := catalog.LoadFile(importPath)
			if err != nil {
				closer()
				return nil, nil, err
			}
			records := images.All()
			if err := db.Import(records); err != nil {
				closer()
				return nil, nil, fmt.Errorf("failed to import %s: %w", importPath, err)
			}
			logging.Infof("Imported %d images from %s", len(records), importPath)
		}
		backend = db
	default:
		if importPath != "" {
			logging.Warningf("Ignoring -import: catalog backend is %q", cfg.Catalog.Backend)
		}
		m, err := catalog.LoadFile(cfg.Catalog.Path)
		if err != nil {
			return nil, nil, err
		}
		backend = m
	}

	cached, err := catalog.NewCached(backend, cfg.Catalog.CacheSize)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return cached, closer, nil
}
