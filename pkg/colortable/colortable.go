// Package colortable resolves which pseudocolor lookup table an image needs
// and loads the table images from disk.
//
// The association between detectors, measurements and table files is data,
// not code: adding an instrument means adding a Rule.
package colortable

import (
	"fmt"
	"image"
	"image/color"
	_ "image/png" // color tables are stored as PNG strips
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"jp2tiles/pkg/config"
	"jp2tiles/pkg/logging"
)

// Wildcard matches any detector or measurement
const Wildcard = "*"

// Rule is one entry of the color table mapping
type Rule = config.ColorTableRule

// Store resolves and loads color tables. It is safe for concurrent use.
type Store struct {
	dir   string
	rules []Rule
	cache *lru.Cache // file path -> color.Palette
}

// NewStore returns a Store reading tables from dir. cacheSize bounds the
// number of decoded tables kept in memory.
func NewStore(dir string, rules []Rule, cacheSize int) (*Store, error) {
	if cacheSize < 1 {
		cacheSize = 16
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create color table cache: %w", err)
	}
	r := make([]Rule, len(rules))
	copy(r, rules)
	return &Store{dir: dir, rules: r, cache: cache}, nil
}

func matches(pattern, value string) bool {
	return pattern == "" || pattern == Wildcard || strings.EqualFold(pattern, value)
}

// Resolve returns the path of the table for (detector, measurement), or ""
// when the pair is shown in its native gray scale. The first matching rule wins.
func (s *Store) Resolve(detector, measurement string) string {
	for _, r := range s.rules {
		if matches(r.Detector, detector) && matches(r.Measurement, measurement) {
			name := strings.NewReplacer(
				"{detector}", detector,
				"{measurement}", measurement,
			).Replace(r.File)
			return filepath.Join(s.dir, name)
		}
	}
	return ""
}

// Lookup returns the color table for (detector, measurement). A nil palette
// with a nil error means no table applies.
func (s *Store) Lookup(detector, measurement string) (color.Palette, error) {
	path := s.Resolve(detector, measurement)
	if path == "" {
		return nil, nil
	}
	if v, ok := s.cache.Get(path); ok {
		return v.(color.Palette), nil
	}
	table, err := Load(path)
	if err != nil {
		return nil, err
	}
	logging.Debugf("Loaded %d entry color table %s", len(table), path)
	s.cache.Add(path, table)
	return table, nil
}

// Load reads a color table image. Tables are strips (N x 1 or 1 x N); for
// other shapes the first row is used.
func Load(path string) (color.Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open color table: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode color table %s: %w", path, err)
	}
	return FromImage(img), nil
}

// FromImage extracts the entries of a color table strip
func FromImage(img image.Image) color.Palette {
	b := img.Bounds()
	vertical := b.Dx() == 1 && b.Dy() > 1

	n := b.Dx()
	if vertical {
		n = b.Dy()
	}
	table := make(color.Palette, n)
	for i := 0; i < n; i++ {
		if vertical {
			table[i] = color.NRGBAModel.Convert(img.At(b.Min.X, b.Min.Y+i))
		} else {
			table[i] = color.NRGBAModel.Convert(img.At(b.Min.X+i, b.Min.Y))
		}
	}
	return table
}
