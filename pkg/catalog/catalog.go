// Package catalog looks up the metadata of source images by identifier.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"gopkg.in/yaml.v3"

	"jp2tiles/internal/models"
)

// ErrNotFound is returned when no image has the requested identifier
var ErrNotFound = errors.New("image not found")

// Lookup returns the metadata of one image
type Lookup interface {
	Image(ctx context.Context, id int64) (*models.SourceImage, error)
}

// Memory is an in-memory catalog
type Memory struct {
	mu     sync.RWMutex
	images map[int64]models.SourceImage
}

// NewMemory returns a catalog holding the given images
func NewMemory(images ...models.SourceImage) *Memory {
	m := &Memory{images: make(map[int64]models.SourceImage, len(images))}
	for _, img := range images {
		m.images[img.ID] = img
	}
	return m
}

// Put adds or replaces an image
func (m *Memory) Put(img models.SourceImage) {
	m.mu.Lock()
	m.images[img.ID] = img
	m.mu.Unlock()
}

// Image returns a copy of the stored metadata
func (m *Memory) Image(ctx context.Context, id int64) (*models.SourceImage, error) {
	m.mu.RLock()
	img, ok := m.images[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("image %d: %w", id, ErrNotFound)
	}
	return &img, nil
}

// All returns every stored image ordered by identifier
func (m *Memory) All() []models.SourceImage {
	m.mu.RLock()
	out := make([]models.SourceImage, 0, len(m.images))
	for _, img := range m.images {
		out = append(out, img)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// fileCatalog is the on-disk layout read by LoadFile
type fileCatalog struct {
	Images []models.SourceImage `yaml:"images"`
}

// LoadFile reads a YAML catalog of the form
//
//	images:
//	  - id: 1
//	    uri: /data/jp2/EIT/2003/10/28/171/2003_10_28__01_00_10_255__SOHO_EIT_EIT_171.jp2
//	    width: 1024
//	    height: 1024
//	    scale: 2.63
//	    detector: EIT
//	    measurement: "171"
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading catalog: %w", err)
	}
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("error parsing catalog %s: %w", path, err)
	}
	return NewMemory(fc.Images...), nil
}

// Cached keeps recently used records of another Lookup in memory
type Cached struct {
	next  Lookup
	cache *lru.Cache // int64 -> models.SourceImage
}

// NewCached wraps next with an LRU cache of size entries
func NewCached(next Lookup, size int) (*Cached, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

// Image serves from the cache, falling back to the wrapped catalog.
// Misses are not cached.
func (c *Cached) Image(ctx context.Context, id int64) (*models.SourceImage, error) {
	if v, ok := c.cache.Get(id); ok {
		img := v.(models.SourceImage)
		return &img, nil
	}
	img, err := c.next.Image(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, *img)
	return img, nil
}
