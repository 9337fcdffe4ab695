package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"jp2tiles/internal/models"
)

var eit = models.SourceImage{
	ID:          42,
	URI:         "/data/jp2/EIT/2003_10_28__01_00_10_255__SOHO_EIT_EIT_171.jp2",
	Width:       1024,
	Height:      1024,
	NativeScale: 2.63,
	Instrument:  "EIT",
	Detector:    "EIT",
	Measurement: "171",
	Timestamp:   time.Date(2003, 10, 28, 1, 0, 10, 0, time.UTC),
}

// TestMemoryLookup covers hits and misses
func TestMemoryLookup(t *testing.T) {
	m := NewMemory(eit)
	img, err := m.Image(context.Background(), 42)
	if err != nil {
		t.Fatalf("Expected image 42, got %v", err)
	}
	if img.Width != 1024 || img.Detector != "EIT" {
		t.Errorf("Unexpected record %+v", img)
	}

	img.Width = 1
	again, _ := m.Image(context.Background(), 42)
	if again.Width != 1024 {
		t.Errorf("Expected stored record to be unaffected by caller changes")
	}

	if _, err := m.Image(context.Background(), 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestLoadFile reads a YAML catalog
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `
images:
  - id: 1
    uri: /data/a.jp2
    width: 4096
    height: 4096
    scale: 0.6
    detector: AIA
    measurement: "171"
    opacityGroup: true
    timestamp: 2022-01-01T00:00:52Z
  - id: 2
    uri: /data/b.jp2
    width: 1024
    height: 1024
    scale: 11.9
    detector: 0C2
    measurement: 0WL
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}
	img, err := m.Image(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if img.NativeScale != 0.6 || !img.OpacityGroup || img.Measurement != "171" {
		t.Errorf("Unexpected record %+v", img)
	}
	if img.Timestamp.Year() != 2022 {
		t.Errorf("Expected 2022 timestamp, got %v", img.Timestamp)
	}
	if all := m.All(); len(all) != 2 || all[0].ID != 1 || all[1].ID != 2 {
		t.Errorf("Expected ordered records 1,2, got %+v", all)
	}
}

// countingLookup counts calls to the wrapped catalog
type countingLookup struct {
	Lookup
	calls int32
}

func (c *countingLookup) Image(ctx context.Context, id int64) (*models.SourceImage, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.Lookup.Image(ctx, id)
}

// TestCachedLookup serves repeated hits from memory
func TestCachedLookup(t *testing.T) {
	counting := &countingLookup{Lookup: NewMemory(eit)}
	c, err := NewCached(counting, 8)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := c.Image(context.Background(), 42); err != nil {
			t.Fatal(err)
		}
	}
	if counting.calls != 1 {
		t.Errorf("Expected 1 backend call, got %d", counting.calls)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Image(context.Background(), 9); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	}
	if counting.calls != 3 {
		t.Errorf("Expected misses to reach the backend, got %d calls", counting.calls)
	}
}

// TestBadgerCatalog stores and reads records
func TestBadgerCatalog(t *testing.T) {
	b, err := OpenBadger(filepath.Join(t.TempDir(), "catalog"))
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	defer b.Close()

	if err := b.Put(eit); err != nil {
		t.Fatal(err)
	}
	second := eit
	second.ID = 43
	second.Measurement = "195"
	if err := b.Import([]models.SourceImage{second}); err != nil {
		t.Fatal(err)
	}

	img, err := b.Image(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if img.URI != eit.URI || !img.Timestamp.Equal(eit.Timestamp) {
		t.Errorf("Unexpected record %+v", img)
	}
	img, err = b.Image(context.Background(), 43)
	if err != nil || img.Measurement != "195" {
		t.Errorf("Expected imported record, got %+v (%v)", img, err)
	}
	if _, err := b.Image(context.Background(), 44); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
