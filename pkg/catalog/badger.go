package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v3"

	"jp2tiles/internal/models"
	"jp2tiles/pkg/logging"
)

// Badger is a persistent catalog stored in a BadgerDB directory. Records
// are JSON encoded under keys of the form "image/<id>".
type Badger struct {
	db        *badger.DB
	directory string
}

func imageKey(id int64) []byte {
	return []byte(fmt.Sprintf("image/%d", id))
}

// OpenBadger opens the catalog at path, creating the directory if needed
func OpenBadger(path string) (*Badger, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logging.Infof("Catalog not found at %s, creating directory", path)
		if err := os.MkdirAll(path, 0744); err != nil {
			return nil, fmt.Errorf("can't make directory at %s: %w", path, err)
		}
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger catalog at %s: %w", path, err)
	}
	return &Badger{db: db, directory: path}, nil
}

// Close flushes and closes the database
func (b *Badger) Close() error {
	return b.db.Close()
}

// Put stores or replaces an image record
func (b *Badger) Put(img models.SourceImage) error {
	value, err := json.Marshal(img)
	if err != nil {
		return fmt.Errorf("failed to encode image %d: %w", img.ID, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(imageKey(img.ID), value)
	})
}

// Image reads an image record
func (b *Badger) Image(ctx context.Context, id int64) (*models.SourceImage, error) {
	var img models.SourceImage
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(imageKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &img)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("image %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image %d from %s: %w", id, b.directory, err)
	}
	return &img, nil
}

// Import copies every image of a file catalog into the database
func (b *Badger) Import(images []models.SourceImage) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, img := range images {
		value, err := json.Marshal(img)
		if err != nil {
			return fmt.Errorf("failed to encode image %d: %w", img.ID, err)
		}
		if err := wb.Set(imageKey(img.ID), value); err != nil {
			return err
		}
	}
	return wb.Flush()
}
