package cache

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/DoyleJ11/chart-collab-backend/pkg/types"
)

var drawingsBucket = []byte("drawings")

// DrawingCache keeps the last known drawings of each chart on local disk so a
// chart reopens with its annotations before any peer has synced.
type DrawingCache struct {
	db *bolt.DB
}

func Open(path string) (*DrawingCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open drawing cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(drawingsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init drawing cache: %w", err)
	}
	return &DrawingCache{db: db}, nil
}

func (c *DrawingCache) Close() error { return c.db.Close() }

// GetDrawings returns nil for a chart that was never saved.
func (c *DrawingCache) GetDrawings(chartID string) ([]types.Drawing, error) {
	var out []types.Drawing
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(drawingsBucket).Get([]byte(chartID))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("read drawings for %s: %w", chartID, err)
	}
	return out, nil
}

// SetDrawings replaces the saved drawings of chartID. Tombstoned records are
// not persisted.
func (c *DrawingCache) SetDrawings(chartID string, drawings []types.Drawing) error {
	keep := make([]types.Drawing, 0, len(drawings))
	for _, d := range drawings {
		if !d.IsDeleted {
			keep = append(keep, d)
		}
	}
	raw, err := json.Marshal(keep)
	if err != nil {
		return fmt.Errorf("encode drawings for %s: %w", chartID, err)
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(drawingsBucket).Put([]byte(chartID), raw)
	})
	if err != nil {
		return fmt.Errorf("write drawings for %s: %w", chartID, err)
	}
	return nil
}
