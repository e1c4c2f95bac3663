package run

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/caravan/pkg/types"
)

var bucketRuns = []byte("runs")

// History is the local run ledger, a BoltDB file under the data
// directory. One entry per run, keyed by run id.
type History struct {
	db *bolt.DB
}

// OpenHistory opens (or creates) the ledger at dataDir/caravan.db
func OpenHistory(dataDir string) (*History, error) {
	dbPath := filepath.Join(dataDir, "caravan.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &History{db: db}, nil
}

// Close closes the database
func (h *History) Close() error {
	return h.db.Close()
}

// Record stores or replaces the manifest under its run id
func (h *History) Record(manifest *types.RunManifest) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data, err := json.Marshal(manifest)
		if err != nil {
			return err
		}
		return b.Put([]byte(manifest.RunID), data)
	})
}

// Get retrieves one run by id
func (h *History) Get(runID string) (*types.RunManifest, error) {
	var manifest types.RunManifest
	err := h.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data := b.Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("run not found: %s", runID)
		}
		return json.Unmarshal(data, &manifest)
	})
	if err != nil {
		return nil, err
	}
	return &manifest, nil
}

// List returns all recorded runs, newest first. Run ids embed the
// start timestamp so key order is chronological.
func (h *History) List() ([]*types.RunManifest, error) {
	var runs []*types.RunManifest
	err := h.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		return b.ForEach(func(k, v []byte) error {
			var manifest types.RunManifest
			if err := json.Unmarshal(v, &manifest); err != nil {
				return err
			}
			runs = append(runs, &manifest)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID > runs[j].RunID })
	return runs, nil
}

// ListByDistrict filters the ledger to one district, newest first
func (h *History) ListByDistrict(districtID string) ([]*types.RunManifest, error) {
	runs, err := h.List()
	if err != nil {
		return nil, err
	}
	var filtered []*types.RunManifest
	for _, r := range runs {
		if r.DistrictID == districtID {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}
