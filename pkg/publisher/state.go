package publisher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ladleio/ladle/pkg/storage"
)

var (
	bucketPublisher = []byte("publisher")

	keyHighWater = []byte("high_water")
	keyLastCycle = []byte("last_cycle")
)

// CycleRecord is the durable trace of the last successful publish
type CycleRecord struct {
	PublishedAt time.Time      `json:"published_at"`
	Commit      string         `json:"commit,omitempty"`
	Counts      storage.Counts `json:"counts"`
}

// State persists ratchet high-water marks and the last cycle record
// across restarts. The file is publisher-owned and lives outside the
// git working directory.
type State struct {
	db *bolt.DB
}

// OpenState opens or creates the publisher state file
func OpenState(path string) (*State, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening publisher state: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPublisher)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating publisher bucket: %w", err)
	}
	return &State{db: db}, nil
}

// Close closes the state file
func (s *State) Close() error {
	return s.db.Close()
}

// HighWater returns the per-entity ratchet marks. A fresh state file
// returns zeroes, which every snapshot clears.
func (s *State) HighWater() (storage.Counts, error) {
	var hw storage.Counts
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPublisher).Get(keyHighWater)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &hw)
	})
	if err != nil {
		return storage.Counts{}, fmt.Errorf("reading high-water marks: %w", err)
	}
	return hw, nil
}

// LastCycle returns the last successful cycle, or nil before the first
// publish
func (s *State) LastCycle() (*CycleRecord, error) {
	var rec *CycleRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPublisher).Get(keyLastCycle)
		if data == nil {
			return nil
		}
		rec = &CycleRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("reading last cycle: %w", err)
	}
	return rec, nil
}

// RecordCycle stores the cycle record and ratchets the high-water
// marks. Marks only move upward; override replaces them with the
// cycle's counts so an intentional shrink becomes the new baseline.
func (s *State) RecordCycle(rec *CycleRecord, override bool) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPublisher)

		var hw storage.Counts
		if data := b.Get(keyHighWater); data != nil {
			if err := json.Unmarshal(data, &hw); err != nil {
				return err
			}
		}
		if override {
			hw = rec.Counts
		} else {
			hw = raise(hw, rec.Counts)
		}

		data, err := json.Marshal(hw)
		if err != nil {
			return err
		}
		if err := b.Put(keyHighWater, data); err != nil {
			return err
		}

		data, err = json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(keyLastCycle, data)
	})
	if err != nil {
		return fmt.Errorf("recording publish cycle: %w", err)
	}
	return nil
}

func raise(hw, counts storage.Counts) storage.Counts {
	return storage.Counts{
		Organizations:      max(hw.Organizations, counts.Organizations),
		Locations:          max(hw.Locations, counts.Locations),
		Services:           max(hw.Services, counts.Services),
		ServiceAtLocations: max(hw.ServiceAtLocations, counts.ServiceAtLocations),
		Schedules:          max(hw.Schedules, counts.Schedules),
	}
}
