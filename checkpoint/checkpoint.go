// Package checkpoint stores finished replicates in a bolt database,
// so an interrupted run can be resumed.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

var log = logging.MustGetLogger("checkpoint")

// replicates is the bucket holding all the records.
var replicates = []byte("replicates")

// Record is a finished replicate.
type Record struct {
	Model      string    `json:"model"`
	Replicate  int       `json:"replicate"`
	Likelihood float64   `json:"lnL"`
	Theta      float64   `json:"theta"`
	AIC        float64   `json:"AIC"`
	Parameters []float64 `json:"parameters"`
	Converged  bool      `json:"converged"`
	Saved      time.Time `json:"saved"`
}

// Store is a checkpoint database. A nil Store ignores saves and finds
// nothing.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database file.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Prefix returns the key prefix of all the replicates written to a
// results file. Keys use the absolute file path, so records of another
// output directory never match.
func Prefix(results string) []byte {
	if abs, err := filepath.Abs(results); err == nil {
		results = abs
	}
	return []byte(filepath.Clean(results) + "#")
}

// Key returns the key of a replicate. Replicate numbers are zero
// padded to keep the keys ordered.
func Key(results string, replicate int) []byte {
	return append(Prefix(results), fmt.Sprintf("%06d", replicate)...)
}

// Save stores the record of a replicate written to a results file.
func (s *Store) Save(results string, r *Record) error {
	if s == nil {
		return nil
	}
	key := Key(results, r.Replicate)
	r.Saved = time.Now()
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding checkpoint %s: %w", key, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(replicates)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", key, err)
	}
	log.Debugf("Saved checkpoint %s", key)
	return nil
}

// Done returns the finished replicates of a results file indexed by
// the replicate number.
func (s *Store) Done(results string) (map[int]*Record, error) {
	done := make(map[int]*Record)
	if s == nil {
		return done, nil
	}
	p := Prefix(results)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(replicates)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("checkpoint %s: %w", k, err)
			}
			done[r.Replicate] = &r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(done) > 0 {
		log.Infof("Found %d finished replicates of %s in the checkpoint", len(done), results)
	}
	return done, nil
}

// Clear removes all the records of a results file.
func (s *Store) Clear(results string) error {
	if s == nil {
		return nil
	}
	p := Prefix(results)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(replicates)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Seek(p) {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}
