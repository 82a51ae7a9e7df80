package desk

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const noticeBucketName = "notices"

// DB defines the interface for the notice queue
type DB interface {
	// SaveNotice appends a notice to the queue
	SaveNotice(notice *Notice) error

	// ListNotices returns all pending notices, oldest first
	ListNotices() ([]*Notice, error)

	// CompleteUnit removes every notice for a unit and returns how many were
	// removed and how many remain
	CompleteUnit(unit string) (removed int, remaining int, err error)

	// ClearNotices removes all notices and returns how many there were
	ClearNotices() (int, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create bucket if it doesn't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(noticeBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// sequenceKey encodes a bucket sequence so keys sort in insertion order
func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// SaveNotice appends a notice to the queue
func (b *BoltDB) SaveNotice(notice *Notice) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(noticeBucketName))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating notice key: %w", err)
		}
		data, err := json.Marshal(notice)
		if err != nil {
			return fmt.Errorf("marshaling notice: %w", err)
		}
		return bucket.Put(sequenceKey(seq), data)
	})
}

// ListNotices returns all pending notices, oldest first
func (b *BoltDB) ListNotices() ([]*Notice, error) {
	notices := make([]*Notice, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(noticeBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var notice Notice
			if err := json.Unmarshal(v, &notice); err != nil {
				return fmt.Errorf("unmarshaling notice: %w", err)
			}
			notices = append(notices, &notice)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return notices, nil
}

// CompleteUnit removes every notice for a unit. Units compare
// case-insensitively since staff type them by hand.
func (b *BoltDB) CompleteUnit(unit string) (int, int, error) {
	var removed, remaining int
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(noticeBucketName))

		var doomed [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var notice Notice
			if err := json.Unmarshal(v, &notice); err != nil {
				return fmt.Errorf("unmarshaling notice: %w", err)
			}
			if strings.EqualFold(notice.Unit, strings.TrimSpace(unit)) {
				doomed = append(doomed, append([]byte(nil), k...))
			} else {
				remaining++
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range doomed {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(doomed)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return removed, remaining, nil
}

// ClearNotices removes all notices
func (b *BoltDB) ClearNotices() (int, error) {
	var count int
	err := b.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket([]byte(noticeBucketName)).ForEach(func(k, v []byte) error {
			count++
			return nil
		})
		if err != nil {
			return err
		}
		if err := tx.DeleteBucket([]byte(noticeBucketName)); err != nil {
			return err
		}
		_, err = tx.CreateBucket([]byte(noticeBucketName))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clearing notices: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
