package store

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketSessions = "sessions"

// BoltStore keeps every key in a single bbolt bucket.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSessions))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Get implements Store.
func (s *BoltStore) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketSessions)).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid for the life of the transaction.
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// Put implements Store.
func (s *BoltStore) Put(key string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Put([]byte(key), data)
	})
}

// Delete implements Store.
func (s *BoltStore) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Delete([]byte(key))
	})
}

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
