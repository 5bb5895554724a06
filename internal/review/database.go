package review

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "reviews"

// DB defines the interface for database operations
type DB interface {
	// SaveReview stores a review under its ID, replacing any previous value
	SaveReview(review *Review) error

	// GetReview retrieves a review by ID. Unknown IDs return ErrNotFound.
	GetReview(id string) (*Review, error)

	// ListReviews returns all reviews
	ListReviews() ([]*Review, error)

	// DeleteReview removes a review from the database
	DeleteReview(id string) error

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

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveReview stores a review. Last write wins.
func (b *BoltDB) SaveReview(review *Review) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data, err := json.Marshal(review)
		if err != nil {
			return fmt.Errorf("marshaling review: %w", err)
		}
		return bucket.Put([]byte(review.ID), data)
	})
}

// GetReview retrieves a review by ID
func (b *BoltDB) GetReview(id string) (*Review, error) {
	var review *Review
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &review)
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

// ListReviews returns all reviews in key order
func (b *BoltDB) ListReviews() ([]*Review, error) {
	reviews := make([]*Review, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var review Review
			if err := json.Unmarshal(v, &review); err != nil {
				return fmt.Errorf("unmarshaling review: %w", err)
			}
			reviews = append(reviews, &review)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

// DeleteReview removes a review from the database
func (b *BoltDB) DeleteReview(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
