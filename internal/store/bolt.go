package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"repute-go/internal/ledger"
)

// Bucket names, one per ledger namespace.
var (
	profilesBucket     = []byte("profiles")
	ratingsBucket      = []byte("ratings")
	ratingCountsBucket = []byte("rating_counts")
	eventsBucket       = []byte("events")

	allBuckets = [][]byte{profilesBucket, ratingsBucket, ratingCountsBucket, eventsBucket}
)

// BoltStore is a ledger.Store backed by a bbolt file. Each batch is a bolt
// transaction, so Commit is atomic and durable.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens (creating if needed) the bolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.path
}

// Begin starts a bolt transaction.
func (s *BoltStore) Begin(writable bool) (ledger.Batch, error) {
	tx, err := s.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return &boltBatch{tx: tx}, nil
}

// Close closes the bolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

type boltBatch struct {
	tx *bolt.Tx
}

func (b *boltBatch) bucket(name []byte) (*bolt.Bucket, error) {
	bk := b.tx.Bucket(name)
	if bk == nil {
		return nil, fmt.Errorf("bucket %s missing", name)
	}
	return bk, nil
}

func (b *boltBatch) GetProfile(account ledger.AccountID) (*ledger.ReputationProfile, error) {
	bk, err := b.bucket(profilesBucket)
	if err != nil {
		return nil, err
	}
	v := bk.Get(account[:])
	if v == nil {
		return nil, nil
	}
	p := new(ledger.ReputationProfile)
	if err := p.UnmarshalBinary(v); err != nil {
		return nil, fmt.Errorf("decoding profile %s: %w", account, err)
	}
	return p, nil
}

func (b *boltBatch) HasProfile(account ledger.AccountID) (bool, error) {
	bk, err := b.bucket(profilesBucket)
	if err != nil {
		return false, err
	}
	return bk.Get(account[:]) != nil, nil
}

func (b *boltBatch) PutProfile(p *ledger.ReputationProfile) error {
	bk, err := b.bucket(profilesBucket)
	if err != nil {
		return err
	}
	v, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	return bk.Put(p.Owner.Bytes(), v)
}

func (b *boltBatch) ForEachProfile(fn func(*ledger.ReputationProfile) error) error {
	bk, err := b.bucket(profilesBucket)
	if err != nil {
		return err
	}
	return bk.ForEach(func(k, v []byte) error {
		p := new(ledger.ReputationProfile)
		if err := p.UnmarshalBinary(v); err != nil {
			return fmt.Errorf("decoding profile %x: %w", k, err)
		}
		return fn(p)
	})
}

func (b *boltBatch) GetRating(target, rater ledger.AccountID) (*ledger.Rating, error) {
	bk, err := b.bucket(ratingsBucket)
	if err != nil {
		return nil, err
	}
	v := bk.Get(ledger.RatingKey(target, rater))
	if v == nil {
		return nil, nil
	}
	r := new(ledger.Rating)
	if err := r.UnmarshalBinary(v); err != nil {
		return nil, fmt.Errorf("decoding rating: %w", err)
	}
	return r, nil
}

func (b *boltBatch) HasRating(target, rater ledger.AccountID) (bool, error) {
	bk, err := b.bucket(ratingsBucket)
	if err != nil {
		return false, err
	}
	return bk.Get(ledger.RatingKey(target, rater)) != nil, nil
}

func (b *boltBatch) PutRating(r *ledger.Rating) error {
	bk, err := b.bucket(ratingsBucket)
	if err != nil {
		return err
	}
	v, err := r.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding rating: %w", err)
	}
	return bk.Put(ledger.RatingKey(r.To, r.From), v)
}

func (b *boltBatch) ForEachRating(target ledger.AccountID, fn func(*ledger.Rating) error) error {
	bk, err := b.bucket(ratingsBucket)
	if err != nil {
		return err
	}
	prefix := target[:]
	c := bk.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		r := new(ledger.Rating)
		if err := r.UnmarshalBinary(v); err != nil {
			return fmt.Errorf("decoding rating %x: %w", k, err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (b *boltBatch) RatingCount(account ledger.AccountID) (uint32, error) {
	bk, err := b.bucket(ratingCountsBucket)
	if err != nil {
		return 0, err
	}
	v := bk.Get(account[:])
	if v == nil {
		return 0, nil
	}
	if len(v) != 4 {
		return 0, fmt.Errorf("rating count for %s: expected 4 bytes, got %d", account, len(v))
	}
	return binary.BigEndian.Uint32(v), nil
}

func (b *boltBatch) PutRatingCount(account ledger.AccountID, count uint32) error {
	bk, err := b.bucket(ratingCountsBucket)
	if err != nil {
		return err
	}
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, count)
	return bk.Put(account.Bytes(), v)
}

func (b *boltBatch) AppendEvent(rec *ledger.EventRecord) error {
	bk, err := b.bucket(eventsBucket)
	if err != nil {
		return err
	}
	seq, err := bk.NextSequence()
	if err != nil {
		return fmt.Errorf("allocating event sequence: %w", err)
	}
	rec.Seq = seq

	v, err := rec.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return bk.Put(seqKey(seq), v)
}

func (b *boltBatch) ListEvents(limit int) ([]*ledger.EventRecord, error) {
	bk, err := b.bucket(eventsBucket)
	if err != nil {
		return nil, err
	}
	var out []*ledger.EventRecord
	c := bk.Cursor()
	for k, v := c.Last(); k != nil; k, v = c.Prev() {
		if limit > 0 && len(out) == limit {
			break
		}
		rec := new(ledger.EventRecord)
		if err := rec.UnmarshalBinary(v); err != nil {
			return nil, fmt.Errorf("decoding event %x: %w", k, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (b *boltBatch) Commit() error {
	if !b.tx.Writable() {
		return fmt.Errorf("batch is read-only")
	}
	return b.tx.Commit()
}

// Discard rolls the transaction back. After Commit, Rollback reports
// ErrTxClosed, which is expected here.
func (b *boltBatch) Discard() {
	_ = b.tx.Rollback()
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Compile-time check that BoltStore implements ledger.Store interface
var _ ledger.Store = (*BoltStore)(nil)
