package store

import (
	"fmt"
	"sort"
	"sync"

	"repute-go/internal/ledger"
)

type ratingKey struct {
	target ledger.AccountID
	rater  ledger.AccountID
}

// MemoryStore is an in-memory implementation of ledger.Store, useful for
// tests. Batches buffer their writes and apply them under the store lock on
// Commit, so a discarded batch leaves no trace.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[ledger.AccountID]ledger.ReputationProfile
	ratings  map[ratingKey]ledger.Rating
	counts   map[ledger.AccountID]uint32
	events   []ledger.EventRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[ledger.AccountID]ledger.ReputationProfile),
		ratings:  make(map[ratingKey]ledger.Rating),
		counts:   make(map[ledger.AccountID]uint32),
	}
}

// Begin starts a batch over the store.
func (m *MemoryStore) Begin(writable bool) (ledger.Batch, error) {
	return &memoryBatch{
		store:    m,
		writable: writable,
		profiles: make(map[ledger.AccountID]ledger.ReputationProfile),
		ratings:  make(map[ratingKey]ledger.Rating),
		counts:   make(map[ledger.AccountID]uint32),
	}, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// memoryBatch overlays pending writes on the committed state.
type memoryBatch struct {
	store    *MemoryStore
	writable bool
	done     bool

	profiles map[ledger.AccountID]ledger.ReputationProfile
	ratings  map[ratingKey]ledger.Rating
	counts   map[ledger.AccountID]uint32
	events   []ledger.EventRecord
}

func (b *memoryBatch) checkWrite() error {
	if b.done {
		return fmt.Errorf("batch already closed")
	}
	if !b.writable {
		return fmt.Errorf("batch is read-only")
	}
	return nil
}

func (b *memoryBatch) GetProfile(account ledger.AccountID) (*ledger.ReputationProfile, error) {
	if p, ok := b.profiles[account]; ok {
		return &p, nil
	}

	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	if p, ok := b.store.profiles[account]; ok {
		return &p, nil
	}
	return nil, nil
}

func (b *memoryBatch) HasProfile(account ledger.AccountID) (bool, error) {
	p, err := b.GetProfile(account)
	return p != nil, err
}

func (b *memoryBatch) PutProfile(p *ledger.ReputationProfile) error {
	if err := b.checkWrite(); err != nil {
		return err
	}
	b.profiles[p.Owner] = *p
	return nil
}

func (b *memoryBatch) ForEachProfile(fn func(*ledger.ReputationProfile) error) error {
	b.store.mu.RLock()
	merged := make(map[ledger.AccountID]ledger.ReputationProfile, len(b.store.profiles)+len(b.profiles))
	for k, v := range b.store.profiles {
		merged[k] = v
	}
	b.store.mu.RUnlock()
	for k, v := range b.profiles {
		merged[k] = v
	}

	keys := make([]ledger.AccountID, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for _, k := range keys {
		p := merged[k]
		if err := fn(&p); err != nil {
			return err
		}
	}
	return nil
}

func (b *memoryBatch) GetRating(target, rater ledger.AccountID) (*ledger.Rating, error) {
	key := ratingKey{target: target, rater: rater}
	if r, ok := b.ratings[key]; ok {
		return &r, nil
	}

	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	if r, ok := b.store.ratings[key]; ok {
		return &r, nil
	}
	return nil, nil
}

func (b *memoryBatch) HasRating(target, rater ledger.AccountID) (bool, error) {
	r, err := b.GetRating(target, rater)
	return r != nil, err
}

func (b *memoryBatch) PutRating(r *ledger.Rating) error {
	if err := b.checkWrite(); err != nil {
		return err
	}
	b.ratings[ratingKey{target: r.To, rater: r.From}] = *r
	return nil
}

func (b *memoryBatch) ForEachRating(target ledger.AccountID, fn func(*ledger.Rating) error) error {
	merged := make(map[ledger.AccountID]ledger.Rating)
	b.store.mu.RLock()
	for k, v := range b.store.ratings {
		if k.target == target {
			merged[k.rater] = v
		}
	}
	b.store.mu.RUnlock()
	for k, v := range b.ratings {
		if k.target == target {
			merged[k.rater] = v
		}
	}

	raters := make([]ledger.AccountID, 0, len(merged))
	for k := range merged {
		raters = append(raters, k)
	}
	sort.Slice(raters, func(i, j int) bool { return raters[i].Less(raters[j]) })

	for _, k := range raters {
		r := merged[k]
		if err := fn(&r); err != nil {
			return err
		}
	}
	return nil
}

func (b *memoryBatch) RatingCount(account ledger.AccountID) (uint32, error) {
	if c, ok := b.counts[account]; ok {
		return c, nil
	}

	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	return b.store.counts[account], nil
}

func (b *memoryBatch) PutRatingCount(account ledger.AccountID, count uint32) error {
	if err := b.checkWrite(); err != nil {
		return err
	}
	b.counts[account] = count
	return nil
}

func (b *memoryBatch) AppendEvent(rec *ledger.EventRecord) error {
	if err := b.checkWrite(); err != nil {
		return err
	}

	b.store.mu.RLock()
	committed := len(b.store.events)
	b.store.mu.RUnlock()

	rec.Seq = uint64(committed + len(b.events) + 1)
	b.events = append(b.events, *rec)
	return nil
}

func (b *memoryBatch) ListEvents(limit int) ([]*ledger.EventRecord, error) {
	b.store.mu.RLock()
	all := make([]ledger.EventRecord, 0, len(b.store.events)+len(b.events))
	all = append(all, b.store.events...)
	b.store.mu.RUnlock()
	all = append(all, b.events...)

	var out []*ledger.EventRecord
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		rec := all[i]
		out = append(out, &rec)
	}
	return out, nil
}

// Commit applies the buffered writes to the store.
func (b *memoryBatch) Commit() error {
	if err := b.checkWrite(); err != nil {
		return err
	}
	b.done = true

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	for k, v := range b.profiles {
		b.store.profiles[k] = v
	}
	for k, v := range b.ratings {
		b.store.ratings[k] = v
	}
	for k, v := range b.counts {
		b.store.counts[k] = v
	}
	b.store.events = append(b.store.events, b.events...)
	return nil
}

// Discard drops the buffered writes.
func (b *memoryBatch) Discard() {
	b.done = true
	b.profiles = nil
	b.ratings = nil
	b.counts = nil
	b.events = nil
}

// Compile-time check that MemoryStore implements ledger.Store interface
var _ ledger.Store = (*MemoryStore)(nil)
