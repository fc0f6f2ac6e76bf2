package ledger

// Store is the storage engine behind a Ledger. Every operation runs inside a
// single Batch: reads observe one consistent view and writes become visible
// only on Commit, all together.
type Store interface {
	// Begin starts a batch. Commit on a batch begun with writable=false fails.
	Begin(writable bool) (Batch, error)

	// Close releases the underlying storage.
	Close() error
}

// Batch is an open unit of work over the ledger namespaces.
type Batch interface {
	ProfileStore
	RatingStore
	EventLog

	// Commit applies every write made through the batch atomically.
	Commit() error

	// Discard abandons the batch. It is safe to call after Commit.
	Discard()
}

// ProfileStore holds one ReputationProfile per account.
type ProfileStore interface {
	// GetProfile returns the profile of account, or nil if there is none.
	GetProfile(account AccountID) (*ReputationProfile, error)

	// HasProfile reports whether account has a profile.
	HasProfile(account AccountID) (bool, error)

	// PutProfile inserts or replaces the profile keyed by p.Owner.
	PutProfile(p *ReputationProfile) error

	// ForEachProfile calls fn for every profile in ascending account order.
	// Iteration stops at the first error fn returns.
	ForEachProfile(fn func(*ReputationProfile) error) error
}

// RatingStore holds ratings keyed by (target, rater) and the per-target
// rating counter.
type RatingStore interface {
	// GetRating returns the rating rater gave target, or nil if there is none.
	GetRating(target, rater AccountID) (*Rating, error)

	// HasRating reports whether rater has rated target.
	HasRating(target, rater AccountID) (bool, error)

	// PutRating inserts the rating keyed by (r.To, r.From).
	PutRating(r *Rating) error

	// ForEachRating calls fn for every rating received by target in
	// ascending rater order.
	ForEachRating(target AccountID, fn func(*Rating) error) error

	// RatingCount returns the number of ratings accepted for account; zero
	// when none were recorded.
	RatingCount(account AccountID) (uint32, error)

	// PutRatingCount sets the rating counter of account.
	PutRatingCount(account AccountID, count uint32) error
}

// EventLog is the append-only journal of emitted events.
type EventLog interface {
	// AppendEvent stores rec and assigns rec.Seq.
	AppendEvent(rec *EventRecord) error

	// ListEvents returns at most limit records, newest first. A limit of
	// zero or less returns every record.
	ListEvents(limit int) ([]*EventRecord, error)
}
