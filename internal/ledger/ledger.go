package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Ledger applies reputation state transitions to a Store.
//
// Calls must be sequenced by the caller: the ledger performs no locking of
// its own. Each operation runs in one batch; a rejected operation discards its
// batch, so nothing it touched is written and no event is journaled.
type Ledger struct {
	store  Store
	params Params
	clock  Clock
	idgen  IDGenerator
}

// New creates a Ledger over store with the given constants.
func New(store Store, params Params, clock Clock, idgen IDGenerator) (*Ledger, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger params: %w", err)
	}
	return &Ledger{
		store:  store,
		params: params,
		clock:  clock,
		idgen:  idgen,
	}, nil
}

// Params returns the constants the ledger was constructed with.
func (l *Ledger) Params() Params {
	return l.params
}

// CreateProfile registers a fresh, active profile for caller.
func (l *Ledger) CreateProfile(caller AccountID) (*Event, error) {
	return l.apply(func(b Batch, _ uint64) (*Event, error) {
		exists, err := b.HasProfile(caller)
		if err != nil {
			return nil, fmt.Errorf("checking existing profile: %w", err)
		}
		if err := checkProfileAbsent(exists); err != nil {
			return nil, err
		}

		if err := b.PutProfile(newProfile(caller)); err != nil {
			return nil, fmt.Errorf("storing profile: %w", err)
		}
		return &Event{Kind: EventProfileCreated, Who: caller}, nil
	})
}

// SubmitRating records caller's rating of in.Target and folds it into the
// target's aggregate scores.
func (l *Ledger) SubmitRating(caller AccountID, in RatingInput) (*Event, error) {
	return l.apply(func(b Batch, now uint64) (*Event, error) {
		chk, err := checkRating(b, caller, in, l.params.MaxReviewsPerUser)
		if err != nil {
			return nil, err
		}

		categories := in.categories()
		profile := chk.target
		profile.TotalScore += uint64(in.Score)
		profile.ReviewCount++
		profile.CategoryScores.add(categories)

		rating := &Rating{
			From:            caller,
			To:              in.Target,
			Score:           in.Score,
			CategoryRatings: categories,
			Timestamp:       now,
			ReviewHash:      in.ReviewHash,
		}

		if err := b.PutRating(rating); err != nil {
			return nil, fmt.Errorf("storing rating: %w", err)
		}
		if err := b.PutProfile(profile); err != nil {
			return nil, fmt.Errorf("storing profile: %w", err)
		}
		if err := b.PutRatingCount(in.Target, chk.count+1); err != nil {
			return nil, fmt.Errorf("storing rating count: %w", err)
		}

		return &Event{Kind: EventRatingSubmitted, From: caller, To: in.Target, Score: in.Score}, nil
	})
}

// StakeReputation adds amount to caller's staked balance. Custody of the
// underlying funds is not modeled here.
func (l *Ledger) StakeReputation(caller AccountID, amount *uint256.Int) (*Event, error) {
	return l.apply(func(b Batch, _ uint64) (*Event, error) {
		if err := checkStake(amount, &l.params.MinStakeAmount); err != nil {
			return nil, err
		}

		profile, err := b.GetProfile(caller)
		if err != nil {
			return nil, fmt.Errorf("loading profile: %w", err)
		}
		if err := checkProfilePresent(profile); err != nil {
			return nil, err
		}

		profile.StakedAmount.Add(&profile.StakedAmount, amount)
		if err := b.PutProfile(profile); err != nil {
			return nil, fmt.Errorf("storing profile: %w", err)
		}

		return &Event{Kind: EventReputationStaked, Who: caller, Amount: *amount}, nil
	})
}

// DeactivateProfile marks caller's profile inactive so it stops accepting
// ratings. There is no way back. Deactivating an inactive profile succeeds
// and emits the event again.
func (l *Ledger) DeactivateProfile(caller AccountID) (*Event, error) {
	return l.apply(func(b Batch, _ uint64) (*Event, error) {
		profile, err := b.GetProfile(caller)
		if err != nil {
			return nil, fmt.Errorf("loading profile: %w", err)
		}
		if err := checkProfilePresent(profile); err != nil {
			return nil, err
		}

		profile.Active = false
		if err := b.PutProfile(profile); err != nil {
			return nil, fmt.Errorf("storing profile: %w", err)
		}

		return &Event{Kind: EventProfileDeactivated, Who: caller}, nil
	})
}

// apply runs fn in a writable batch, journals the event it returns and
// commits. Any error discards the batch.
func (l *Ledger) apply(fn func(b Batch, now uint64) (*Event, error)) (*Event, error) {
	b, err := l.store.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("beginning batch: %w", err)
	}
	defer b.Discard()

	now := unixSeconds(l.clock.Now())
	ev, err := fn(b, now)
	if err != nil {
		return nil, err
	}

	rec := &EventRecord{ID: l.idgen.New(), Timestamp: now, Event: *ev}
	if err := b.AppendEvent(rec); err != nil {
		return nil, fmt.Errorf("journaling %s: %w", ev.Kind, err)
	}

	if err := b.Commit(); err != nil {
		return nil, fmt.Errorf("committing batch: %w", err)
	}
	return ev, nil
}

// view runs fn in a read-only batch.
func (l *Ledger) view(fn func(b Batch) error) error {
	b, err := l.store.Begin(false)
	if err != nil {
		return fmt.Errorf("beginning batch: %w", err)
	}
	defer b.Discard()
	return fn(b)
}
