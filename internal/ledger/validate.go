package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Pure precondition checks. Operations evaluate them in a fixed order so the
// first violated precondition determines the reported error.

func checkProfileAbsent(exists bool) error {
	if exists {
		return ErrProfileAlreadyExists
	}
	return nil
}

func checkProfilePresent(p *ReputationProfile) error {
	if p == nil {
		return ErrProfileNotFound
	}
	return nil
}

func checkNotSelf(caller, target AccountID) error {
	if caller == target {
		return ErrCannotRateSelf
	}
	return nil
}

func checkScore(score uint8) error {
	if score < MinScore || score > MaxScore {
		return ErrInvalidScore
	}
	return nil
}

func checkNotRated(exists bool) error {
	if exists {
		return ErrAlreadyRated
	}
	return nil
}

func checkActive(p *ReputationProfile) error {
	if !p.Active {
		return ErrProfileNotActive
	}
	return nil
}

func checkReviewCapacity(count, max uint32) error {
	if count >= max {
		return ErrTooManyReviews
	}
	return nil
}

func checkStake(amount, min *uint256.Int) error {
	if amount.Lt(min) {
		return ErrInsufficientStake
	}
	return nil
}

// ratingCheck is the state SubmitRating needs once its preconditions hold.
type ratingCheck struct {
	target *ReputationProfile
	count  uint32
}

// checkRating runs the SubmitRating preconditions in order against the
// current contents of b.
func checkRating(b Batch, caller AccountID, in RatingInput, maxReviews uint32) (*ratingCheck, error) {
	if err := checkNotSelf(caller, in.Target); err != nil {
		return nil, err
	}
	if err := checkScore(in.Score); err != nil {
		return nil, err
	}

	target, err := b.GetProfile(in.Target)
	if err != nil {
		return nil, fmt.Errorf("loading target profile: %w", err)
	}
	if err := checkProfilePresent(target); err != nil {
		return nil, err
	}

	rated, err := b.HasRating(in.Target, caller)
	if err != nil {
		return nil, fmt.Errorf("checking existing rating: %w", err)
	}
	if err := checkNotRated(rated); err != nil {
		return nil, err
	}

	if err := checkActive(target); err != nil {
		return nil, err
	}

	count, err := b.RatingCount(in.Target)
	if err != nil {
		return nil, fmt.Errorf("loading rating count: %w", err)
	}
	if err := checkReviewCapacity(count, maxReviews); err != nil {
		return nil, err
	}

	return &ratingCheck{target: target, count: count}, nil
}

// Validate checks that p can be used to construct a Ledger.
func (p Params) Validate() error {
	if p.MaxReviewsPerUser == 0 {
		return fmt.Errorf("max reviews per user must be positive")
	}
	return nil
}
