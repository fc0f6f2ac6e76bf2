package ledger

import (
	"github.com/holiman/uint256"
)

// Score bounds for a single rating.
const (
	MinScore uint8 = 1
	MaxScore uint8 = 5
)

// CategoryScores holds one value per rating category. On a profile these are
// running sums over accepted ratings; on a rating they are the sub-scores the
// rater submitted.
type CategoryScores struct {
	Communication   uint64
	Reliability     uint64
	Quality         uint64
	Professionalism uint64
}

// add accumulates o into c.
func (c *CategoryScores) add(o CategoryScores) {
	c.Communication += o.Communication
	c.Reliability += o.Reliability
	c.Quality += o.Quality
	c.Professionalism += o.Professionalism
}

// divide returns each category divided (floor) by n. n must be non-zero.
func (c CategoryScores) divide(n uint64) CategoryScores {
	return CategoryScores{
		Communication:   c.Communication / n,
		Reliability:     c.Reliability / n,
		Quality:         c.Quality / n,
		Professionalism: c.Professionalism / n,
	}
}

// ReputationProfile is the aggregate reputation record of one account.
//
// TotalScore and ReviewCount are maintained incrementally by SubmitRating and
// always equal the sum of scores and the number of ratings stored for Owner.
type ReputationProfile struct {
	Owner          AccountID
	TotalScore     uint64
	ReviewCount    uint32
	CategoryScores CategoryScores
	Active         bool
	StakedAmount   uint256.Int
}

// newProfile returns a fresh, active profile with all accumulators at zero.
func newProfile(owner AccountID) *ReputationProfile {
	return &ReputationProfile{
		Owner:  owner,
		Active: true,
	}
}

// Rating is a single rater's immutable assessment of a target account.
type Rating struct {
	From            AccountID
	To              AccountID
	Score           uint8
	CategoryRatings CategoryScores
	Timestamp       uint64 // unix seconds when the rating was accepted
	ReviewHash      ReviewHash
}

// RatingInput carries the arguments of SubmitRating other than the caller.
// Sub-scores are not range-checked beyond their type.
type RatingInput struct {
	Target          AccountID
	Score           uint8
	Communication   uint8
	Reliability     uint8
	Quality         uint8
	Professionalism uint8
	ReviewHash      ReviewHash
}

func (in RatingInput) categories() CategoryScores {
	return CategoryScores{
		Communication:   uint64(in.Communication),
		Reliability:     uint64(in.Reliability),
		Quality:         uint64(in.Quality),
		Professionalism: uint64(in.Professionalism),
	}
}

// Params are the ledger constants fixed when the ledger is constructed.
type Params struct {
	MinStakeAmount    uint256.Int
	MaxReviewsPerUser uint32
}

// DefaultParams returns the production constants:
// a minimum stake of one token at 12 decimals and 10,000 reviews per account.
func DefaultParams() Params {
	return Params{
		MinStakeAmount:    *uint256.NewInt(1_000_000_000_000),
		MaxReviewsPerUser: 10_000,
	}
}
