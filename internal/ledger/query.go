package ledger

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sort"

	"github.com/holiman/uint256"
)

// Profile returns the profile of account.
func (l *Ledger) Profile(account AccountID) (*ReputationProfile, error) {
	var profile *ReputationProfile
	err := l.view(func(b Batch) error {
		p, err := b.GetProfile(account)
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}
		if err := checkProfilePresent(p); err != nil {
			return err
		}
		profile = p
		return nil
	})
	return profile, err
}

// Rating returns the rating rater gave target, or nil if there is none.
func (l *Ledger) Rating(target, rater AccountID) (*Rating, error) {
	var rating *Rating
	err := l.view(func(b Batch) error {
		r, err := b.GetRating(target, rater)
		if err != nil {
			return fmt.Errorf("loading rating: %w", err)
		}
		rating = r
		return nil
	})
	return rating, err
}

// RatingCount returns the number of ratings accepted for account.
func (l *Ledger) RatingCount(account AccountID) (uint32, error) {
	var count uint32
	err := l.view(func(b Batch) error {
		var err error
		count, err = b.RatingCount(account)
		return err
	})
	return count, err
}

// Ratings returns every rating target has received, ordered by rater.
func (l *Ledger) Ratings(target AccountID) ([]*Rating, error) {
	var ratings []*Rating
	err := l.view(func(b Batch) error {
		return b.ForEachRating(target, func(r *Rating) error {
			ratings = append(ratings, r)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing ratings: %w", err)
	}
	return ratings, nil
}

// Events returns the most recent journal records, newest first.
func (l *Ledger) Events(limit int) ([]*EventRecord, error) {
	var recs []*EventRecord
	err := l.view(func(b Batch) error {
		var err error
		recs, err = b.ListEvents(limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return recs, nil
}

// AverageScore returns the floor of the mean rating score of account, or 0
// when it has no reviews.
func (l *Ledger) AverageScore(account AccountID) (uint64, error) {
	p, err := l.Profile(account)
	if err != nil {
		return 0, err
	}
	return p.AverageScore(), nil
}

// AverageCategoryScores returns the floor of the mean of each category for account.
func (l *Ledger) AverageCategoryScores(account AccountID) (CategoryScores, error) {
	p, err := l.Profile(account)
	if err != nil {
		return CategoryScores{}, err
	}
	return p.AverageCategoryScores(), nil
}

// AverageScore returns TotalScore / ReviewCount, or 0 with no reviews.
func (p *ReputationProfile) AverageScore() uint64 {
	if p.ReviewCount == 0 {
		return 0
	}
	return p.TotalScore / uint64(p.ReviewCount)
}

// AverageCategoryScores divides each accumulator by max(ReviewCount, 1).
func (p *ReputationProfile) AverageCategoryScores() CategoryScores {
	n := uint64(p.ReviewCount)
	if n == 0 {
		n = 1
	}
	return p.CategoryScores.divide(n)
}

// Stats is the summary shown for an account.
type Stats struct {
	Account          AccountID
	AverageScore     uint64  // floor of the mean
	MeanScore        float64 // mean rounded to two decimals, for display
	TotalReviews     uint32
	CategoryAverages CategoryScores
	StakedAmount     uint256.Int
	Active           bool
}

// Stats summarizes account. An account without a profile yields zero stats
// with Active false rather than an error.
func (l *Ledger) Stats(account AccountID) (*Stats, error) {
	p, err := l.Profile(account)
	switch {
	case err == nil:
		return statsOf(p), nil
	case errors.Is(err, ErrProfileNotFound):
		return &Stats{Account: account}, nil
	default:
		return nil, err
	}
}

func statsOf(p *ReputationProfile) *Stats {
	s := &Stats{
		Account:          p.Owner,
		AverageScore:     p.AverageScore(),
		TotalReviews:     p.ReviewCount,
		CategoryAverages: p.AverageCategoryScores(),
		StakedAmount:     p.StakedAmount,
		Active:           p.Active,
	}
	if p.ReviewCount > 0 {
		mean := float64(p.TotalScore) / float64(p.ReviewCount)
		s.MeanScore = math.Round(mean*100) / 100
	}
	return s
}

// TopProfiles returns up to limit active, reviewed accounts ranked by mean
// score, then by review count, then by account ID.
func (l *Ledger) TopProfiles(limit int) ([]*Stats, error) {
	var ranked []*ReputationProfile
	err := l.view(func(b Batch) error {
		return b.ForEachProfile(func(p *ReputationProfile) error {
			if p.Active && p.ReviewCount > 0 {
				ranked = append(ranked, p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if c := compareMeans(a, b); c != 0 {
			return c > 0
		}
		if a.ReviewCount != b.ReviewCount {
			return a.ReviewCount > b.ReviewCount
		}
		return a.Owner.Less(b.Owner)
	})

	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]*Stats, len(ranked))
	for i, p := range ranked {
		out[i] = statsOf(p)
	}
	return out, nil
}

// compareMeans compares a.TotalScore/a.ReviewCount with b's exactly, using
// 128-bit cross products. Both profiles must have reviews.
func compareMeans(a, b *ReputationProfile) int {
	ahi, alo := bits.Mul64(a.TotalScore, uint64(b.ReviewCount))
	bhi, blo := bits.Mul64(b.TotalScore, uint64(a.ReviewCount))
	switch {
	case ahi != bhi:
		if ahi > bhi {
			return 1
		}
		return -1
	case alo != blo:
		if alo > blo {
			return 1
		}
		return -1
	}
	return 0
}

// Violation describes a profile whose stored aggregates disagree with its ratings.
type Violation struct {
	Account AccountID
	Problem string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Account, v.Problem)
}

// Audit recomputes every profile's aggregates from its stored ratings and
// reports each disagreement with the profile or the rating counter.
func (l *Ledger) Audit() ([]Violation, error) {
	var violations []Violation
	err := l.view(func(b Batch) error {
		var err error
		violations, err = AuditBatch(b)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("auditing ledger: %w", err)
	}
	return violations, nil
}

// AuditBatch runs the Audit checks against the contents of b, including
// writes not yet committed.
func AuditBatch(b Batch) ([]Violation, error) {
	var violations []Violation
	err := b.ForEachProfile(func(p *ReputationProfile) error {
		vs, err := auditProfile(b, p)
		if err != nil {
			return err
		}
		violations = append(violations, vs...)
		return nil
	})
	return violations, err
}

func auditProfile(b Batch, p *ReputationProfile) ([]Violation, error) {
	var (
		vs         []Violation
		total      uint64
		count      uint64
		categories CategoryScores
	)
	report := func(format string, args ...any) {
		vs = append(vs, Violation{Account: p.Owner, Problem: fmt.Sprintf(format, args...)})
	}

	err := b.ForEachRating(p.Owner, func(r *Rating) error {
		if r.To != p.Owner {
			report("rating from %s is addressed to %s", r.From, r.To)
		}
		if r.From == r.To {
			report("self rating")
		}
		if checkScore(r.Score) != nil {
			report("rating from %s has score %d", r.From, r.Score)
		}
		total += uint64(r.Score)
		count++
		categories.add(r.CategoryRatings)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing ratings for %s: %w", p.Owner, err)
	}

	if p.TotalScore != total {
		report("total score %d, ratings sum to %d", p.TotalScore, total)
	}
	if uint64(p.ReviewCount) != count {
		report("review count %d, %d ratings stored", p.ReviewCount, count)
	}
	if p.CategoryScores != categories {
		report("category scores %+v, ratings sum to %+v", p.CategoryScores, categories)
	}

	stored, err := b.RatingCount(p.Owner)
	if err != nil {
		return nil, fmt.Errorf("loading rating count for %s: %w", p.Owner, err)
	}
	if uint64(stored) != count {
		report("rating counter %d, %d ratings stored", stored, count)
	}
	return vs, nil
}
