// Package ledgertest is a conformance suite run against every ledger.Store
// implementation.
package ledgertest

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"repute-go/internal/ledger"
	"repute-go/internal/testutil"
)

// Opener returns a fresh, empty store. The store must be closed by the opener
// via t.Cleanup.
type Opener = func(t *testing.T) ledger.Store

var (
	alice = testutil.Account(0xa1)
	bob   = testutil.Account(0xb2)
	carol = testutil.Account(0xc3)
	dave  = testutil.Account(0xd4)
)

// TestStore checks batch semantics common to all backends.
func TestStore(t *testing.T, open Opener) {
	t.Run("discard leaves no trace", func(t *testing.T) {
		s := open(t)

		b, err := s.Begin(true)
		require.NoError(t, err)
		require.NoError(t, b.PutProfile(&ledger.ReputationProfile{Owner: alice, Active: true}))
		require.NoError(t, b.AppendEvent(&ledger.EventRecord{ID: "x", Event: ledger.Event{Kind: ledger.EventProfileCreated, Who: alice}}))
		b.Discard()

		st := dump(t, s)
		require.Empty(t, st.Profiles)
		require.Empty(t, st.Events)
	})

	t.Run("batch sees its own writes", func(t *testing.T) {
		s := open(t)

		b, err := s.Begin(true)
		require.NoError(t, err)
		defer b.Discard()

		require.NoError(t, b.PutProfile(&ledger.ReputationProfile{Owner: alice, Active: true}))
		ok, err := b.HasProfile(alice)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, b.PutRating(&ledger.Rating{From: bob, To: alice, Score: 2}))
		r, err := b.GetRating(alice, bob)
		require.NoError(t, err)
		require.NotNil(t, r)
		require.Equal(t, uint8(2), r.Score)

		missing, err := b.GetRating(bob, alice)
		require.NoError(t, err)
		require.Nil(t, missing)
	})

	t.Run("read-only batch cannot commit", func(t *testing.T) {
		s := open(t)

		b, err := s.Begin(false)
		require.NoError(t, err)
		defer b.Discard()
		require.Error(t, b.Commit())
	})

	t.Run("iteration order", func(t *testing.T) {
		s := open(t)

		b, err := s.Begin(true)
		require.NoError(t, err)
		for _, id := range []ledger.AccountID{dave, bob, alice, carol} {
			require.NoError(t, b.PutProfile(&ledger.ReputationProfile{Owner: id, Active: true}))
		}
		for _, from := range []ledger.AccountID{dave, bob, carol} {
			require.NoError(t, b.PutRating(&ledger.Rating{From: from, To: alice, Score: 1}))
		}
		require.NoError(t, b.PutRating(&ledger.Rating{From: alice, To: bob, Score: 1}))
		require.NoError(t, b.Commit())

		st := dump(t, s)
		require.Equal(t, []ledger.AccountID{alice, bob, carol, dave}, owners(st.Profiles))

		var raters []ledger.AccountID
		for _, r := range st.Ratings {
			if r.To == alice {
				raters = append(raters, r.From)
			}
		}
		require.Equal(t, []ledger.AccountID{bob, carol, dave}, raters)
	})

	t.Run("event sequence and order", func(t *testing.T) {
		s := open(t)

		for i, id := range []string{"e1", "e2", "e3"} {
			b, err := s.Begin(true)
			require.NoError(t, err)
			rec := &ledger.EventRecord{ID: id, Timestamp: uint64(i), Event: ledger.Event{Kind: ledger.EventProfileCreated, Who: alice}}
			require.NoError(t, b.AppendEvent(rec))
			require.Equal(t, uint64(i+1), rec.Seq)
			require.NoError(t, b.Commit())
			b.Discard()
		}

		b, err := s.Begin(false)
		require.NoError(t, err)
		defer b.Discard()

		recs, err := b.ListEvents(2)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		require.Equal(t, "e3", recs[0].ID)
		require.Equal(t, "e2", recs[1].ID)

		all, err := b.ListEvents(0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.Equal(t, uint64(1), all[2].Seq)
	})
}

// TestLedger checks the ledger operations and their invariants against a
// store from open.
func TestLedger(t *testing.T, open Opener) {
	params := ledger.Params{MinStakeAmount: *uint256.NewInt(1000), MaxReviewsPerUser: 3}
	setup := func(t *testing.T) (*ledger.Ledger, ledger.Store) {
		s := open(t)
		return testutil.NewTestLedger(t, s, params), s
	}

	t.Run("create profile", func(t *testing.T) {
		l, s := setup(t)

		ev, err := l.CreateProfile(alice)
		require.NoError(t, err)
		require.Equal(t, &ledger.Event{Kind: ledger.EventProfileCreated, Who: alice}, ev)

		p, err := l.Profile(alice)
		require.NoError(t, err)
		require.Equal(t, &ledger.ReputationProfile{Owner: alice, Active: true}, p)

		before := dump(t, s)
		_, err = l.CreateProfile(alice)
		require.ErrorIs(t, err, ledger.ErrProfileAlreadyExists)
		require.Equal(t, before, dump(t, s))
	})

	t.Run("rating scenario", func(t *testing.T) {
		l, s := setup(t)
		mustCreate(t, l, alice)

		hash := testutil.ReviewHashOf("solid work")
		ev, err := l.SubmitRating(bob, ledger.RatingInput{
			Target: alice, Score: 4,
			Communication: 3, Reliability: 4, Quality: 5, Professionalism: 2,
			ReviewHash: hash,
		})
		require.NoError(t, err)
		require.Equal(t, &ledger.Event{Kind: ledger.EventRatingSubmitted, From: bob, To: alice, Score: 4}, ev)

		p, err := l.Profile(alice)
		require.NoError(t, err)
		require.Equal(t, uint64(4), p.TotalScore)
		require.Equal(t, uint32(1), p.ReviewCount)
		require.Equal(t, ledger.CategoryScores{Communication: 3, Reliability: 4, Quality: 5, Professionalism: 2}, p.CategoryScores)

		avg, err := l.AverageScore(alice)
		require.NoError(t, err)
		require.Equal(t, uint64(4), avg)

		cats, err := l.AverageCategoryScores(alice)
		require.NoError(t, err)
		require.Equal(t, p.CategoryScores, cats)

		r, err := l.Rating(alice, bob)
		require.NoError(t, err)
		require.Equal(t, &ledger.Rating{
			From: bob, To: alice, Score: 4,
			CategoryRatings: ledger.CategoryScores{Communication: 3, Reliability: 4, Quality: 5, Professionalism: 2},
			Timestamp:       testutil.FixedClock().Unix(),
			ReviewHash:      hash,
		}, r)

		count, err := l.RatingCount(alice)
		require.NoError(t, err)
		require.Equal(t, uint32(1), count)

		requireConsistent(t, l)
		require.Len(t, dump(t, s).Events, 2)
	})

	t.Run("self rating", func(t *testing.T) {
		l, s := setup(t)
		mustCreate(t, l, alice)

		before := dump(t, s)
		for score := uint8(0); score <= 6; score++ {
			_, err := l.SubmitRating(alice, ledger.RatingInput{Target: alice, Score: score})
			require.ErrorIs(t, err, ledger.ErrCannotRateSelf, "score %d", score)
		}
		// Without a profile the self check still comes first.
		_, err := l.SubmitRating(carol, ledger.RatingInput{Target: carol, Score: 3})
		require.ErrorIs(t, err, ledger.ErrCannotRateSelf)
		require.Equal(t, before, dump(t, s))
	})

	t.Run("score bounds", func(t *testing.T) {
		l, s := setup(t)
		for _, id := range []ledger.AccountID{alice, bob, carol, dave} {
			mustCreate(t, l, id)
		}

		before := dump(t, s)
		for _, score := range []uint8{0, 6, 255} {
			_, err := l.SubmitRating(bob, ledger.RatingInput{Target: alice, Score: score})
			require.ErrorIs(t, err, ledger.ErrInvalidScore, "score %d", score)
		}
		require.Equal(t, before, dump(t, s))

		// Five distinct targets are needed for five scores under a cap of 3
		// per target, so rate across several accounts.
		pairs := []struct {
			from, to ledger.AccountID
			score    uint8
		}{
			{bob, alice, 1}, {carol, alice, 2}, {dave, alice, 3},
			{alice, bob, 4}, {carol, bob, 5},
		}
		for _, p := range pairs {
			_, err := l.SubmitRating(p.from, ledger.RatingInput{Target: p.to, Score: p.score})
			require.NoError(t, err, "score %d", p.score)
		}
		requireConsistent(t, l)
	})

	t.Run("precondition order", func(t *testing.T) {
		l, _ := setup(t)

		// Invalid score is reported before the missing profile.
		_, err := l.SubmitRating(bob, ledger.RatingInput{Target: alice, Score: 0})
		require.ErrorIs(t, err, ledger.ErrInvalidScore)

		_, err = l.SubmitRating(bob, ledger.RatingInput{Target: alice, Score: 3})
		require.ErrorIs(t, err, ledger.ErrProfileNotFound)

		mustCreate(t, l, alice)
		_, err = l.SubmitRating(bob, ledger.RatingInput{Target: alice, Score: 3})
		require.NoError(t, err)
		_, err = l.DeactivateProfile(alice)
		require.NoError(t, err)

		// An existing rating is reported before the inactive profile.
		_, err = l.SubmitRating(bob, ledger.RatingInput{Target: alice, Score: 3})
		require.ErrorIs(t, err, ledger.ErrAlreadyRated)
		_, err = l.SubmitRating(carol, ledger.RatingInput{Target: alice, Score: 3})
		require.ErrorIs(t, err, ledger.ErrProfileNotActive)
	})

	t.Run("already rated", func(t *testing.T) {
		l, s := setup(t)
		mustCreate(t, l, alice)

		_, err := l.SubmitRating(bob, ledger.RatingInput{Target: alice, Score: 5})
		require.NoError(t, err)

		before := dump(t, s)
		for score := uint8(1); score <= 5; score++ {
			_, err = l.SubmitRating(bob, ledger.RatingInput{Target: alice, Score: score})
			require.ErrorIs(t, err, ledger.ErrAlreadyRated)
		}
		require.Equal(t, before, dump(t, s))

		// The reverse direction is a different pair.
		mustCreate(t, l, bob)
		_, err = l.SubmitRating(alice, ledger.RatingInput{Target: bob, Score: 1})
		require.NoError(t, err)
	})

	t.Run("too many reviews", func(t *testing.T) {
		l, s := setup(t)
		mustCreate(t, l, alice)

		for _, from := range []ledger.AccountID{bob, carol, dave} {
			_, err := l.SubmitRating(from, ledger.RatingInput{Target: alice, Score: 3})
			require.NoError(t, err)
		}

		before := dump(t, s)
		_, err := l.SubmitRating(testutil.Account(0xee), ledger.RatingInput{Target: alice, Score: 3})
		require.ErrorIs(t, err, ledger.ErrTooManyReviews)
		require.Equal(t, before, dump(t, s))
		requireConsistent(t, l)
	})

	t.Run("deactivate", func(t *testing.T) {
		l, s := setup(t)

		_, err := l.DeactivateProfile(alice)
		require.ErrorIs(t, err, ledger.ErrProfileNotFound)

		mustCreate(t, l, alice)
		for i := 0; i < 2; i++ {
			ev, err := l.DeactivateProfile(alice)
			require.NoError(t, err)
			require.Equal(t, &ledger.Event{Kind: ledger.EventProfileDeactivated, Who: alice}, ev)
		}

		p, err := l.Profile(alice)
		require.NoError(t, err)
		require.False(t, p.Active)

		before := dump(t, s)
		_, err = l.SubmitRating(bob, ledger.RatingInput{Target: alice, Score: 4})
		require.ErrorIs(t, err, ledger.ErrProfileNotActive)
		require.Equal(t, before, dump(t, s))
		require.Len(t, before.Events, 3)
	})

	t.Run("stake", func(t *testing.T) {
		l, s := setup(t)
		mustCreate(t, l, alice)

		before := dump(t, s)
		_, err := l.StakeReputation(alice, uint256.NewInt(999))
		require.ErrorIs(t, err, ledger.ErrInsufficientStake)
		require.Equal(t, before, dump(t, s))

		p, err := l.Profile(alice)
		require.NoError(t, err)
		require.True(t, p.StakedAmount.IsZero())

		// The amount is checked before the profile.
		_, err = l.StakeReputation(bob, uint256.NewInt(1))
		require.ErrorIs(t, err, ledger.ErrInsufficientStake)
		_, err = l.StakeReputation(bob, uint256.NewInt(1000))
		require.ErrorIs(t, err, ledger.ErrProfileNotFound)

		ev, err := l.StakeReputation(alice, uint256.NewInt(1000))
		require.NoError(t, err)
		require.Equal(t, &ledger.Event{Kind: ledger.EventReputationStaked, Who: alice, Amount: *uint256.NewInt(1000)}, ev)

		big := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
		_, err = l.StakeReputation(alice, big)
		require.NoError(t, err)

		p, err = l.Profile(alice)
		require.NoError(t, err)
		want := new(uint256.Int).Add(big, uint256.NewInt(1000))
		require.True(t, p.StakedAmount.Eq(want), "staked %s, want %s", p.StakedAmount.ToBig(), want.ToBig())

		// Deactivated profiles can still stake.
		_, err = l.DeactivateProfile(alice)
		require.NoError(t, err)
		_, err = l.StakeReputation(alice, uint256.NewInt(5000))
		require.NoError(t, err)
	})

	t.Run("averages without reviews", func(t *testing.T) {
		l, _ := setup(t)
		mustCreate(t, l, alice)

		avg, err := l.AverageScore(alice)
		require.NoError(t, err)
		require.Zero(t, avg)

		cats, err := l.AverageCategoryScores(alice)
		require.NoError(t, err)
		require.Equal(t, ledger.CategoryScores{}, cats)

		_, err = l.AverageScore(bob)
		require.ErrorIs(t, err, ledger.ErrProfileNotFound)
		_, err = l.AverageCategoryScores(bob)
		require.ErrorIs(t, err, ledger.ErrProfileNotFound)
	})

	t.Run("floor division", func(t *testing.T) {
		l, _ := setup(t)
		mustCreate(t, l, alice)

		_, err := l.SubmitRating(bob, ledger.RatingInput{Target: alice, Score: 5, Communication: 5, Quality: 1})
		require.NoError(t, err)
		_, err = l.SubmitRating(carol, ledger.RatingInput{Target: alice, Score: 4, Communication: 4, Quality: 0})
		require.NoError(t, err)

		avg, err := l.AverageScore(alice)
		require.NoError(t, err)
		require.Equal(t, uint64(4), avg)

		cats, err := l.AverageCategoryScores(alice)
		require.NoError(t, err)
		require.Equal(t, ledger.CategoryScores{Communication: 4}, cats)

		stats, err := l.Stats(alice)
		require.NoError(t, err)
		require.Equal(t, 4.5, stats.MeanScore)
	})

	t.Run("stats and leaderboard", func(t *testing.T) {
		l, _ := setup(t)
		for _, id := range []ledger.AccountID{alice, bob, carol, dave} {
			mustCreate(t, l, id)
		}
		rate := func(from, to ledger.AccountID, score uint8) {
			t.Helper()
			_, err := l.SubmitRating(from, ledger.RatingInput{Target: to, Score: score})
			require.NoError(t, err)
		}
		rate(bob, alice, 5)
		rate(carol, alice, 4) // alice 4.5 over 2
		rate(alice, bob, 5)   // bob 5 over 1
		rate(alice, carol, 4)
		rate(bob, carol, 5) // carol 4.5 over 2, ties alice
		rate(alice, dave, 5)
		_, err := l.DeactivateProfile(dave)
		require.NoError(t, err)

		top, err := l.TopProfiles(10)
		require.NoError(t, err)
		var order []ledger.AccountID
		for _, s := range top {
			order = append(order, s.Account)
		}
		require.Equal(t, []ledger.AccountID{bob, alice, carol}, order)

		top, err = l.TopProfiles(1)
		require.NoError(t, err)
		require.Len(t, top, 1)

		stats, err := l.Stats(dave)
		require.NoError(t, err)
		require.False(t, stats.Active)
		require.Equal(t, uint32(1), stats.TotalReviews)

		stats, err = l.Stats(testutil.Account(0x01))
		require.NoError(t, err)
		require.Equal(t, &ledger.Stats{Account: testutil.Account(0x01)}, stats)

		ratings, err := l.Ratings(carol)
		require.NoError(t, err)
		require.Len(t, ratings, 2)
		require.Equal(t, alice, ratings[0].From)
		require.Equal(t, bob, ratings[1].From)

		events, err := l.Events(3)
		require.NoError(t, err)
		require.Len(t, events, 3)
		require.Equal(t, ledger.EventProfileDeactivated, events[0].Event.Kind)
	})

	t.Run("invariant holds after mixed sequence", func(t *testing.T) {
		l, _ := setup(t)
		accounts := []ledger.AccountID{alice, bob, carol, dave, testutil.Account(0xee)}
		for _, id := range accounts[:4] {
			mustCreate(t, l, id)
		}

		// Every pair in both directions, with repeats, self ratings and bad
		// scores mixed in. Failures are expected; the invariant must hold.
		for round := 0; round < 2; round++ {
			for i, from := range accounts {
				for j, to := range accounts {
					score := uint8((i+j+round)%7) // 0..6
					_, err := l.SubmitRating(from, ledger.RatingInput{Target: to, Score: score, Quality: uint8(i)})
					if err != nil && !ledger.IsRejection(err) {
						require.NoError(t, err)
					}
				}
			}
			_, err := l.DeactivateProfile(accounts[round])
			require.NoError(t, err)
		}
		requireConsistent(t, l)

		for _, id := range accounts[:4] {
			p, err := l.Profile(id)
			require.NoError(t, err)
			ratings, err := l.Ratings(id)
			require.NoError(t, err)
			var total uint64
			for _, r := range ratings {
				total += uint64(r.Score)
			}
			require.Equal(t, uint32(len(ratings)), p.ReviewCount)
			require.Equal(t, total, p.TotalScore)
			require.LessOrEqual(t, p.ReviewCount, params.MaxReviewsPerUser)
		}
	})
}

func mustCreate(t *testing.T, l *ledger.Ledger, id ledger.AccountID) {
	t.Helper()
	_, err := l.CreateProfile(id)
	require.NoError(t, err)
}

func requireConsistent(t *testing.T, l *ledger.Ledger) {
	t.Helper()
	violations, err := l.Audit()
	require.NoError(t, err)
	require.Empty(t, violations)
}

// State is everything a store holds, read in one batch.
type State struct {
	Profiles []*ledger.ReputationProfile
	Ratings  []*ledger.Rating
	Counts   map[ledger.AccountID]uint32
	Events   []*ledger.EventRecord
}

func dump(t *testing.T, s ledger.Store) *State {
	t.Helper()
	st, err := Dump(s)
	require.NoError(t, err)
	return st
}

// Dump reads the full contents of s.
func Dump(s ledger.Store) (*State, error) {
	b, err := s.Begin(false)
	if err != nil {
		return nil, err
	}
	defer b.Discard()

	st := &State{Counts: map[ledger.AccountID]uint32{}}
	err = b.ForEachProfile(func(p *ledger.ReputationProfile) error {
		st.Profiles = append(st.Profiles, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, p := range st.Profiles {
		err := b.ForEachRating(p.Owner, func(r *ledger.Rating) error {
			st.Ratings = append(st.Ratings, r)
			return nil
		})
		if err != nil {
			return nil, err
		}
		n, err := b.RatingCount(p.Owner)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			st.Counts[p.Owner] = n
		}
	}
	st.Events, err = b.ListEvents(0)
	if err != nil {
		return nil, err
	}
	if st.Events == nil {
		st.Events = []*ledger.EventRecord{}
	}
	return st, nil
}

func owners(ps []*ledger.ReputationProfile) []ledger.AccountID {
	out := make([]ledger.AccountID, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Owner)
	}
	return out
}
