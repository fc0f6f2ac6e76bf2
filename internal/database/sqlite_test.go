package database

import (
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"

	"repute-go/internal/ledger"
)

// newTestStore creates a new in-memory store with migrations applied.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	if err := s.Migrate(); err != nil {
		s.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestNewSQLiteStoreFromDB(t *testing.T) {
	db, err := OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("OpenConnection() error = %v", err)
	}
	s := NewSQLiteStoreFromDB(db)
	t.Cleanup(func() { s.Close() })

	if err := s.CheckMigrations(); err == nil {
		t.Error("CheckMigrations() on an unmigrated connection expected error, got nil")
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if s.Path() != "" {
		t.Errorf("Path() = %q, want empty for a wrapped connection", s.Path())
	}

	owner := ledger.AccountID{1}
	b := begin(t, s, true)
	if err := b.PutProfile(&ledger.ReputationProfile{Owner: owner, Active: true}); err != nil {
		t.Fatalf("PutProfile() error = %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	r := begin(t, s, false)
	if ok, err := r.HasProfile(owner); err != nil || !ok {
		t.Errorf("HasProfile() = %v, %v; want true, nil", ok, err)
	}
}

func begin(t *testing.T, s *SQLiteStore, writable bool) ledger.Batch {
	t.Helper()
	b, err := s.Begin(writable)
	if err != nil {
		t.Fatalf("Begin(%v) error = %v", writable, err)
	}
	t.Cleanup(b.Discard)
	return b
}

var (
	alice = ledger.AccountID{1}
	bob   = ledger.AccountID{2}
	carol = ledger.AccountID{3}
)

func TestSQLiteStore_Profiles(t *testing.T) {
	t.Run("returns nil when profile not found", func(t *testing.T) {
		s := newTestStore(t)
		b := begin(t, s, false)

		p, err := b.GetProfile(alice)
		if err != nil {
			t.Fatalf("GetProfile() error = %v", err)
		}
		if p != nil {
			t.Errorf("GetProfile() = %v, want nil", p)
		}
	})

	t.Run("stores and reloads a profile", func(t *testing.T) {
		s := newTestStore(t)

		want := &ledger.ReputationProfile{
			Owner:       alice,
			TotalScore:  9,
			ReviewCount: 2,
			CategoryScores: ledger.CategoryScores{
				Communication: 7, Reliability: 8, Quality: 9, Professionalism: 10,
			},
			Active: true,
		}
		want.StakedAmount.SetUint64(1_000_000_000_000)

		b := begin(t, s, true)
		if err := b.PutProfile(want); err != nil {
			t.Fatalf("PutProfile() error = %v", err)
		}
		if err := b.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}

		r := begin(t, s, false)
		got, err := r.GetProfile(alice)
		if err != nil {
			t.Fatalf("GetProfile() error = %v", err)
		}
		if got == nil {
			t.Fatal("GetProfile() returned nil, want profile")
		}
		if *got != *want {
			t.Errorf("GetProfile() = %+v, want %+v", got, want)
		}

		ok, err := r.HasProfile(alice)
		if err != nil || !ok {
			t.Errorf("HasProfile() = %v, %v; want true, nil", ok, err)
		}
	})

	t.Run("lists profiles in account order", func(t *testing.T) {
		s := newTestStore(t)

		b := begin(t, s, true)
		for _, id := range []ledger.AccountID{carol, alice, bob} {
			if err := b.PutProfile(&ledger.ReputationProfile{Owner: id, Active: true}); err != nil {
				t.Fatalf("PutProfile() error = %v", err)
			}
		}
		if err := b.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}

		var got []ledger.AccountID
		r := begin(t, s, false)
		err := r.ForEachProfile(func(p *ledger.ReputationProfile) error {
			got = append(got, p.Owner)
			return nil
		})
		if err != nil {
			t.Fatalf("ForEachProfile() error = %v", err)
		}
		want := []ledger.AccountID{alice, bob, carol}
		if len(got) != len(want) {
			t.Fatalf("ForEachProfile() visited %d profiles, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("profile[%d] = %s, want %s", i, got[i], want[i])
			}
		}
	})
}

func TestSQLiteStore_Ratings(t *testing.T) {
	t.Run("rating requires target profile", func(t *testing.T) {
		s := newTestStore(t)
		b := begin(t, s, true)

		err := b.PutRating(&ledger.Rating{From: alice, To: bob, Score: 3})
		if err == nil {
			t.Error("PutRating() expected foreign key error, got nil")
		}
	})

	t.Run("duplicate rating is rejected", func(t *testing.T) {
		s := newTestStore(t)
		b := begin(t, s, true)

		if err := b.PutProfile(&ledger.ReputationProfile{Owner: bob, Active: true}); err != nil {
			t.Fatalf("PutProfile() error = %v", err)
		}
		r := &ledger.Rating{From: alice, To: bob, Score: 4}
		if err := b.PutRating(r); err != nil {
			t.Fatalf("PutRating() error = %v", err)
		}
		if err := b.PutRating(r); err == nil {
			t.Error("second PutRating() expected error, got nil")
		}
	})

	t.Run("lists ratings of a target by rater", func(t *testing.T) {
		s := newTestStore(t)
		b := begin(t, s, true)

		if err := b.PutProfile(&ledger.ReputationProfile{Owner: alice, Active: true}); err != nil {
			t.Fatalf("PutProfile() error = %v", err)
		}
		for _, from := range []ledger.AccountID{carol, bob} {
			r := &ledger.Rating{From: from, To: alice, Score: 5, Timestamp: 42}
			r.ReviewHash[0] = from[0]
			if err := b.PutRating(r); err != nil {
				t.Fatalf("PutRating() error = %v", err)
			}
		}
		if err := b.PutRatingCount(alice, 2); err != nil {
			t.Fatalf("PutRatingCount() error = %v", err)
		}
		if err := b.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}

		r := begin(t, s, false)
		var raters []ledger.AccountID
		err := r.ForEachRating(alice, func(rt *ledger.Rating) error {
			if rt.ReviewHash[0] != rt.From[0] {
				t.Errorf("rating from %s has review hash %x", rt.From, rt.ReviewHash)
			}
			raters = append(raters, rt.From)
			return nil
		})
		if err != nil {
			t.Fatalf("ForEachRating() error = %v", err)
		}
		if len(raters) != 2 || raters[0] != bob || raters[1] != carol {
			t.Errorf("ForEachRating() raters = %v, want [%s %s]", raters, bob, carol)
		}

		count, err := r.RatingCount(alice)
		if err != nil || count != 2 {
			t.Errorf("RatingCount() = %d, %v; want 2, nil", count, err)
		}
		count, err = r.RatingCount(bob)
		if err != nil || count != 0 {
			t.Errorf("RatingCount(no ratings) = %d, %v; want 0, nil", count, err)
		}
	})
}

func TestSQLiteStore_Events(t *testing.T) {
	s := newTestStore(t)

	b := begin(t, s, true)
	amount := uint256.NewInt(5)
	for i, kind := range []ledger.EventKind{ledger.EventProfileCreated, ledger.EventReputationStaked, ledger.EventProfileDeactivated} {
		rec := &ledger.EventRecord{
			ID:        string(rune('a' + i)),
			Timestamp: uint64(100 + i),
			Event:     ledger.Event{Kind: kind, Who: alice, Amount: *amount},
		}
		if err := b.AppendEvent(rec); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
		if rec.Seq != uint64(i+1) {
			t.Errorf("AppendEvent() seq = %d, want %d", rec.Seq, i+1)
		}
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	r := begin(t, s, false)
	all, err := r.ListEvents(0)
	if err != nil {
		t.Fatalf("ListEvents(0) error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListEvents(0) returned %d records, want 3", len(all))
	}
	if all[0].Event.Kind != ledger.EventProfileDeactivated || all[0].Seq != 3 {
		t.Errorf("newest record = %+v, want ProfileDeactivated seq 3", all[0])
	}
	if !all[1].Event.Amount.Eq(amount) {
		t.Errorf("amount = %s, want %s", all[1].Event.Amount.ToBig(), amount.ToBig())
	}

	two, err := r.ListEvents(2)
	if err != nil {
		t.Fatalf("ListEvents(2) error = %v", err)
	}
	if len(two) != 2 || two[1].ID != "b" {
		t.Errorf("ListEvents(2) = %v, want two newest records", two)
	}
}

func TestSQLiteStore_Batches(t *testing.T) {
	t.Run("discard drops writes", func(t *testing.T) {
		s := newTestStore(t)

		b := begin(t, s, true)
		if err := b.PutProfile(&ledger.ReputationProfile{Owner: alice}); err != nil {
			t.Fatalf("PutProfile() error = %v", err)
		}
		b.Discard()

		r := begin(t, s, false)
		ok, err := r.HasProfile(alice)
		if err != nil {
			t.Fatalf("HasProfile() error = %v", err)
		}
		if ok {
			t.Error("HasProfile() = true after Discard, want false")
		}
	})

	t.Run("read-only batch rejects writes", func(t *testing.T) {
		s := newTestStore(t)
		b := begin(t, s, false)

		if err := b.PutProfile(&ledger.ReputationProfile{Owner: alice}); err == nil {
			t.Error("PutProfile() on read-only batch expected error, got nil")
		}
		if err := b.Commit(); err == nil {
			t.Error("Commit() on read-only batch expected error, got nil")
		}
	})
}

func TestSQLiteStore_CheckMigrations(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	if err := s.CheckMigrations(); err == nil {
		t.Error("CheckMigrations() on fresh database expected error, got nil")
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := s.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() after Migrate error = %v", err)
	}
}

func TestSQLiteStore_BackupTo(t *testing.T) {
	s := newTestStore(t)

	b := begin(t, s, true)
	if err := b.PutProfile(&ledger.ReputationProfile{Owner: alice, Active: true}); err != nil {
		t.Fatalf("PutProfile() error = %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := s.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	backup, err := NewSQLiteStore(dest)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer backup.Close()

	if err := backup.CheckMigrations(); err != nil {
		t.Errorf("backup CheckMigrations() error = %v", err)
	}
	r, err := backup.Begin(false)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer r.Discard()
	ok, err := r.HasProfile(alice)
	if err != nil || !ok {
		t.Errorf("backup HasProfile() = %v, %v; want true, nil", ok, err)
	}
}
