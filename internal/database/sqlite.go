package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"repute-go/internal/database/migrations"
	"repute-go/internal/database/sqlc"
	"repute-go/internal/ledger"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements ledger.Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	queries *sqlc.Queries
	path    string
}

// NewSQLiteStore creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteStore{
		db:      db,
		queries: sqlc.New(db),
		path:    path,
	}, nil
}

// NewSQLiteStoreFromDB wraps a connection from OpenConnection whose schema is
// already migrated. The store takes ownership of db and closes it on Close.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:      db,
		queries: sqlc.New(db),
		path:    "",
	}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would be a separate database, and
	// a ledger batch is a single transaction anyway.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Begin starts a database transaction. Read-only batches are still
// transactions, so they see one consistent snapshot.
func (s *SQLiteStore) Begin(writable bool) (ledger.Batch, error) {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return &sqliteBatch{
		ctx:      ctx,
		tx:       tx,
		q:        s.queries.WithTx(tx),
		writable: writable,
	}, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.Check(s.db)
}

// Migrate applies any pending schema migrations.
func (s *SQLiteStore) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteStore) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type sqliteBatch struct {
	ctx      context.Context
	tx       *sql.Tx
	q        *sqlc.Queries
	writable bool
}

func (b *sqliteBatch) checkWrite() error {
	if !b.writable {
		return fmt.Errorf("batch is read-only")
	}
	return nil
}

func (b *sqliteBatch) GetProfile(account ledger.AccountID) (*ledger.ReputationProfile, error) {
	row, err := b.q.GetProfile(b.ctx, account.Bytes())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding profile %s: %w", account, err)
	}
	return profileFromRow(row)
}

func (b *sqliteBatch) HasProfile(account ledger.AccountID) (bool, error) {
	n, err := b.q.ProfileExists(b.ctx, account.Bytes())
	if err != nil {
		return false, fmt.Errorf("checking profile %s: %w", account, err)
	}
	return n != 0, nil
}

func (b *sqliteBatch) PutProfile(p *ledger.ReputationProfile) error {
	if err := b.checkWrite(); err != nil {
		return err
	}
	err := b.q.UpsertProfile(b.ctx, sqlc.UpsertProfileParams{
		Account:         p.Owner.Bytes(),
		TotalScore:      int64(p.TotalScore),
		ReviewCount:     int64(p.ReviewCount),
		Communication:   int64(p.CategoryScores.Communication),
		Reliability:     int64(p.CategoryScores.Reliability),
		Quality:         int64(p.CategoryScores.Quality),
		Professionalism: int64(p.CategoryScores.Professionalism),
		Active:          p.Active,
		StakedAmount:    amountBytes(&p.StakedAmount),
	})
	if err != nil {
		return fmt.Errorf("storing profile %s: %w", p.Owner, err)
	}
	return nil
}

func (b *sqliteBatch) ForEachProfile(fn func(*ledger.ReputationProfile) error) error {
	rows, err := b.q.ListProfiles(b.ctx)
	if err != nil {
		return fmt.Errorf("listing profiles: %w", err)
	}
	for _, row := range rows {
		p, err := profileFromRow(row)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBatch) GetRating(target, rater ledger.AccountID) (*ledger.Rating, error) {
	row, err := b.q.GetRating(b.ctx, sqlc.GetRatingParams{
		Target: target.Bytes(),
		Rater:  rater.Bytes(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding rating: %w", err)
	}
	return ratingFromRow(row)
}

func (b *sqliteBatch) HasRating(target, rater ledger.AccountID) (bool, error) {
	n, err := b.q.RatingExists(b.ctx, sqlc.RatingExistsParams{
		Target: target.Bytes(),
		Rater:  rater.Bytes(),
	})
	if err != nil {
		return false, fmt.Errorf("checking rating: %w", err)
	}
	return n != 0, nil
}

func (b *sqliteBatch) PutRating(r *ledger.Rating) error {
	if err := b.checkWrite(); err != nil {
		return err
	}
	err := b.q.InsertRating(b.ctx, sqlc.InsertRatingParams{
		Target:          r.To.Bytes(),
		Rater:           r.From.Bytes(),
		Score:           int64(r.Score),
		Communication:   int64(r.CategoryRatings.Communication),
		Reliability:     int64(r.CategoryRatings.Reliability),
		Quality:         int64(r.CategoryRatings.Quality),
		Professionalism: int64(r.CategoryRatings.Professionalism),
		CreatedAt:       int64(r.Timestamp),
		ReviewHash:      r.ReviewHash[:],
	})
	if err != nil {
		return fmt.Errorf("inserting rating: %w", err)
	}
	return nil
}

func (b *sqliteBatch) ForEachRating(target ledger.AccountID, fn func(*ledger.Rating) error) error {
	rows, err := b.q.ListRatingsByTarget(b.ctx, target.Bytes())
	if err != nil {
		return fmt.Errorf("listing ratings for %s: %w", target, err)
	}
	for _, row := range rows {
		r, err := ratingFromRow(row)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBatch) RatingCount(account ledger.AccountID) (uint32, error) {
	n, err := b.q.GetRatingCount(b.ctx, account.Bytes())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("finding rating count for %s: %w", account, err)
	}
	return uint32(n), nil
}

func (b *sqliteBatch) PutRatingCount(account ledger.AccountID, count uint32) error {
	if err := b.checkWrite(); err != nil {
		return err
	}
	err := b.q.UpsertRatingCount(b.ctx, sqlc.UpsertRatingCountParams{
		Account:     account.Bytes(),
		RatingCount: int64(count),
	})
	if err != nil {
		return fmt.Errorf("storing rating count for %s: %w", account, err)
	}
	return nil
}

func (b *sqliteBatch) AppendEvent(rec *ledger.EventRecord) error {
	if err := b.checkWrite(); err != nil {
		return err
	}
	ev := &rec.Event
	seq, err := b.q.InsertEvent(b.ctx, sqlc.InsertEventParams{
		ID:          rec.ID,
		Kind:        ev.Kind.String(),
		Who:         ev.Who.Bytes(),
		FromAccount: ev.From.Bytes(),
		ToAccount:   ev.To.Bytes(),
		Score:       int64(ev.Score),
		Amount:      amountBytes(&ev.Amount),
		CreatedAt:   int64(rec.Timestamp),
	})
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	rec.Seq = uint64(seq)
	return nil
}

func (b *sqliteBatch) ListEvents(limit int) ([]*ledger.EventRecord, error) {
	// SQLite treats a negative LIMIT as no limit.
	n := int64(limit)
	if limit <= 0 {
		n = -1
	}
	rows, err := b.q.ListEvents(b.ctx, n)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	out := make([]*ledger.EventRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := eventFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (b *sqliteBatch) Commit() error {
	if err := b.checkWrite(); err != nil {
		return err
	}
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Discard rolls the transaction back; after Commit this is a no-op.
func (b *sqliteBatch) Discard() {
	_ = b.tx.Rollback()
}

func amountBytes(v *uint256.Int) []byte {
	buf := make([]byte, 32)
	v.WriteToSlice(buf)
	return buf
}

func accountFromColumn(name string, b []byte) (ledger.AccountID, error) {
	id, err := ledger.AccountIDFromBytes(b)
	if err != nil {
		return ledger.AccountID{}, fmt.Errorf("column %s: %w", name, err)
	}
	return id, nil
}

func profileFromRow(row sqlc.Profile) (*ledger.ReputationProfile, error) {
	owner, err := accountFromColumn("account", row.Account)
	if err != nil {
		return nil, err
	}
	if len(row.StakedAmount) != 32 {
		return nil, fmt.Errorf("profile %s: staked_amount has %d bytes", owner, len(row.StakedAmount))
	}
	p := &ledger.ReputationProfile{
		Owner:       owner,
		TotalScore:  uint64(row.TotalScore),
		ReviewCount: uint32(row.ReviewCount),
		CategoryScores: ledger.CategoryScores{
			Communication:   uint64(row.Communication),
			Reliability:     uint64(row.Reliability),
			Quality:         uint64(row.Quality),
			Professionalism: uint64(row.Professionalism),
		},
		Active: row.Active,
	}
	p.StakedAmount.SetBytes32(row.StakedAmount)
	return p, nil
}

func ratingFromRow(row sqlc.Rating) (*ledger.Rating, error) {
	to, err := accountFromColumn("target", row.Target)
	if err != nil {
		return nil, err
	}
	from, err := accountFromColumn("rater", row.Rater)
	if err != nil {
		return nil, err
	}
	if len(row.ReviewHash) != ledger.ReviewHashSize {
		return nil, fmt.Errorf("rating %s -> %s: review_hash has %d bytes", from, to, len(row.ReviewHash))
	}
	r := &ledger.Rating{
		From:  from,
		To:    to,
		Score: uint8(row.Score),
		CategoryRatings: ledger.CategoryScores{
			Communication:   uint64(row.Communication),
			Reliability:     uint64(row.Reliability),
			Quality:         uint64(row.Quality),
			Professionalism: uint64(row.Professionalism),
		},
		Timestamp: uint64(row.CreatedAt),
	}
	copy(r.ReviewHash[:], row.ReviewHash)
	return r, nil
}

func eventFromRow(row sqlc.Event) (*ledger.EventRecord, error) {
	kind, err := ledger.ParseEventKind(row.Kind)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", row.Seq, err)
	}
	rec := &ledger.EventRecord{
		Seq:       uint64(row.Seq),
		ID:        row.ID,
		Timestamp: uint64(row.CreatedAt),
		Event: ledger.Event{
			Kind:  kind,
			Score: uint8(row.Score),
		},
	}
	if rec.Event.Who, err = accountFromColumn("who", row.Who); err != nil {
		return nil, err
	}
	if rec.Event.From, err = accountFromColumn("from_account", row.FromAccount); err != nil {
		return nil, err
	}
	if rec.Event.To, err = accountFromColumn("to_account", row.ToAccount); err != nil {
		return nil, err
	}
	if len(row.Amount) != 32 {
		return nil, fmt.Errorf("event %d: amount has %d bytes", row.Seq, len(row.Amount))
	}
	rec.Event.Amount.SetBytes32(row.Amount)
	return rec, nil
}

// Compile-time check that SQLiteStore implements ledger.Store interface
var _ ledger.Store = (*SQLiteStore)(nil)
