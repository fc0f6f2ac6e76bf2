// Statements mirror query.sql; keep the two in step when editing.

package sqlc

import (
	"context"
)

const getProfile = `-- name: GetProfile :one
SELECT account, total_score, review_count, communication, reliability, quality, professionalism, active, staked_amount
FROM profiles
WHERE account = ?
`

func (q *Queries) GetProfile(ctx context.Context, account []byte) (Profile, error) {
	row := q.db.QueryRowContext(ctx, getProfile, account)
	var i Profile
	err := row.Scan(
		&i.Account,
		&i.TotalScore,
		&i.ReviewCount,
		&i.Communication,
		&i.Reliability,
		&i.Quality,
		&i.Professionalism,
		&i.Active,
		&i.StakedAmount,
	)
	return i, err
}

const getRating = `-- name: GetRating :one
SELECT target, rater, score, communication, reliability, quality, professionalism, created_at, review_hash
FROM ratings
WHERE target = ? AND rater = ?
`

type GetRatingParams struct {
	Target []byte
	Rater  []byte
}

func (q *Queries) GetRating(ctx context.Context, arg GetRatingParams) (Rating, error) {
	row := q.db.QueryRowContext(ctx, getRating, arg.Target, arg.Rater)
	var i Rating
	err := row.Scan(
		&i.Target,
		&i.Rater,
		&i.Score,
		&i.Communication,
		&i.Reliability,
		&i.Quality,
		&i.Professionalism,
		&i.CreatedAt,
		&i.ReviewHash,
	)
	return i, err
}

const getRatingCount = `-- name: GetRatingCount :one
SELECT rating_count FROM rating_counts WHERE account = ?
`

func (q *Queries) GetRatingCount(ctx context.Context, account []byte) (int64, error) {
	row := q.db.QueryRowContext(ctx, getRatingCount, account)
	var rating_count int64
	err := row.Scan(&rating_count)
	return rating_count, err
}

const insertEvent = `-- name: InsertEvent :one
INSERT INTO events (id, kind, who, from_account, to_account, score, amount, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING seq
`

type InsertEventParams struct {
	ID          string
	Kind        string
	Who         []byte
	FromAccount []byte
	ToAccount   []byte
	Score       int64
	Amount      []byte
	CreatedAt   int64
}

func (q *Queries) InsertEvent(ctx context.Context, arg InsertEventParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, insertEvent,
		arg.ID,
		arg.Kind,
		arg.Who,
		arg.FromAccount,
		arg.ToAccount,
		arg.Score,
		arg.Amount,
		arg.CreatedAt,
	)
	var seq int64
	err := row.Scan(&seq)
	return seq, err
}

const insertRating = `-- name: InsertRating :exec
INSERT INTO ratings (target, rater, score, communication, reliability, quality, professionalism, created_at, review_hash)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertRatingParams struct {
	Target          []byte
	Rater           []byte
	Score           int64
	Communication   int64
	Reliability     int64
	Quality         int64
	Professionalism int64
	CreatedAt       int64
	ReviewHash      []byte
}

func (q *Queries) InsertRating(ctx context.Context, arg InsertRatingParams) error {
	_, err := q.db.ExecContext(ctx, insertRating,
		arg.Target,
		arg.Rater,
		arg.Score,
		arg.Communication,
		arg.Reliability,
		arg.Quality,
		arg.Professionalism,
		arg.CreatedAt,
		arg.ReviewHash,
	)
	return err
}

const listEvents = `-- name: ListEvents :many
SELECT seq, id, kind, who, from_account, to_account, score, amount, created_at
FROM events
ORDER BY seq DESC
LIMIT ?
`

func (q *Queries) ListEvents(ctx context.Context, limit int64) ([]Event, error) {
	rows, err := q.db.QueryContext(ctx, listEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Event
	for rows.Next() {
		var i Event
		if err := rows.Scan(
			&i.Seq,
			&i.ID,
			&i.Kind,
			&i.Who,
			&i.FromAccount,
			&i.ToAccount,
			&i.Score,
			&i.Amount,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listProfiles = `-- name: ListProfiles :many
SELECT account, total_score, review_count, communication, reliability, quality, professionalism, active, staked_amount
FROM profiles
ORDER BY account
`

func (q *Queries) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := q.db.QueryContext(ctx, listProfiles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Profile
	for rows.Next() {
		var i Profile
		if err := rows.Scan(
			&i.Account,
			&i.TotalScore,
			&i.ReviewCount,
			&i.Communication,
			&i.Reliability,
			&i.Quality,
			&i.Professionalism,
			&i.Active,
			&i.StakedAmount,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listRatingsByTarget = `-- name: ListRatingsByTarget :many
SELECT target, rater, score, communication, reliability, quality, professionalism, created_at, review_hash
FROM ratings
WHERE target = ?
ORDER BY rater
`

func (q *Queries) ListRatingsByTarget(ctx context.Context, target []byte) ([]Rating, error) {
	rows, err := q.db.QueryContext(ctx, listRatingsByTarget, target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Rating
	for rows.Next() {
		var i Rating
		if err := rows.Scan(
			&i.Target,
			&i.Rater,
			&i.Score,
			&i.Communication,
			&i.Reliability,
			&i.Quality,
			&i.Professionalism,
			&i.CreatedAt,
			&i.ReviewHash,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const profileExists = `-- name: ProfileExists :one
SELECT EXISTS(SELECT 1 FROM profiles WHERE account = ?)
`

func (q *Queries) ProfileExists(ctx context.Context, account []byte) (int64, error) {
	row := q.db.QueryRowContext(ctx, profileExists, account)
	var column_1 int64
	err := row.Scan(&column_1)
	return column_1, err
}

const ratingExists = `-- name: RatingExists :one
SELECT EXISTS(SELECT 1 FROM ratings WHERE target = ? AND rater = ?)
`

type RatingExistsParams struct {
	Target []byte
	Rater  []byte
}

func (q *Queries) RatingExists(ctx context.Context, arg RatingExistsParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, ratingExists, arg.Target, arg.Rater)
	var column_1 int64
	err := row.Scan(&column_1)
	return column_1, err
}

const upsertProfile = `-- name: UpsertProfile :exec
INSERT INTO profiles (account, total_score, review_count, communication, reliability, quality, professionalism, active, staked_amount)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (account) DO UPDATE SET
    total_score     = excluded.total_score,
    review_count    = excluded.review_count,
    communication   = excluded.communication,
    reliability     = excluded.reliability,
    quality         = excluded.quality,
    professionalism = excluded.professionalism,
    active          = excluded.active,
    staked_amount   = excluded.staked_amount
`

type UpsertProfileParams struct {
	Account         []byte
	TotalScore      int64
	ReviewCount     int64
	Communication   int64
	Reliability     int64
	Quality         int64
	Professionalism int64
	Active          bool
	StakedAmount    []byte
}

func (q *Queries) UpsertProfile(ctx context.Context, arg UpsertProfileParams) error {
	_, err := q.db.ExecContext(ctx, upsertProfile,
		arg.Account,
		arg.TotalScore,
		arg.ReviewCount,
		arg.Communication,
		arg.Reliability,
		arg.Quality,
		arg.Professionalism,
		arg.Active,
		arg.StakedAmount,
	)
	return err
}

const upsertRatingCount = `-- name: UpsertRatingCount :exec
INSERT INTO rating_counts (account, rating_count)
VALUES (?, ?)
ON CONFLICT (account) DO UPDATE SET rating_count = excluded.rating_count
`

type UpsertRatingCountParams struct {
	Account     []byte
	RatingCount int64
}

func (q *Queries) UpsertRatingCount(ctx context.Context, arg UpsertRatingCountParams) error {
	_, err := q.db.ExecContext(ctx, upsertRatingCount, arg.Account, arg.RatingCount)
	return err
}
