package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tle_zone_judge/internal/domain/model"
)

type RatingRepository interface {
	ListByContest(ctx context.Context, contestID int64) ([]model.RatingRecord, error)
	// LatestBefore returns the newest rating_after the user earned in a contest
	// that ended before the given instant. ok is false when there is none.
	LatestBefore(ctx context.Context, userID int64, before time.Time) (rating int, ok bool, err error)
	// InsertIfAbsent reports whether a new row was written.
	InsertIfAbsent(ctx context.Context, rec model.RatingRecord) (bool, error)
}

type pgRatingRepository struct {
	db *sql.DB
}

func NewPgRatingRepository(db *sql.DB) RatingRepository {
	return &pgRatingRepository{db: db}
}

func (r *pgRatingRepository) ListByContest(ctx context.Context, contestID int64) ([]model.RatingRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT contest_id, user_id, rating_before, rating_after, rating_change, created_at
		 FROM rating_records WHERE contest_id = $1
		 ORDER BY rating_change DESC, user_id`, contestID)
	if err != nil {
		return nil, fmt.Errorf("pgRatingRepository.ListByContest: %w", err)
	}
	defer rows.Close()

	recs := []model.RatingRecord{}
	for rows.Next() {
		var rec model.RatingRecord
		if err := rows.Scan(&rec.ContestID, &rec.UserID, &rec.RatingBefore, &rec.RatingAfter, &rec.RatingChange, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgRatingRepository.ListByContest: scan: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgRatingRepository.ListByContest: %w", err)
	}
	return recs, nil
}

func (r *pgRatingRepository) LatestBefore(ctx context.Context, userID int64, before time.Time) (int, bool, error) {
	var rating int
	err := r.db.QueryRowContext(ctx,
		`SELECT rr.rating_after
		 FROM rating_records rr
		 JOIN contests c ON c.id = rr.contest_id
		 WHERE rr.user_id = $1 AND c.end_time < $2
		 ORDER BY c.end_time DESC, c.id DESC
		 LIMIT 1`, userID, before).Scan(&rating)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("pgRatingRepository.LatestBefore: %w", err)
	}
	return rating, true, nil
}

func (r *pgRatingRepository) InsertIfAbsent(ctx context.Context, rec model.RatingRecord) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO rating_records (contest_id, user_id, rating_before, rating_after, rating_change)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (contest_id, user_id) DO NOTHING`,
		rec.ContestID, rec.UserID, rec.RatingBefore, rec.RatingAfter, rec.RatingChange)
	if err != nil {
		return false, fmt.Errorf("pgRatingRepository.InsertIfAbsent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgRatingRepository.InsertIfAbsent: %w", err)
	}
	return n == 1, nil
}
