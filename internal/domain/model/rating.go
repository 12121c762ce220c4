package model

import "time"

const DefaultRating = 1500

type RatingRecord struct {
	ContestID    int64     `json:"contest_id"`
	UserID       int64     `json:"user_id"`
	RatingBefore int       `json:"rating_before"`
	RatingAfter  int       `json:"rating_after"`
	RatingChange int       `json:"rating_change"`
	CreatedAt    time.Time `json:"created_at"`
}
