package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type ContestRepository interface {
	Create(ctx context.Context, tx *sql.Tx, c *model.Contest) error
	FindByID(ctx context.Context, id int64) (*model.Contest, error)

	// LockProblemState makes sure the state row exists and holds it FOR UPDATE
	// until tx ends.
	LockProblemState(ctx context.Context, tx *sql.Tx, contestID, userID, problemID int64) error
	SaveProblemState(ctx context.Context, tx *sql.Tx, st model.ProblemState) error
	ListProblemStates(ctx context.Context, contestID int64) ([]model.ProblemState, error)
	ListUserProblemStates(ctx context.Context, contestID, userID int64) ([]model.ProblemState, error)
}

type pgContestRepository struct {
	db *sql.DB
}

func NewPgContestRepository(db *sql.DB) ContestRepository {
	return &pgContestRepository{db: db}
}

func (r *pgContestRepository) Create(ctx context.Context, tx *sql.Tx, c *model.Contest) error {
	q := conn(r.db, tx)
	query := `INSERT INTO contests (name, slug, start_time, end_time)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id, created_at`
	err := q.QueryRowContext(ctx, query, c.Name, c.Slug, c.StartTime, c.EndTime).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("contest with this slug already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgContestRepository.Create: %w", err)
	}

	for i := range c.Problems {
		p := &c.Problems[i]
		p.ContestID = c.ID
		_, err := q.ExecContext(ctx,
			`INSERT INTO contest_problems (contest_id, problem_index, problem_id) VALUES ($1, $2, $3)`,
			c.ID, p.Index, p.ProblemID)
		if err != nil {
			return fmt.Errorf("pgContestRepository.Create: problem %d: %w", p.ProblemID, err)
		}
	}
	return nil
}

func (r *pgContestRepository) FindByID(ctx context.Context, id int64) (*model.Contest, error) {
	c := &model.Contest{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, start_time, end_time, created_at FROM contests WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.StartTime, &c.EndTime, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgContestRepository.FindByID: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT cp.contest_id, cp.problem_index, cp.problem_id, p.difficulty
		 FROM contest_problems cp
		 JOIN problems p ON p.id = cp.problem_id
		 WHERE cp.contest_id = $1
		 ORDER BY cp.problem_index`, id)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.FindByID: problems: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p model.ContestProblem
		if err := rows.Scan(&p.ContestID, &p.Index, &p.ProblemID, &p.Difficulty); err != nil {
			return nil, fmt.Errorf("pgContestRepository.FindByID: scan problem: %w", err)
		}
		c.Problems = append(c.Problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgContestRepository.FindByID: %w", err)
	}
	return c, nil
}

func (r *pgContestRepository) LockProblemState(ctx context.Context, tx *sql.Tx, contestID, userID, problemID int64) error {
	q := conn(r.db, tx)
	_, err := q.ExecContext(ctx,
		`INSERT INTO contest_problem_states (contest_id, user_id, problem_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (contest_id, user_id, problem_id) DO NOTHING`,
		contestID, userID, problemID)
	if err != nil {
		return fmt.Errorf("pgContestRepository.LockProblemState: upsert: %w", err)
	}

	var one int
	err = q.QueryRowContext(ctx,
		`SELECT 1 FROM contest_problem_states
		 WHERE contest_id = $1 AND user_id = $2 AND problem_id = $3
		 FOR UPDATE`,
		contestID, userID, problemID).Scan(&one)
	if err != nil {
		return fmt.Errorf("pgContestRepository.LockProblemState: lock: %w", err)
	}
	return nil
}

func (r *pgContestRepository) SaveProblemState(ctx context.Context, tx *sql.Tx, st model.ProblemState) error {
	_, err := conn(r.db, tx).ExecContext(ctx,
		`UPDATE contest_problem_states
		 SET solved = $4, wrong_attempts = $5, first_ac_offset_min = $6, last_submission_id = $7, updated_at = now()
		 WHERE contest_id = $1 AND user_id = $2 AND problem_id = $3`,
		st.ContestID, st.UserID, st.ProblemID, st.Solved, st.WrongAttempts, st.FirstACOffsetMin, st.LastSubmissionID)
	if err != nil {
		return fmt.Errorf("pgContestRepository.SaveProblemState: %w", err)
	}
	return nil
}

func (r *pgContestRepository) listStates(ctx context.Context, query string, args ...any) ([]model.ProblemState, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []model.ProblemState
	for rows.Next() {
		var (
			st     model.ProblemState
			offset sql.NullInt32
		)
		if err := rows.Scan(&st.ContestID, &st.UserID, &st.ProblemID, &st.Solved, &st.WrongAttempts, &offset, &st.LastSubmissionID); err != nil {
			return nil, err
		}
		if offset.Valid {
			n := int(offset.Int32)
			st.FirstACOffsetMin = &n
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func (r *pgContestRepository) ListProblemStates(ctx context.Context, contestID int64) ([]model.ProblemState, error) {
	states, err := r.listStates(ctx,
		`SELECT contest_id, user_id, problem_id, solved, wrong_attempts, first_ac_offset_min, last_submission_id
		 FROM contest_problem_states WHERE contest_id = $1
		 ORDER BY user_id, problem_id`, contestID)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.ListProblemStates: %w", err)
	}
	return states, nil
}

func (r *pgContestRepository) ListUserProblemStates(ctx context.Context, contestID, userID int64) ([]model.ProblemState, error) {
	states, err := r.listStates(ctx,
		`SELECT contest_id, user_id, problem_id, solved, wrong_attempts, first_ac_offset_min, last_submission_id
		 FROM contest_problem_states WHERE contest_id = $1 AND user_id = $2
		 ORDER BY problem_id`, contestID, userID)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.ListUserProblemStates: %w", err)
	}
	return states, nil
}
