package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"
)

// ProblemRepository is read-only; problems are authored elsewhere.
type ProblemRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Problem, error)
	ListTestCases(ctx context.Context, problemID int64) ([]model.TestCase, error)
	CountPublished(ctx context.Context) (int, error)
	// FindPublishedByOffset returns the n-th published problem ordered by id.
	FindPublishedByOffset(ctx context.Context, offset int) (*model.Problem, error)
}

type pgProblemRepository struct {
	db *sql.DB
}

func NewPgProblemRepository(db *sql.DB) ProblemRepository {
	return &pgProblemRepository{db: db}
}

const problemColumns = `id, title, slug, difficulty, time_limit_ms, memory_limit_kb, published, created_at`

func scanProblem(row rowScanner) (*model.Problem, error) {
	p := &model.Problem{}
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Difficulty, &p.TimeLimitMs, &p.MemoryLimitKb, &p.Published, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *pgProblemRepository) FindByID(ctx context.Context, id int64) (*model.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems WHERE id = $1`
	p, err := scanProblem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProblemRepository.FindByID: %w", err)
	}
	return p, nil
}

func (r *pgProblemRepository) ListTestCases(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	query := `SELECT problem_id, ordinal, input, expected, visibility, input_key, expected_key
	          FROM test_cases WHERE problem_id = $1 ORDER BY ordinal`
	rows, err := r.db.QueryContext(ctx, query, problemID)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.ListTestCases: %w", err)
	}
	defer rows.Close()

	var tests []model.TestCase
	for rows.Next() {
		var (
			tc          model.TestCase
			inputKey    sql.NullString
			expectedKey sql.NullString
		)
		if err := rows.Scan(&tc.ProblemID, &tc.Ordinal, &tc.Input, &tc.Expected, &tc.Visibility, &inputKey, &expectedKey); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.ListTestCases: scan: %w", err)
		}
		if inputKey.Valid {
			tc.InputKey = &inputKey.String
		}
		if expectedKey.Valid {
			tc.ExpectedKey = &expectedKey.String
		}
		tests = append(tests, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgProblemRepository.ListTestCases: %w", err)
	}
	return tests, nil
}

func (r *pgProblemRepository) CountPublished(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM problems WHERE published`).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgProblemRepository.CountPublished: %w", err)
	}
	return n, nil
}

func (r *pgProblemRepository) FindPublishedByOffset(ctx context.Context, offset int) (*model.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems WHERE published ORDER BY id LIMIT 1 OFFSET $1`
	p, err := scanProblem(r.db.QueryRowContext(ctx, query, offset))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProblemRepository.FindPublishedByOffset: %w", err)
	}
	return p, nil
}
