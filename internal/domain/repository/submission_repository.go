package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"
)

type SubmissionRepository interface {
	Create(ctx context.Context, tx *sql.Tx, sub *model.Submission) error
	FindByID(ctx context.Context, id int64) (*model.Submission, error)
	// SetVerdict writes the terminal result once. It reports false when the
	// submission already had a verdict and nothing was changed.
	SetVerdict(ctx context.Context, tx *sql.Tx, id int64, j model.Judgement, judgedAt time.Time) (bool, error)
	ListForContestUserProblem(ctx context.Context, tx *sql.Tx, contestID, userID, problemID int64) ([]model.Submission, error)
	CountPendingInContest(ctx context.Context, contestID int64) (int, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

const submissionColumns = `id, user_id, problem_id, contest_id, language, code, mode, created_at,
	verdict, runtime_ms, memory_kb, details, judged_at`

func (r *pgSubmissionRepository) Create(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	query := `INSERT INTO submissions (user_id, problem_id, contest_id, language, code, mode, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING id`
	err := conn(r.db, tx).QueryRowContext(ctx, query,
		sub.UserID, sub.ProblemID, sub.ContestID, sub.Language, sub.Code, sub.Mode, sub.CreatedAt,
	).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.Create: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	var (
		sub       model.Submission
		contestID sql.NullInt64
		verdict   sql.NullString
		runtimeMs sql.NullInt32
		memoryKb  sql.NullInt32
		details   []byte
		judgedAt  sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.ProblemID, &contestID, &sub.Language, &sub.Code, &sub.Mode,
		&sub.CreatedAt, &verdict, &runtimeMs, &memoryKb, &details, &judgedAt)
	if err != nil {
		return nil, err
	}
	if contestID.Valid {
		sub.ContestID = &contestID.Int64
	}
	if verdict.Valid {
		v := model.Verdict(verdict.String)
		sub.Verdict = &v
	}
	if runtimeMs.Valid {
		n := int(runtimeMs.Int32)
		sub.RuntimeMs = &n
	}
	if memoryKb.Valid {
		n := int(memoryKb.Int32)
		sub.MemoryKb = &n
	}
	if len(details) > 0 {
		var d model.JudgeDetails
		if err := json.Unmarshal(details, &d); err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
		sub.Details = &d
	}
	if judgedAt.Valid {
		sub.JudgedAt = &judgedAt.Time
	}
	return &sub, nil
}

func (r *pgSubmissionRepository) FindByID(ctx context.Context, id int64) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	sub, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.FindByID: %w", err)
	}
	return sub, nil
}

func (r *pgSubmissionRepository) SetVerdict(ctx context.Context, tx *sql.Tx, id int64, j model.Judgement, judgedAt time.Time) (bool, error) {
	details, err := json.Marshal(j.Details)
	if err != nil {
		return false, fmt.Errorf("pgSubmissionRepository.SetVerdict: marshal details: %w", err)
	}
	query := `UPDATE submissions
	          SET verdict = $1, runtime_ms = $2, memory_kb = $3, details = $4, judged_at = $5
	          WHERE id = $6 AND verdict IS NULL`
	res, err := conn(r.db, tx).ExecContext(ctx, query, j.Verdict, j.RuntimeMs, j.MemoryKb, details, judgedAt, id)
	if err != nil {
		return false, fmt.Errorf("pgSubmissionRepository.SetVerdict: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgSubmissionRepository.SetVerdict: %w", err)
	}
	return n == 1, nil
}

func (r *pgSubmissionRepository) ListForContestUserProblem(ctx context.Context, tx *sql.Tx, contestID, userID, problemID int64) ([]model.Submission, error) {
	query := `SELECT ` + submissionColumns + `
	          FROM submissions
	          WHERE contest_id = $1 AND user_id = $2 AND problem_id = $3 AND mode = 'submit'
	          ORDER BY id`
	rows, err := conn(r.db, tx).QueryContext(ctx, query, contestID, userID, problemID)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListForContestUserProblem: %w", err)
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.ListForContestUserProblem: scan: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListForContestUserProblem: %w", err)
	}
	return subs, nil
}

func (r *pgSubmissionRepository) CountPendingInContest(ctx context.Context, contestID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions WHERE contest_id = $1 AND verdict IS NULL`, contestID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pgSubmissionRepository.CountPendingInContest: %w", err)
	}
	return n, nil
}
