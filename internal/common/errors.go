package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden access")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict")
	ErrInternalServer     = errors.New("internal server error")
	ErrValidation         = errors.New("validation failed")
	ErrServiceUnavailable = errors.New("service unavailable") // e.g. sandbox host down
	ErrJobLockFailed      = errors.New("failed to acquire job lock")
	ErrTooManyRequests    = errors.New("too many submissions in flight")

	ErrUnsupportedLanguage = fmt.Errorf("unsupported language: %w", ErrValidation)
	ErrCodeTooLarge        = fmt.Errorf("source code exceeds size limit: %w", ErrValidation)
	ErrContestNotActive    = fmt.Errorf("Contest not active: %w", ErrForbidden)
	ErrContestRunning      = fmt.Errorf("contest has not finished yet: %w", ErrConflict)
	ErrContestStillJudging = fmt.Errorf("contest submissions are still being judged: %w", ErrConflict)
	ErrJobAlreadyStarted   = fmt.Errorf("job already started: %w", ErrConflict)
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrConflict) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrTooManyRequests) {
		return http.StatusTooManyRequests
	}
	if errors.Is(err, ErrServiceUnavailable) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, ErrJobLockFailed) {
		return http.StatusConflict
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // Unique violation
			return http.StatusConflict
		}
	}

	return http.StatusInternalServerError
}

// PublicMessage returns the text shown to API clients. Policy errors keep their
// own wording, anything unexpected collapses to a generic message.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrContestNotActive):
		return "Contest not active"
	case HTTPStatusFromError(err) == http.StatusInternalServerError:
		return ErrInternalServer.Error()
	default:
		return err.Error()
	}
}
