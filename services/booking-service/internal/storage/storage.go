package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
)

// DB is the subset of *pgxpool.Pool the repositories use. pgxmock satisfies
// it in tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	codeExclusionViolation = "23P01"
	codeUniqueViolation    = "23505"
	codeCheckViolation     = "23514"
)

// IsConflict reports an exclusion-constraint violation, i.e. an overlapping
// non-cancelled appointment on the same occupancy key.
func IsConflict(err error) bool {
	return hasCode(err, codeExclusionViolation)
}

func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

func IsCheckViolation(err error) bool {
	return hasCode(err, codeCheckViolation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperr.ErrNotFound)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// notFound maps pgx.ErrNoRows onto the domain sentinel.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return err
}
