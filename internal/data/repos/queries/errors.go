package queries

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	pkgerrors "github.com/marr05/RAG-TO-AWS/internal/pkg/errors"
)

// isRetryable reports transient database failures worth another attempt.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "40001", "40P01", "55P03": // serialization/deadlock/lock_not_available
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "serialization") ||
		strings.Contains(msg, "database is locked")
}

// mapError tags storage failures with the persistence sentinel; not-found passes through.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return err
	}
	return pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("%s: %w", op, err))
}
