package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/masterbase/platform/internal/domain"
)

// wrapInternal passes AppErrors through and wraps anything else as internal.
func wrapInternal(msg string, err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return domain.ErrInternal(msg, err)
}

// commit ends tx. A failed commit is internal whatever the transaction wrote.
func commit(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		return domain.ErrInternal("commit", err)
	}
	return nil
}
