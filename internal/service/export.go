package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/repository"
)

// ExportService dumps whitelisted tables as CSV.
type ExportService struct {
	pool    *pgxpool.Pool
	exports repository.ExportRepository
	logger  *slog.Logger
}

// NewExportService creates an ExportService.
func NewExportService(pool *pgxpool.Pool, exports repository.ExportRepository, logger *slog.Logger) *ExportService {
	return &ExportService{pool: pool, exports: exports, logger: logger}
}

// Export writes table to w from a read-only snapshot and returns the row count.
func (s *ExportService) Export(ctx context.Context, table string, w io.Writer) (int64, error) {
	t, err := domain.ParseExportTable(table)
	if err != nil {
		return 0, domain.ErrValidation(err.Error())
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return 0, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := s.exports.CopyCSV(ctx, tx.Conn().PgConn(), t, w)
	if err != nil {
		return 0, wrapInternal("export", err)
	}
	if err := commit(ctx, tx); err != nil {
		return 0, err
	}

	s.logger.Info("table exported", "table", t, "rows", n)
	return n, nil
}
