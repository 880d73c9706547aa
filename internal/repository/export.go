package repository

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/masterbase/platform/internal/domain"
)

// exportQueries are the only statements the exporter will run. The credential
// column is never exported.
var exportQueries = map[domain.ExportTable]string{
	domain.ExportDemoSessions: `COPY (
		SELECT session_id, demo_name, active, start_time, end_time, fake_ip, map,
		       steam_api_data, ingested, demo_oid, created_at, updated_at
		FROM demo_sessions ORDER BY start_time
	) TO STDOUT WITH (FORMAT csv, HEADER true)`,
	domain.ExportReports: `COPY (
		SELECT ` + selectList(reportColumns) + ` FROM reports ORDER BY id
	) TO STDOUT WITH (FORMAT csv, HEADER true)`,
}

type exportRepo struct{}

// NewExportRepository returns a COPY-backed ExportRepository.
func NewExportRepository() ExportRepository {
	return &exportRepo{}
}

func (r *exportRepo) CopyCSV(ctx context.Context, conn *pgconn.PgConn, table domain.ExportTable, w io.Writer) (int64, error) {
	query, ok := exportQueries[table]
	if !ok {
		return 0, domain.ErrValidation(fmt.Sprintf("table %q is not exportable", table))
	}
	tag, err := conn.CopyTo(ctx, w, query)
	if err != nil {
		return 0, fmt.Errorf("copy %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}
