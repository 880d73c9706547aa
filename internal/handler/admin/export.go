package admin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/handler"
)

// Exporter dumps a whitelisted table as CSV.
type Exporter interface {
	Export(ctx context.Context, table string, w io.Writer) (int64, error)
}

// ExportHandler handles the admin CSV export.
type ExportHandler struct {
	exports Exporter
	logger  *slog.Logger
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(exports Exporter, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{exports: exports, logger: logger}
}

// Export handles GET /admin/export/{table}.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	table, err := domain.ParseExportTable(chi.URLParam(r, "table"))
	if err != nil {
		handler.RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	// Headers are only committed on the first write, so a failure before any
	// row is copied still gets a JSON error.
	cw := &csvWriter{w: w, filename: string(table) + ".csv"}
	rows, err := h.exports.Export(r.Context(), string(table), cw)
	if err != nil {
		if !cw.started {
			handler.RespondError(w, err)
			return
		}
		h.logger.Error("export interrupted", "table", table, "error", err)
		return
	}
	if !cw.started {
		cw.writeHeader()
	}
	h.logger.Info("table exported", "table", table, "rows", rows)
}

type csvWriter struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (c *csvWriter) writeHeader() {
	c.started = true
	c.w.Header().Set("Content-Type", "text/csv")
	c.w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, c.filename))
	c.w.WriteHeader(http.StatusOK)
}

func (c *csvWriter) Write(p []byte) (int, error) {
	if !c.started {
		c.writeHeader()
	}
	return c.w.Write(p)
}
