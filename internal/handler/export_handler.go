package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"materialflow/internal/export"
	"materialflow/internal/middleware"
	"materialflow/internal/port"
)

const exportPageSize = 100

// ExportHandler streams stored results as CSV or XLSX.
type ExportHandler struct {
	results port.ResultRepository
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(results port.ResultRepository) *ExportHandler {
	return &ExportHandler{results: results}
}

// Export handles GET /api/v1/results/export
// @Summary Export results
// @Description Export results as CSV (default) or XLSX, one row per product
// @Tags results
// @Produce text/csv
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param format query string false "csv or xlsx" default(csv)
// @Param group_id query string false "Attachment group"
// @Param outcome query string false "Outcome"
// @Param sender query string false "Sender address"
// @Success 200 {file} file "Export file"
// @Failure 400 {object} ErrorResponseBody "Unsupported format"
// @Security BearerAuth
// @Router /results/export [get]
func (h *ExportHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", export.FormatCSV)
	w, err := export.NewWriter(format, c.Writer)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "format must be csv or xlsx")
		return
	}

	filter := resultFilter(c)
	name := filter.GroupID
	if name == "" {
		name = "results"
	}

	contentType := "text/csv; charset=utf-8"
	if format == export.FormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", `attachment; filename="`+export.BuildFilename(name, format, time.Now())+`"`)
	c.Status(http.StatusOK)

	if format != export.FormatXLSX {
		_, _ = c.Writer.Write(export.BOM)
	}

	logger := middleware.LoggerFrom(c)
	if err := w.WriteHeader(); err != nil {
		logger.Error("exportHandler.Export: writing header", zap.Error(err))
		return
	}
	for offset := 0; ; offset += exportPageSize {
		page, total, err := h.results.List(c.Request.Context(), filter, offset, exportPageSize)
		if err != nil {
			// Headers are already sent; the truncated file is the only signal left.
			logger.Error("exportHandler.Export: listing results", zap.Int("offset", offset), zap.Error(err))
			break
		}
		if err := w.WriteResults(page); err != nil {
			logger.Error("exportHandler.Export: writing rows", zap.Error(err))
			break
		}
		if len(page) < exportPageSize || offset+len(page) >= total {
			break
		}
	}
	if err := w.Close(); err != nil {
		logger.Error("exportHandler.Export: closing writer", zap.Error(err))
	}
}
