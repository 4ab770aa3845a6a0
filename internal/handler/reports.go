package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendtrack/internal/report"
)

// BuildReport materializes an attendance report. Without a format the
// rows come back as structured data; with one they come back as a
// downloadable artifact. An empty row set is a valid report.
func (h *Handler) BuildReport(c *gin.Context) {
	format := report.Format(c.Query("format"))
	if !format.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format %q", c.Query("format"))})
		return
	}

	params := report.Params{
		Kind:      c.DefaultQuery("kind", "custom"),
		From:      c.Query("from"),
		To:        c.Query("to"),
		ClassName: c.Query("className"),
	}

	rows, err := h.reports.Rows(params)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	var artifact []byte
	switch format {
	case report.FormatJSON:
		h.metrics.ReportsBuilt.WithLabelValues("json").Inc()
		c.JSON(http.StatusOK, gin.H{"kind": params.Kind, "from": params.From, "to": params.To, "rows": rows})
		return
	case report.FormatCSV:
		artifact, err = h.reports.CSV(rows)
	case report.FormatXLSX:
		artifact, err = h.reports.XLSX(rows)
	case report.FormatPDF:
		artifact, err = h.reports.PDF(rows, params)
	}
	if err != nil {
		h.logger.Error("report encode failed", "format", format, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report encode failed"})
		return
	}

	h.metrics.ReportsBuilt.WithLabelValues(string(format)).Inc()
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", format.Filename(params.Kind)))
	c.Data(http.StatusOK, format.ContentType(), artifact)
}
