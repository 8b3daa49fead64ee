package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"laundry-session-backend/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GetSummary handles GET /api/supervisor/summary.
func (h *Handler) GetSummary(c *gin.Context) {
	rows, err := h.svc.Summary(c.Request.Context(), c.GetHeader(SupervisorHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"machines": rows})
}

// GetSummaryXLSX handles GET /api/supervisor/summary.xlsx.
func (h *Handler) GetSummaryXLSX(c *gin.Context) {
	rows, err := h.svc.Summary(c.Request.Context(), c.GetHeader(SupervisorHeader))
	if err != nil {
		respondError(c, err)
		return
	}

	buf := &bytes.Buffer{}
	if err := report.WriteXLSX(buf, rows); err != nil {
		respondError(c, err)
		return
	}

	fileName := fmt.Sprintf("laundry_summary_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
