package handlers

import (
	"net/http"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/service"
	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reports *service.ReportService
}

func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// GetReport returns one decision report for a store.
func (h *ReportHandler) GetReport(c *gin.Context) {
	storeID, ok := parseStoreID(c)
	if !ok {
		return
	}
	kind, ok := domain.ParseReportKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unknown report",
			"details": "expected one of buy_more, buy_less, dead_stock, buffer_breach",
		})
		return
	}

	rows, err := h.reports.Report(c.Request.Context(), storeID, kind)
	if err != nil {
		respondError(c, "failed to build report", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "data": rows, "total": len(rows)})
}

// GetSummary returns the inventory valuation summary.
func (h *ReportHandler) GetSummary(c *gin.Context) {
	storeID, ok := parseStoreID(c)
	if !ok {
		return
	}

	summary, err := h.reports.Summary(c.Request.Context(), storeID)
	if err != nil {
		respondError(c, "failed to build summary", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Export uploads every report as an xlsx workbook.
func (h *ReportHandler) Export(c *gin.Context) {
	storeID, ok := parseStoreID(c)
	if !ok {
		return
	}

	result, err := h.reports.ExportWorkbook(c.Request.Context(), storeID)
	if err != nil {
		respondError(c, "failed to export reports", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
