package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kitade/kita-jobs/internal/domain"
)

// RunReader lists persisted import run summaries.
type RunReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ImportRun, error)
}

// RunHandler serves the history of finished imports.
type RunHandler struct {
	runs RunReader
}

// NewRunHandler creates a new run handler.
func NewRunHandler(runs RunReader) *RunHandler {
	return &RunHandler{runs: runs}
}

// ListRuns handles GET /api/import/runs.
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if runs == nil {
		runs = []domain.ImportRun{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
