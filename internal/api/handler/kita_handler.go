package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kitade/kita-jobs/internal/domain"
	"github.com/kitade/kita-jobs/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// KitaReader is the read side of the facility store.
type KitaReader interface {
	GetByID(ctx context.Context, id uint) (*domain.Kita, error)
	List(ctx context.Context, f repository.KitaFilter) ([]domain.Kita, int64, error)
}

// KitaHandler serves stored facilities.
type KitaHandler struct {
	repo KitaReader
}

// NewKitaHandler creates a new Kita handler.
func NewKitaHandler(repo KitaReader) *KitaHandler {
	return &KitaHandler{repo: repo}
}

// KitaListResponse is the paginated facility listing.
type KitaListResponse struct {
	Kitas []domain.Kita `json:"kitas"`
	Total int64         `json:"total"`
}

// ListKitas handles GET /api/kitas.
func (h *KitaHandler) ListKitas(c *gin.Context) {
	limit, offset := pagination(c)

	kitas, total, err := h.repo.List(c.Request.Context(), repository.KitaFilter{
		Keyword: c.Query("keyword"),
		City:    c.Query("city"),
		Bezirk:  c.Query("bezirk"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if kitas == nil {
		kitas = []domain.Kita{}
	}
	c.JSON(http.StatusOK, KitaListResponse{Kitas: kitas, Total: total})
}

// GetKita handles GET /api/kitas/:id.
func (h *KitaHandler) GetKita(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid kita id"})
		return
	}

	kita, err := h.repo.GetByID(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, kita)
}

// pagination reads limit and offset, clamping them to sane bounds.
func pagination(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
