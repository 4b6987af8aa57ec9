package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kitade/kita-jobs/internal/domain"
)

// KnowledgeReader is the read side of the knowledge store.
type KnowledgeReader interface {
	GetBySlug(ctx context.Context, slug string) (*domain.KnowledgePost, error)
	ListPaginated(ctx context.Context, category string, limit, offset int) ([]domain.KnowledgePost, int64, error)
}

// KnowledgeHandler serves stored knowledge posts.
type KnowledgeHandler struct {
	repo KnowledgeReader
}

// NewKnowledgeHandler creates a new knowledge handler.
func NewKnowledgeHandler(repo KnowledgeReader) *KnowledgeHandler {
	return &KnowledgeHandler{repo: repo}
}

// KnowledgeListResponse is the paginated post listing.
type KnowledgeListResponse struct {
	Posts []domain.KnowledgePost `json:"posts"`
	Total int64                  `json:"total"`
}

// ListPosts handles GET /api/knowledge.
func (h *KnowledgeHandler) ListPosts(c *gin.Context) {
	limit, offset := pagination(c)

	posts, total, err := h.repo.ListPaginated(c.Request.Context(), c.Query("category"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	if posts == nil {
		posts = []domain.KnowledgePost{}
	}
	c.JSON(http.StatusOK, KnowledgeListResponse{Posts: posts, Total: total})
}

// GetPost handles GET /api/knowledge/:slug.
func (h *KnowledgeHandler) GetPost(c *gin.Context) {
	post, err := h.repo.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}
