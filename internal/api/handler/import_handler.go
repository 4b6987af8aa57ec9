package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kitade/kita-jobs/internal/domain"
	"github.com/kitade/kita-jobs/internal/service"
)

// ImportHandler exposes the admin import endpoints.
type ImportHandler struct {
	imports   *service.ImportService
	knowledge *service.KnowledgeService
	registry  *service.JobRegistry
}

// NewImportHandler creates a new import handler.
// Parameters:
//   - imports: Kita directory import service.
//   - knowledge: WordPress knowledge import service.
//   - registry: job registry shared by both services.
// Returns:
//   - *ImportHandler: initialized handler.
func NewImportHandler(imports *service.ImportService, knowledge *service.KnowledgeService, registry *service.JobRegistry) *ImportHandler {
	return &ImportHandler{
		imports:   imports,
		knowledge: knowledge,
		registry:  registry,
	}
}

// StartImportRequest is the body of POST /api/import/start.
type StartImportRequest struct {
	DryRun             bool            `json:"dryRun"`
	Bezirke            []domain.Bezirk `json:"bezirke"`
	KitaLimitPerBezirk int             `json:"kitaLimitPerBezirk"`
}

// SpecificKnowledgeRequest is the body of POST /api/import/knowledge/specific.
type SpecificKnowledgeRequest struct {
	PostIDs []int `json:"postIds"`
	DryRun  bool  `json:"dryRun"`
}

// JobResponse carries the id of a started job.
type JobResponse struct {
	JobID string `json:"jobId"`
}

// ListBezirke handles GET /api/import/bezirke?bundeslandUrl=.
func (h *ImportHandler) ListBezirke(c *gin.Context) {
	stateURL := c.Query("bundeslandUrl")
	if stateURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bundeslandUrl is required"})
		return
	}

	bezirke, err := h.imports.ListBezirke(c.Request.Context(), stateURL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bezirke)
}

// StartImport handles POST /api/import/start.
func (h *ImportHandler) StartImport(c *gin.Context) {
	var req StartImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, err := h.imports.StartImport(c.Request.Context(), req.Bezirke, req.KitaLimitPerBezirk, req.DryRun)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, JobResponse{JobID: jobID})
}

// Status handles GET /api/import/status/:jobId for both job kinds.
func (h *ImportHandler) Status(c *gin.Context) {
	snap, err := h.registry.Status(c.Param("jobId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Results handles GET /api/import/results/:jobId.
func (h *ImportHandler) Results(c *gin.Context) {
	jobID := c.Param("jobId")
	snap, err := h.registry.Status(jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	if snap.Kind == domain.JobKindKnowledge {
		posts, err := h.knowledge.Results(jobID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, posts)
		return
	}

	kitas, err := h.imports.Results(jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, kitas)
}

// ListJobs handles GET /api/import/jobs.
func (h *ImportHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.registry.List()})
}

// StartKnowledgeImport handles POST /api/import/knowledge.
func (h *ImportHandler) StartKnowledgeImport(c *gin.Context) {
	var req service.KnowledgeImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, err := h.knowledge.StartKnowledgeImport(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, JobResponse{JobID: jobID})
}

// PreviewKnowledge handles GET /api/import/knowledge/preview?limit=.
func (h *ImportHandler) PreviewKnowledge(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
		return
	}

	posts, err := h.knowledge.PreviewKnowledge(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

// SearchKnowledge handles GET /api/import/knowledge/search?term=.
func (h *ImportHandler) SearchKnowledge(c *gin.Context) {
	hits, err := h.knowledge.SearchKnowledge(c.Request.Context(), c.Query("term"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, hits)
}

// ImportSpecificKnowledge handles POST /api/import/knowledge/specific.
func (h *ImportHandler) ImportSpecificKnowledge(c *gin.Context) {
	var req SpecificKnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted, err := h.knowledge.ImportSpecificKnowledge(c.Request.Context(), req.PostIDs, req.DryRun)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, accepted)
}
