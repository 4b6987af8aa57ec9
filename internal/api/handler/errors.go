package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kitade/kita-jobs/internal/api/middleware"
	"github.com/kitade/kita-jobs/internal/repository"
	"github.com/kitade/kita-jobs/internal/service"
	"github.com/kitade/kita-jobs/internal/source"
)

// respondError maps service and source errors onto HTTP responses.
func respondError(c *gin.Context, err error) {
	var fetchErr *source.FetchError
	var parseErr *source.ParseError

	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrJobNotFound), errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrResultsUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &fetchErr):
		middleware.GetLogger(c).WithError(err).Warn("Upstream fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      err.Error(),
			"statusCode": fetchErr.StatusCode,
			"body":       fetchErr.Body,
		})
	case errors.As(err, &parseErr):
		middleware.GetLogger(c).WithError(err).Warn("Upstream page could not be parsed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		middleware.GetLogger(c).WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
	_ = c.Error(err)
}
