package handler

import (
	"errors"
	"net/http"

	"github.com/contextforge/contextforge/backend/go-services/internal/document/service"
	"github.com/contextforge/contextforge/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RegisterDocumentRoutes registers the read-only catalog endpoints.
func RegisterDocumentRoutes(r gin.IRouter, svc service.Service) {
	r.GET("/api/documents", func(c *gin.Context) {
		list, err := svc.List(c.Request.Context())
		if err != nil {
			logger.Errorf("catalog list failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.GET("/api/documents/:id", func(c *gin.Context) {
		d, err := svc.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if err != nil {
			logger.Errorf("catalog get %s failed: %v", c.Param("id"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load document"})
			return
		}
		c.JSON(http.StatusOK, d)
	})
}
