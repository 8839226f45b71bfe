package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// TransformCollaborator dry-runs one event through a connector's
// middleware chain without touching any sink, per spec.md §6's
// transform-run operation. Left as a delegate interface so the management
// API doesn't need to duplicate internal/pipeline's build machinery just
// to preview a chain.
type TransformCollaborator interface {
	DryRun(ctx context.Context, connectorName string, document map[string]any) (TransformResult, error)
}

// TransformResult is what survived (or didn't) a dry-run through a
// connector's middleware chain.
type TransformResult struct {
	Outcome  string           `json:"outcome"` // "kept", "dropped", "split"
	Events   []map[string]any `json:"events,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

type transformRunRequest struct {
	ConnectorName string         `json:"connector_name" binding:"required"`
	Document      map[string]any `json:"document" binding:"required"`
}

func (s *Server) transformRun(c *gin.Context) {
	if s.TransformCollaborator == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no transform collaborator configured for this deployment"})
		return
	}
	var req transformRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.TransformCollaborator.DryRun(c.Request.Context(), req.ConnectorName, req.Document)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
