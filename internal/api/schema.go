package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SchemaCollaborator implements the schema fill / convert operations
// spec.md §1 names as out-of-scope collaborators: filling a partial
// document against a schema's defaults, and converting a document between
// wire encodings (Avro <-> JSON). Left as an interface the API delegates
// to, not part of the core.
type SchemaCollaborator interface {
	Fill(ctx context.Context, schemaID string, document map[string]any) (map[string]any, error)
	Convert(ctx context.Context, schemaID string, document map[string]any, targetEncoding string) ([]byte, error)
}

type schemaFillRequest struct {
	SchemaID string         `json:"schema_id" binding:"required"`
	Document map[string]any `json:"document" binding:"required"`
}

func (s *Server) schemaFill(c *gin.Context) {
	if s.SchemaCollaborator == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no schema collaborator configured for this deployment"})
		return
	}
	var req schemaFillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filled, err := s.SchemaCollaborator.Fill(c.Request.Context(), req.SchemaID, req.Document)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, filled)
}

type schemaConvertRequest struct {
	SchemaID       string         `json:"schema_id" binding:"required"`
	Document       map[string]any `json:"document" binding:"required"`
	TargetEncoding string         `json:"target_encoding" binding:"required"`
}

func (s *Server) schemaConvert(c *gin.Context) {
	if s.SchemaCollaborator == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no schema collaborator configured for this deployment"})
		return
	}
	var req schemaConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	converted, err := s.SchemaCollaborator.Convert(c.Request.Context(), req.SchemaID, req.Document, req.TargetEncoding)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", converted)
}
