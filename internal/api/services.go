package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResourceLister enumerates the resources (collections, topics, endpoints)
// a registered service exposes. Kind-specific (a Mongo service lists
// collections, a Kafka service lists topics); left as a thin delegate per
// spec.md §1's collaborator boundary rather than implemented in the core.
type ResourceLister interface {
	ListResources(ctx context.Context, serviceName string) ([]string, error)
}

func (s *Server) listServices(c *gin.Context) {
	names := s.registry.ServiceNames()
	out := make([]serviceDTO, 0, len(names))
	for _, name := range names {
		desc, err := s.registry.ServiceDefinition(name)
		if err != nil {
			continue
		}
		out = append(out, serviceDTO{Name: desc.Name, Kind: string(desc.Kind)})
	}
	c.JSON(http.StatusOK, out)
}

type serviceDTO struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (s *Server) getService(c *gin.Context) {
	desc, err := s.registry.ServiceDefinition(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, serviceDTO{Name: desc.Name, Kind: string(desc.Kind)})
}

func (s *Server) listResources(c *gin.Context) {
	if s.ResourceLister == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no resource lister configured for this deployment"})
		return
	}
	resources, err := s.ResourceLister.ListResources(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resources)
}
