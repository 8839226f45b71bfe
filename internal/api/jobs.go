package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/svcerr"
)

// serviceRefDTO is the wire shape of a core.ServiceReference.
type serviceRefDTO struct {
	ServiceName    string `json:"service_name"`
	Resource       string `json:"resource"`
	SchemaID       string `json:"schema_id,omitempty"`
	OutputEncoding string `json:"output_encoding,omitempty"`
}

func (d serviceRefDTO) toCore() core.ServiceReference {
	return core.ServiceReference{
		ServiceName:    d.ServiceName,
		Resource:       d.Resource,
		SchemaID:       d.SchemaID,
		OutputEncoding: core.Encoding(d.OutputEncoding),
	}
}

// schemaRefDTO is the wire shape of a core.SchemaReference.
type schemaRefDTO struct {
	ID          string `json:"id"`
	ServiceName string `json:"service_name"`
	Resource    string `json:"resource"`
}

func (d schemaRefDTO) toCore() core.SchemaReference {
	return core.SchemaReference{ID: d.ID, ServiceName: d.ServiceName, Resource: d.Resource}
}

// createJobRequest is the connector declaration the management API accepts
// to create and start a new job, mirroring the TOML connector schema spec
// §6 names.
type createJobRequest struct {
	Name              string          `json:"name" binding:"required"`
	Source            serviceRefDTO   `json:"source" binding:"required"`
	Schemas           []schemaRefDTO  `json:"schemas"`
	Middlewares       []serviceRefDTO `json:"middlewares"`
	Sinks             []serviceRefDTO `json:"sinks" binding:"required"`
	BatchSize         int             `json:"batch_size"`
	IsBatchingEnabled bool            `json:"is_batching_enabled"`
	FailFast          bool            `json:"fail_fast"`
}

func (r createJobRequest) toConnector() core.Connector {
	schemas := make([]core.SchemaReference, len(r.Schemas))
	for i, s := range r.Schemas {
		schemas[i] = s.toCore()
	}
	middlewares := make([]core.ServiceReference, len(r.Middlewares))
	for i, m := range r.Middlewares {
		middlewares[i] = m.toCore()
	}
	sinks := make([]core.ServiceReference, len(r.Sinks))
	for i, sk := range r.Sinks {
		sinks[i] = sk.toCore()
	}
	return core.Connector{
		Name:              r.Name,
		Source:            r.Source.toCore(),
		Schemas:           schemas,
		Middlewares:       middlewares,
		Sinks:             sinks,
		BatchSize:         r.BatchSize,
		IsBatchingEnabled: r.IsBatchingEnabled,
		FailFast:          r.FailFast,
	}
}

// jobDTO is the wire shape of a core.Job.
type jobDTO struct {
	ConnectorName  string    `json:"connector_name"`
	State          string    `json:"state"`
	StartedAt      time.Time `json:"started_at"`
	LastCheckpoint time.Time `json:"last_checkpoint,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	ResumeToken    string    `json:"resume_token,omitempty"`
	Running        bool      `json:"running"`
}

func jobToDTO(j core.Job, running bool) jobDTO {
	return jobDTO{
		ConnectorName:  j.ConnectorName,
		State:          string(j.State),
		StartedAt:      j.StartedAt,
		LastCheckpoint: j.LastCheckpoint,
		LastError:      j.LastError,
		ResumeToken:    j.ResumeToken,
		Running:        running,
	}
}

// checkpointDTO is the wire shape of a core.Checkpoint.
type checkpointDTO struct {
	ConnectorName string    `json:"connector_name"`
	ResumeToken   string    `json:"resume_token"`
	Timestamp     time.Time `json:"timestamp"`
}

func checkpointToDTO(cp core.Checkpoint) checkpointDTO {
	return checkpointDTO{ConnectorName: cp.ConnectorName, ResumeToken: cp.ResumeToken, Timestamp: cp.Timestamp}
}

func (s *Server) listJobs(c *gin.Context) {
	jobs, err := s.manager.ListJobs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]jobDTO, len(jobs))
	for i, j := range jobs {
		out[i] = jobToDTO(j, s.manager.IsRunning(j.ConnectorName))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getJob(c *gin.Context) {
	name := c.Param("name")
	job, found, err := s.manager.GetJob(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, jobToDTO(job, s.manager.IsRunning(name)))
}

func (s *Server) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.manager.CreateAndStart(c.Request.Context(), req.toConnector()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"connector_name": req.Name})
}

func (s *Server) stopJob(c *gin.Context) {
	name := c.Param("name")
	if err := s.manager.Stop(c.Request.Context(), name); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) restartJob(c *gin.Context) {
	name := c.Param("name")
	if err := s.manager.RestartByName(c.Request.Context(), name); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listCheckpoints(c *gin.Context) {
	name := c.Param("name")
	cps, err := s.manager.ListCheckpoints(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]checkpointDTO, len(cps))
	for i, cp := range cps {
		out[i] = checkpointToDTO(cp)
	}
	c.JSON(http.StatusOK, out)
}

// writeError maps a svcerr.Error to an HTTP status via its Code, falling
// back to 500 for anything else.
func writeError(c *gin.Context, err error) {
	svcErr, ok := svcerr.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusInternalServerError
	switch svcErr.Code {
	case svcerr.CodeUnknownService, svcerr.CodeNameInUse:
		status = http.StatusConflict
	case svcerr.CodeConfigError, svcerr.CodeServiceKindMismatch, svcerr.CodeUnsupportedService:
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": svcErr.Error(), "step": svcErr.Step})
}
