// Package core holds the data model shared by every mstream component: the
// connector declaration, the events that flow through a pipeline, and the
// job/checkpoint records the job manager persists.
package core

import "time"

// Encoding names the wire format a SourceEvent or SinkEvent carries.
type Encoding string

const (
	EncodingAvro Encoding = "avro"
	EncodingJSON Encoding = "json"
	EncodingRaw  Encoding = "raw"
)

// ServiceKind identifies the kind of client a ServiceDescriptor builds.
type ServiceKind string

const (
	ServiceKindMongoDB  ServiceKind = "mongodb"
	ServiceKindPubSub   ServiceKind = "pubsub"
	ServiceKindKafka    ServiceKind = "kafka"
	ServiceKindHTTP     ServiceKind = "http"
	ServiceKindUDF      ServiceKind = "udf"
	ServiceKindPostgres ServiceKind = "postgres"
)

// ServiceReference points at a registered service and, optionally, a schema
// and output encoding within the connector that declared it.
type ServiceReference struct {
	ServiceName     string
	Resource        string
	SchemaID        string
	OutputEncoding  Encoding
}

// SchemaReference names a schema a connector resolves before anything else.
type SchemaReference struct {
	ID          string
	ServiceName string
	Resource    string
}

// Connector is the declarative description of one source-to-sinks flow.
type Connector struct {
	Name              string
	Source            ServiceReference
	Schemas           []SchemaReference
	Middlewares       []ServiceReference
	Sinks             []ServiceReference
	BatchSize         int
	IsBatchingEnabled bool
	FailFast          bool
}

// EffectiveBatchSize returns the channel capacity the pipeline should use:
// the declared batch size, defaulting to 64, or 1 when batching is disabled.
func (c Connector) EffectiveBatchSize() int {
	if !c.IsBatchingEnabled {
		return 1
	}
	if c.BatchSize <= 0 {
		return 64
	}
	return c.BatchSize
}

// SourceEvent is one change-stream record, still carrying its native
// document and resume position.
type SourceEvent struct {
	Document      map[string]any
	RawBytes      []byte
	Attributes    map[string]string
	Encoding      Encoding
	IsFramedBatch bool
	ResumeToken   string
}

// SinkEvent is what the event handler hands to a sink after middleware and
// encoding: a SourceEvent with the document dropped and the resume token
// stripped (sinks never see it).
type SinkEvent struct {
	RawBytes      []byte
	Attributes    map[string]string
	Encoding      Encoding
	IsFramedBatch bool
}

// FromSourceEvent builds the SinkEvent a publisher receives from a processed
// SourceEvent, discarding fields sinks must never observe.
func FromSourceEvent(se SourceEvent) SinkEvent {
	return SinkEvent{
		RawBytes:      se.RawBytes,
		Attributes:    se.Attributes,
		Encoding:      se.Encoding,
		IsFramedBatch: se.IsFramedBatch,
	}
}

// JobState is the lifecycle state of a running or recorded connector
// execution. Modeled after the teacher's domain/automation.JobStatus.
type JobState string

const (
	JobCreated  JobState = "created"
	JobRunning  JobState = "running"
	JobStopping JobState = "stopping"
	JobStopped  JobState = "stopped"
	JobFailed   JobState = "failed"
)

// Job is a running or recorded execution of a connector.
type Job struct {
	ConnectorName  string
	State          JobState
	StartedAt      time.Time
	LastCheckpoint time.Time
	LastError      string
	ResumeToken    string
}

// Checkpoint is a durable record of the latest fully-published resume token
// for a connector.
type Checkpoint struct {
	ConnectorName string
	ResumeToken   string
	Timestamp     time.Time
}

// StartupState controls how the job manager reconciles persisted jobs
// against the connectors named in the config file at process start.
type StartupState string

const (
	// StartupSeedFromFile starts a config-declared connector only if no
	// persisted job with that name already exists.
	StartupSeedFromFile StartupState = "seed_from_file"
	// StartupForceFromFile stops/replaces any persisted job and starts
	// fresh from the config file.
	StartupForceFromFile StartupState = "force_from_file"
	// StartupKeep restarts persisted jobs whose stored state is running or
	// created, using the config file's declaration of the same name.
	// Persisted jobs with no declaration in the config file are not
	// restarted, config connectors with no persisted job are not started,
	// and restarted jobs open their source without a resume token.
	StartupKeep StartupState = "keep"
)
