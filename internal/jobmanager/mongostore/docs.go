package mongostore

import (
	"time"

	"github.com/mstreamio/mstream/internal/domain/core"
)

type storedJob struct {
	ConnectorName  string    `bson:"_id"`
	State          string    `bson:"state"`
	StartedAt      time.Time `bson:"started_at"`
	LastCheckpoint time.Time `bson:"last_checkpoint"`
	LastError      string    `bson:"last_error"`
	ResumeToken    string    `bson:"resume_token"`
}

func jobDoc(j core.Job) storedJob {
	return storedJob{
		ConnectorName:  j.ConnectorName,
		State:          string(j.State),
		StartedAt:      j.StartedAt,
		LastCheckpoint: j.LastCheckpoint,
		LastError:      j.LastError,
		ResumeToken:    j.ResumeToken,
	}
}

func (d storedJob) toCore() core.Job {
	return core.Job{
		ConnectorName:  d.ConnectorName,
		State:          core.JobState(d.State),
		StartedAt:      d.StartedAt,
		LastCheckpoint: d.LastCheckpoint,
		LastError:      d.LastError,
		ResumeToken:    d.ResumeToken,
	}
}

type storedCheckpoint struct {
	ConnectorName string    `bson:"connector_name"`
	ResumeToken   string    `bson:"resume_token"`
	Timestamp     time.Time `bson:"timestamp"`
}

func checkpointDoc(cp core.Checkpoint) storedCheckpoint {
	return storedCheckpoint{
		ConnectorName: cp.ConnectorName,
		ResumeToken:   cp.ResumeToken,
		Timestamp:     cp.Timestamp,
	}
}

func (d storedCheckpoint) toCore() core.Checkpoint {
	return core.Checkpoint{
		ConnectorName: d.ConnectorName,
		ResumeToken:   d.ResumeToken,
		Timestamp:     d.Timestamp,
	}
}
