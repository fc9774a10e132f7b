package model

import "encoding/json"

type JobState string

const (
	JobStateQueued       JobState = "queued"
	JobStateRunning      JobState = "running"
	JobStateSucceeded    JobState = "succeeded"
	JobStateFailed       JobState = "failed"
	JobStateDeadLettered JobState = "dead_lettered"
)

const JobKindIngestDocument = "ingest_document"

// Job is a durable unit of background work. Ownership transfers to the
// single consumer that claimed it and lasts until ack/nack or until the
// visibility timeout expires.
type Job struct {
	ID          string
	Kind        string
	Payload     json.RawMessage
	State       JobState
	Attempts    int
	MaxAttempts int
	VisibleAt   int64
	DedupeKey   string
	LastError   string
	Ctime       int64
	Mtime       int64
}

// IngestPayload is the payload for ingest_document jobs.
type IngestPayload struct {
	DocumentID string `json:"document_id"`
}
