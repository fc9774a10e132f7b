package model

type DocumentStatus string

const (
	DocumentStatusPending   DocumentStatus = "pending"
	DocumentStatusIngesting DocumentStatus = "ingesting"
	DocumentStatusReady     DocumentStatus = "ready"
	DocumentStatusFailed    DocumentStatus = "failed"
)

// Document is the ingestion subsystem's unit of study material. Status is
// mutated only by the ingestion pipeline; retrieval never writes it.
type Document struct {
	ID          string
	OwnerID     string
	Title       string
	Content     string
	Locator     string
	Status      DocumentStatus
	ErrorDetail string
	ChunkCount  int
	ModelName   string
	Ctime       int64
	Mtime       int64
}
