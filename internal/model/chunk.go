package model

// Chunk is a bounded span of document text used as the retrieval unit.
// Rows are immutable; re-ingestion replaces a document's chunks wholesale.
type Chunk struct {
	ID            string
	DocumentID    string
	OwnerID       string
	Ordinal       int
	Content       string
	TokenCount    int
	OverlapTokens int
	Ctime         int64
}
