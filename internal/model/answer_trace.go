package model

type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float32 `json:"score"`
}

// AnswerTrace is a write-once audit record of one retrieval round trip,
// kept for explainability and debugging.
type AnswerTrace struct {
	ID        string
	OwnerID   string
	Question  string
	Answer    string
	Citations []Citation
	Ctime     int64
}
