package model

// Chunk is the unit of embedding and retrieval. Chunks are immutable once
// written; re-processing a document replaces its chunk set wholesale.
type Chunk struct {
	ID           string            `json:"id"`
	DocumentID   string            `json:"document_id"`
	CompanyID    string            `json:"company_id"`
	Ordinal      int               `json:"ordinal"`
	Text         string            `json:"text"`
	StartOffset  int               `json:"start_offset"`
	EndOffset    int               `json:"end_offset"`
	Embedding    []float32         `json:"embedding,omitempty"`
	ModelVersion string            `json:"model_version"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}
