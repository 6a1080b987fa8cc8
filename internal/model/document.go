package model

const (
	DocumentStatusPending    = "pending"
	DocumentStatusExtracting = "extracting"
	DocumentStatusChunking   = "chunking"
	DocumentStatusEmbedding  = "embedding"
	DocumentStatusStoring    = "storing"
	DocumentStatusReady      = "ready"
	DocumentStatusFailed     = "failed"
)

// TerminalStatus reports whether a document status admits no further transitions
// short of an explicit re-ingest.
func TerminalStatus(status string) bool {
	return status == DocumentStatusReady || status == DocumentStatusFailed
}

type Document struct {
	ID         string `json:"id"`
	CompanyID  string `json:"company_id"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	FileKey    string `json:"file_key"`
	ByteSize   int64  `json:"byte_size"`
	CharLength int    `json:"char_length"`
	ChunkCount int    `json:"chunk_count"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
	Ctime      int64  `json:"ctime"`
	Mtime      int64  `json:"mtime"`
}
