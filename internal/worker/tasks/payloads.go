package tasks

// Task Types
const (
	TypeProcessDocument = "rag:process_document"
	TypeRebuildIndex    = "rag:rebuild_index"
)

// ProcessDocumentPayload 文档摄取任务载荷
type ProcessDocumentPayload struct {
	DocumentID string `json:"document_id"`
}

// RebuildIndexPayload 全量重建任务载荷
// 重建对全部文档操作，无需参数，保留结构便于扩展。
type RebuildIndexPayload struct{}
