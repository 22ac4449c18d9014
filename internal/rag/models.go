package rag

import "time"

// UploadedDocument 上传文档记录。
// Content 保存提取后的正文；提取或索引失败时保存 "Error: ..." 字符串，
// 上传本身永远成功。
type UploadedDocument struct {
	ID string `json:"id" gorm:"primaryKey;type:uuid"`

	// 文件信息
	FileName    string `json:"fileName" gorm:"size:500;not null"`
	FilePath    string `json:"filePath" gorm:"type:text;not null"`
	FileExt     string `json:"fileExt" gorm:"size:20"`
	ContentType string `json:"contentType" gorm:"size:100"`
	FileSize    int64  `json:"fileSize"`

	// 提取后的正文
	Content string `json:"content" gorm:"type:text"`

	// 索引状态: pending, processing, indexed, failed
	Status       string `json:"status" gorm:"size:50;not null;default:pending"`
	ErrorMessage string `json:"errorMessage" gorm:"type:text"`
	ChunkCount   int    `json:"chunkCount" gorm:"default:0"`

	UploadedBy string `json:"uploadedBy" gorm:"size:100"`

	// 时间戳
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// ChunkMeta 分块元数据，与向量一一对应持久化。
type ChunkMeta struct {
	DocID      string `json:"doc_id"`
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
}

// IndexedRecord 向量库中一条持久化记录。
// 记录在 documents.json 中的位置即其身份：第 N 条记录对应索引中第 N 个向量。
type IndexedRecord struct {
	Text string    `json:"text"`
	Meta ChunkMeta `json:"meta"`
}

// AnswerResult 一次问答的结果。
type AnswerResult struct {
	Reply   string   `json:"reply"`
	Sources []string `json:"sources"`
}
