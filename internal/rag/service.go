package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ragchat/internal/metrics"
	"ragchat/internal/rag/parsers"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultTopK 默认检索条数
const DefaultTopK = 3

// DefaultMaxAnswerTokens 回答生成长度上限
const DefaultMaxAnswerTokens = 200

// NoContextReply 没有命中任何上下文时的固定回复，属于成功响应而非错误。
const NoContextReply = "I couldn't find relevant company information to answer that yet."

// defaultPersona 提示词中的助手角色设定
const defaultPersona = "You are an assistant that answers questions about the company. " +
	"Use the provided context to answer briefly, accurately, and professionally."

// AnswerGenerator 回答生成能力
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error)
}

// IngestQueue 文档处理任务队列
// nil 时服务退化为上传请求内同步处理（单机部署）。
type IngestQueue interface {
	EnqueueProcessDocument(documentID string) error
}

// RAGService 检索增强问答服务
// 编排 提取→分块→嵌入→索引 的摄取链路和 检索→组装→生成 的问答链路。
type RAGService struct {
	db             *gorm.DB
	store          *FlatStore
	chunker        *Chunker
	parserRegistry *parsers.ParserRegistry
	generator      AnswerGenerator
	queueClient    IngestQueue
	logger         *zap.Logger
	persona        string
}

// NewRAGService 创建RAG服务实例
func NewRAGService(
	db *gorm.DB,
	store *FlatStore,
	chunker *Chunker,
	generator AnswerGenerator,
	queueClient IngestQueue,
	logger *zap.Logger,
) *RAGService {
	return &RAGService{
		db:             db,
		store:          store,
		chunker:        chunker,
		parserRegistry: parsers.NewParserRegistry(),
		generator:      generator,
		queueClient:    queueClient,
		logger:         logger,
		persona:        defaultPersona,
	}
}

// WithPersona 覆盖提示词中的角色设定
func (s *RAGService) WithPersona(persona string) *RAGService {
	if persona != "" {
		s.persona = persona
	}
	return s
}

// UploadDocumentRequest 上传文档请求
// 文件本体已由上传方落盘，这里只接收路径与描述信息。
type UploadDocumentRequest struct {
	FileName    string
	FilePath    string
	FileSize    int64
	ContentType string
	UploadedBy  string
}

// UploadDocumentResponse 上传文档响应
type UploadDocumentResponse struct {
	DocumentID string
	FileName   string
	Status     string
}

// UploadDocument 登记上传文档并触发索引
// 摄取是尽力而为：入队或同步处理的失败都不会让上传失败，
// 错误会被记录在文档记录上。
func (s *RAGService) UploadDocument(ctx context.Context, req *UploadDocumentRequest) (*UploadDocumentResponse, error) {
	doc := &UploadedDocument{
		ID:          uuid.New().String(),
		FileName:    req.FileName,
		FilePath:    req.FilePath,
		FileExt:     strings.ToLower(filepath.Ext(req.FileName)),
		ContentType: req.ContentType,
		FileSize:    req.FileSize,
		Status:      "pending",
		UploadedBy:  req.UploadedBy,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}

	status := "processing"
	if s.queueClient != nil {
		if err := s.queueClient.EnqueueProcessDocument(doc.ID); err != nil {
			s.logger.Error("文档处理任务入队失败", zap.String("document_id", doc.ID), zap.Error(err))
			_ = s.recordIngestFailure(ctx, doc.ID, err)
			status = "failed"
		}
	} else {
		// 无队列时在请求内同步处理，错误同样只记录不上抛
		if err := s.IngestDocument(ctx, doc.ID); err != nil {
			status = "failed"
		} else {
			status = "indexed"
		}
	}

	return &UploadDocumentResponse{
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		Status:     status,
	}, nil
}

// IngestDocument 处理单个文档：提取→落库→分块→追加索引。
// 任何一步失败都先记录到文档记录（Content 写入 "Error: ..."），
// 再返回错误供 worker 记日志；绝不会让上传方看到失败。
func (s *RAGService) IngestDocument(ctx context.Context, documentID string) error {
	var doc UploadedDocument
	if err := s.db.WithContext(ctx).Where("id = ?", documentID).First(&doc).Error; err != nil {
		return fmt.Errorf("查询文档失败: %w", err)
	}

	text, err := s.extractText(&doc)
	if err != nil {
		s.logger.Error("文档提取失败", zap.String("document_id", doc.ID), zap.Error(err))
		return s.recordIngestFailure(ctx, doc.ID, err)
	}

	// 即使后续索引失败，提取出的正文也先落库
	if err := s.db.WithContext(ctx).Model(&UploadedDocument{}).
		Where("id = ?", doc.ID).
		Updates(map[string]any{"content": text, "status": "processing", "updated_at": time.Now()}).Error; err != nil {
		s.logger.Error("保存文档正文失败", zap.String("document_id", doc.ID), zap.Error(err))
		return s.recordIngestFailure(ctx, doc.ID, fmt.Errorf("保存文档正文失败: %w", err))
	}

	chunks := s.chunker.SplitText(text)
	texts := make([]string, len(chunks))
	metas := make([]ChunkMeta, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
		metas[i] = ChunkMeta{
			DocID:      doc.ID,
			Filename:   doc.FileName,
			ChunkIndex: chunk.ChunkIndex,
		}
	}

	if err := s.store.Append(ctx, texts, metas); err != nil {
		s.logger.Error("文档索引失败", zap.String("document_id", doc.ID), zap.Error(err))
		return s.recordIngestFailure(ctx, doc.ID, err)
	}

	if err := s.db.WithContext(ctx).Model(&UploadedDocument{}).
		Where("id = ?", doc.ID).
		Updates(map[string]any{
			"status":      "indexed",
			"chunk_count": len(chunks),
			"updated_at":  time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}

	metrics.IngestTotal.WithLabelValues("success").Inc()
	metrics.ChunksIndexed.Add(float64(len(chunks)))
	s.logger.Info("文档索引完成",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// Answer 基于检索上下文回答问题
func (s *RAGService) Answer(ctx context.Context, question string) (*AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	results, err := s.store.Search(ctx, question, DefaultTopK)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("检索失败: %w", err)
	}
	metrics.SearchesTotal.WithLabelValues("success").Inc()
	metrics.SearchDuration.Observe(time.Since(start).Seconds())

	if len(results) == 0 {
		return &AnswerResult{Reply: NoContextReply, Sources: []string{}}, nil
	}

	contextTexts := make([]string, len(results))
	for i, r := range results {
		contextTexts[i] = r.Text
	}
	sources := distinctFilenames(results)

	prompt := s.buildPrompt(strings.Join(contextTexts, "\n"), question)

	reply, err := s.generator.Generate(ctx, prompt, DefaultMaxAnswerTokens)
	if err != nil {
		s.logger.Error("生成回答失败", zap.Error(err))
		return nil, &AnswerError{Sources: sources, Err: err}
	}

	return &AnswerResult{
		Reply:   strings.TrimSpace(reply),
		Sources: sources,
	}, nil
}

// RebuildIndex 离线全量重建
// 遍历所有文档重新提取、分块，调用一次 Build 覆盖旧索引；
// 与逐次上传的 Append 路径相互独立。单个文档失败跳过不中断。
func (s *RAGService) RebuildIndex(ctx context.Context) error {
	var docs []*UploadedDocument
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&docs).Error; err != nil {
		return fmt.Errorf("查询文档列表失败: %w", err)
	}

	allTexts := make([]string, 0)
	allMetas := make([]ChunkMeta, 0)

	for _, doc := range docs {
		text, err := s.extractText(doc)
		if err != nil {
			s.logger.Warn("重建时提取文档失败，跳过",
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
			continue
		}
		for _, chunk := range s.chunker.SplitText(text) {
			allTexts = append(allTexts, chunk.Content)
			allMetas = append(allMetas, ChunkMeta{
				DocID:      doc.ID,
				Filename:   doc.FileName,
				ChunkIndex: chunk.ChunkIndex,
			})
		}
	}

	s.logger.Info("开始全量重建索引",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(allTexts)),
	)
	return s.store.Build(ctx, allTexts, allMetas)
}

// ListDocuments 列出文档
func (s *RAGService) ListDocuments(ctx context.Context) ([]*UploadedDocument, error) {
	var docs []*UploadedDocument
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("查询文档列表失败: %w", err)
	}
	return docs, nil
}

// --- 内部辅助 ---

// extractText 按扩展名提取文档正文
func (s *RAGService) extractText(doc *UploadedDocument) (string, error) {
	file, err := os.Open(doc.FilePath)
	if err != nil {
		return "", fmt.Errorf("打开文件失败: %w", err)
	}
	defer file.Close()

	return s.parserRegistry.Parse(doc.FileName, file)
}

// recordIngestFailure 将摄取失败记录到文档上：状态置 failed，
// Content 写入错误字符串。返回原始错误供调用方记日志。
func (s *RAGService) recordIngestFailure(ctx context.Context, documentID string, cause error) error {
	metrics.IngestTotal.WithLabelValues("failed").Inc()
	updates := map[string]any{
		"content":       fmt.Sprintf("Error: %v", cause),
		"status":        "failed",
		"error_message": cause.Error(),
		"updated_at":    time.Now(),
	}
	if err := s.db.WithContext(ctx).Model(&UploadedDocument{}).
		Where("id = ?", documentID).
		Updates(updates).Error; err != nil {
		s.logger.Error("记录摄取失败状态失败", zap.String("document_id", documentID), zap.Error(err))
	}
	return cause
}

// buildPrompt 组装生成提示词
func (s *RAGService) buildPrompt(context, question string) string {
	return fmt.Sprintf("%s\n\nContext:\n%s\n\nQuestion: %s\nAnswer:", s.persona, context, question)
}

// distinctFilenames 提取检索结果中的去重文件名集合（无序语义，输出排序保证稳定）。
func distinctFilenames(results []IndexedRecord) []string {
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		name := r.Meta.Filename
		if name == "" {
			name = "unknown"
		}
		seen[name] = struct{}{}
	}
	sources := make([]string, 0, len(seen))
	for name := range seen {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}
