package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"ragchat/internal/rag"
	"ragchat/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type RAGHandler struct {
	ragService *rag.RAGService
	logger     *zap.Logger
}

func NewRAGHandler(ragService *rag.RAGService, logger *zap.Logger) *RAGHandler {
	return &RAGHandler{
		ragService: ragService,
		logger:     logger,
	}
}

// HandleProcessDocument 处理文档摄取任务
// 摄取失败已写入文档记录，返回错误仅用于 asynq 重试与记账。
func (h *RAGHandler) HandleProcessDocument(ctx context.Context, t *asynq.Task) error {
	var p tasks.ProcessDocumentPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("开始处理文档任务", zap.String("document_id", p.DocumentID))

	if err := h.ragService.IngestDocument(ctx, p.DocumentID); err != nil {
		h.logger.Error("文档处理失败", zap.String("document_id", p.DocumentID), zap.Error(err))
		return err
	}

	h.logger.Info("文档处理完成", zap.String("document_id", p.DocumentID))
	return nil
}

// HandleRebuildIndex 处理全量重建任务
func (h *RAGHandler) HandleRebuildIndex(ctx context.Context, t *asynq.Task) error {
	h.logger.Info("开始全量重建索引任务")

	if err := h.ragService.RebuildIndex(ctx); err != nil {
		h.logger.Error("全量重建失败", zap.Error(err))
		return err
	}

	h.logger.Info("全量重建完成")
	return nil
}
