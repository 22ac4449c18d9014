package rag

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ragchat/internal/metrics"
)

// EmbeddingProvider 抽象不同向量模型/服务的统一接口。
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	GetModel() string
	GetProviderName() string
}

// ProviderFactory 创建嵌入提供者，由 ProviderHandle 在首次使用时调用一次。
type ProviderFactory func() (EmbeddingProvider, error)

// ProviderHandle 持有进程级唯一的嵌入提供者。
// 模型在首次使用时懒加载一次，之后并发共享；加载失败只记录一次，
// 后续调用直接返回 ErrEmbeddingUnavailable。
// 显式注入到各组件，替代隐藏的包级全局变量。
type ProviderHandle struct {
	enabled bool
	factory ProviderFactory
	logger  *zap.Logger

	once     sync.Once
	provider EmbeddingProvider
	initErr  error
}

// NewProviderHandle 创建提供者句柄
// enabled=false 表示管理性禁用嵌入（低内存部署），所有依赖方走降级路径。
func NewProviderHandle(enabled bool, factory ProviderFactory, logger *zap.Logger) *ProviderHandle {
	return &ProviderHandle{
		enabled: enabled,
		factory: factory,
		logger:  logger,
	}
}

// Provider 返回共享的嵌入提供者
// 禁用或加载失败时返回 ErrEmbeddingUnavailable。
func (h *ProviderHandle) Provider() (EmbeddingProvider, error) {
	if !h.enabled {
		return nil, ErrEmbeddingUnavailable
	}
	h.once.Do(func() {
		p, err := h.factory()
		if err != nil {
			h.logger.Error("加载嵌入模型失败", zap.Error(err))
			h.initErr = ErrEmbeddingUnavailable
			return
		}
		h.provider = p
		h.logger.Info("嵌入模型加载完成",
			zap.String("provider", p.GetProviderName()),
			zap.String("model", p.GetModel()),
			zap.Int("dimension", p.Dimension()),
		)
	})
	if h.initErr != nil {
		return nil, h.initErr
	}
	return h.provider, nil
}

// Available 报告嵌入能力当前是否可用（不触发加载）。
func (h *ProviderHandle) Available() bool {
	if !h.enabled {
		return false
	}
	_, err := h.Provider()
	return err == nil
}

// BatchingProvider 包装任意提供者，按固定批量切分请求以限制峰值内存。
// 各批结果按输入顺序拼接。
type BatchingProvider struct {
	inner     EmbeddingProvider
	batchSize int
}

// DefaultEncodeBatchSize 默认编码批量
const DefaultEncodeBatchSize = 64

// NewBatchingProvider 创建批量包装
func NewBatchingProvider(inner EmbeddingProvider, batchSize int) *BatchingProvider {
	if batchSize <= 0 {
		batchSize = DefaultEncodeBatchSize
	}
	return &BatchingProvider{inner: inner, batchSize: batchSize}
}

// Embed 单条文本向量化
func (p *BatchingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.inner.Embed(ctx, text)
	p.observe(err)
	return vec, err
}

// EmbedBatch 分批向量化，保持输入顺序。
func (p *BatchingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += p.batchSize {
		end := i + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		embs, err := p.inner.EmbedBatch(ctx, texts[i:end])
		p.observe(err)
		if err != nil {
			return nil, fmt.Errorf("批量向量化失败(batch %d-%d): %w", i, end, err)
		}
		if len(embs) != end-i {
			return nil, fmt.Errorf("批量向量化返回数量不匹配: 期望%d, 实际%d", end-i, len(embs))
		}
		all = append(all, embs...)
	}

	return all, nil
}

// observe 记录一次对底层提供者的请求
func (p *BatchingProvider) observe(err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(p.inner.GetProviderName(), status).Inc()
}

// Dimension 向量维度
func (p *BatchingProvider) Dimension() int { return p.inner.Dimension() }

// GetModel 模型名
func (p *BatchingProvider) GetModel() string { return p.inner.GetModel() }

// GetProviderName 提供商名
func (p *BatchingProvider) GetProviderName() string { return p.inner.GetProviderName() }
