package rag

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEmbeddingProvider OpenAI向量化服务提供者
type OpenAIEmbeddingProvider struct {
	client *openai.Client
	model  string // 默认使用 text-embedding-3-small
}

// NewOpenAIEmbeddingProvider 创建OpenAI向量化提供者
// baseURL 非空时指向兼容 OpenAI 协议的自建网关。
func NewOpenAIEmbeddingProvider(apiKey, baseURL, model string) *OpenAIEmbeddingProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &OpenAIEmbeddingProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Embed 将单条文本转换为向量
func (p *OpenAIEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("文本不能为空")
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("调用OpenAI Embeddings API失败: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("OpenAI API返回空向量")
	}

	return resp.Data[0].Embedding, nil
}

// EmbedBatch 批量向量化，保持输入顺序。
// 上层 BatchingProvider 已按配置切批，这里只防御 API 自身的 2048 条上限。
func (p *OpenAIEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	const apiLimit = 2048
	all := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += apiLimit {
		end := i + apiLimit
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[i:end],
			Model: openai.EmbeddingModel(p.model),
		})
		if err != nil {
			return nil, fmt.Errorf("调用OpenAI Embeddings API失败: %w", err)
		}
		if len(resp.Data) != end-i {
			return nil, fmt.Errorf("OpenAI API返回向量数量不匹配: 期望%d, 实际%d", end-i, len(resp.Data))
		}

		for _, data := range resp.Data {
			all = append(all, data.Embedding)
		}
	}

	return all, nil
}

// Dimension 获取向量维度
func (p *OpenAIEmbeddingProvider) Dimension() int {
	switch p.model {
	case string(openai.LargeEmbedding3):
		return 3072
	case string(openai.SmallEmbedding3), string(openai.AdaEmbeddingV2):
		return 1536
	default:
		return 1536
	}
}

// GetModel 获取当前使用的模型
func (p *OpenAIEmbeddingProvider) GetModel() string {
	return p.model
}

// GetProviderName 获取提供商名称
func (p *OpenAIEmbeddingProvider) GetProviderName() string {
	return "openai"
}
