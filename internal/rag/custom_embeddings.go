package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// CustomEmbeddingProvider 自建嵌入服务提供者
// 适配任意兼容 OpenAI embeddings 协议的自托管编码服务
// （如 text-embeddings-inference、sentence-transformers 网关）。
type CustomEmbeddingProvider struct {
	name       string
	endpoint   string
	model      string
	dimension  int
	apiKey     string
	httpClient *http.Client
}

// CustomEmbeddingConfig 自建嵌入服务配置
type CustomEmbeddingConfig struct {
	Name       string        // 提供者名称，默认 custom
	Endpoint   string        // API 端点，必填
	Model      string        // 模型名称
	Dimension  int           // 向量维度
	APIKey     string        // Bearer token，可为空
	Timeout    time.Duration // 超时时间，默认 60s
	HTTPClient *http.Client  // 测试注入用
}

// NewCustomEmbeddingProvider 创建自建嵌入服务提供者
func NewCustomEmbeddingProvider(cfg CustomEmbeddingConfig) (*CustomEmbeddingProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint 不能为空")
	}
	if cfg.Name == "" {
		cfg.Name = "custom"
	}
	if cfg.Model == "" {
		cfg.Model = "default"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 384
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &CustomEmbeddingProvider{
		name:       cfg.Name,
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		apiKey:     cfg.APIKey,
		httpClient: client,
	}, nil
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed 单条文本向量化
func (p *CustomEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	embs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch 批量向量化
// 按响应中的 index 字段还原输入顺序。
func (p *CustomEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{Input: texts, Model: p.model})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用嵌入服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("嵌入服务返回 HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析嵌入响应失败: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("嵌入服务返回向量数量不匹配: 期望%d, 实际%d", len(texts), len(parsed.Data))
	}

	sort.Slice(parsed.Data, func(i, j int) bool {
		return parsed.Data[i].Index < parsed.Data[j].Index
	})

	embs := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		embs[i] = d.Embedding
	}
	return embs, nil
}

// Dimension 向量维度
func (p *CustomEmbeddingProvider) Dimension() int { return p.dimension }

// GetModel 模型名
func (p *CustomEmbeddingProvider) GetModel() string { return p.model }

// GetProviderName 提供商名称
func (p *CustomEmbeddingProvider) GetProviderName() string { return p.name }
