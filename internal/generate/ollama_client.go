package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient Ollama 本地模型客户端，非受限模式下的本地生成层。
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// OllamaOptions 本地生成层配置
type OllamaOptions struct {
	BaseURL    string        // 默认 http://localhost:11434
	Model      string        // 必填
	Timeout    time.Duration // 本地推理可能较慢，默认 120s
	HTTPClient *http.Client  // 测试注入用
}

// NewOllamaClient 创建 Ollama 客户端
func NewOllamaClient(opts OllamaOptions) (*OllamaClient, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("ollama model 不能为空")
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &OllamaClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      opts.Model,
		httpClient: client,
	}, nil
}

// Name 策略名
func (c *OllamaClient) Name() string { return "ollama" }

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Generate 本地推理（非流式）
func (c *OllamaClient) Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"num_predict": maxNewTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	url := c.baseURL + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("Ollama API 调用失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var parsed ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("解析响应失败: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("ollama 返回错误: %s", parsed.Error)
	}

	return strings.TrimSpace(parsed.Response), nil
}
