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

// DefaultHFTimeout 远程推理请求超时
const DefaultHFTimeout = 25 * time.Second

// HFClient Hugging Face Inference API 客户端，远程生成层。
type HFClient struct {
	apiURL     string
	apiToken   string
	httpClient *http.Client
}

// HFOptions 远程生成层配置
type HFOptions struct {
	APIURL     string        // 推理端点，必填
	APIToken   string        // Bearer token，可为空（匿名限流调用）
	Timeout    time.Duration // 默认 25s
	HTTPClient *http.Client  // 测试注入用
}

// NewHFClient 创建远程生成客户端
func NewHFClient(opts HFOptions) (*HFClient, error) {
	if strings.TrimSpace(opts.APIURL) == "" {
		return nil, fmt.Errorf("推理 API 地址不能为空")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultHFTimeout
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &HFClient{
		apiURL:     opts.APIURL,
		apiToken:   opts.APIToken,
		httpClient: client,
	}, nil
}

// Name 策略名
func (c *HFClient) Name() string { return "hf-inference" }

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	MaxNewTokens int `json:"max_new_tokens"`
}

type hfGenerated struct {
	GeneratedText string `json:"generated_text"`
}

// Generate 调用远程推理 API
// 响应可能是对象数组也可能是单个对象，两种形状都接受；
// 非 200、形状异常、网络错误或超时都作为本层失败上抛。
func (c *HFClient) Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	body, err := json.Marshal(hfRequest{
		Inputs:     prompt,
		Parameters: hfParameters{MaxNewTokens: maxNewTokens},
	})
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用推理 API 失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("推理 API 返回 HTTP %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	return parseGeneratedText(raw)
}

// parseGeneratedText 兼容两种响应形状提取 generated_text。
func parseGeneratedText(raw []byte) (string, error) {
	var asList []hfGenerated
	if err := json.Unmarshal(raw, &asList); err == nil && len(asList) > 0 && asList[0].GeneratedText != "" {
		return strings.TrimSpace(asList[0].GeneratedText), nil
	}

	var asObject hfGenerated
	if err := json.Unmarshal(raw, &asObject); err == nil && asObject.GeneratedText != "" {
		return strings.TrimSpace(asObject.GeneratedText), nil
	}

	return "", fmt.Errorf("推理 API 响应形状异常: %s", truncate(string(raw), 200))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
