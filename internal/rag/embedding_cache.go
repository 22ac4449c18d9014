package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachingProvider 带缓存的嵌入提供者包装
// L1 为进程内 sync.Map，L2 为可选 Redis；键为 sha256(model + text)。
// 重复上传同一文档或重复提问时避免再次调用嵌入服务。
type CachingProvider struct {
	inner EmbeddingProvider

	redis        *redis.Client
	prefix       string
	ttl          time.Duration
	local        sync.Map
	localCount   atomic.Int64
	maxLocalSize int64
}

type cachedEmbedding struct {
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewCachingProvider 创建缓存包装
// redisClient 可为 nil，仅使用本地缓存。
func NewCachingProvider(inner EmbeddingProvider, redisClient *redis.Client, ttl time.Duration) *CachingProvider {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &CachingProvider{
		inner:        inner,
		redis:        redisClient,
		prefix:       "emb:",
		ttl:          ttl,
		maxLocalSize: 10000, // 本地最多缓存 1 万条
	}
}

// Embed 单条文本向量化，结果进缓存。
func (c *CachingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.get(ctx, text); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(ctx, text, vec)
	return vec, nil
}

// EmbedBatch 批量向量化
// 只对缓存未命中的文本调用底层服务，结果按输入顺序装配。
func (c *CachingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.get(ctx, text); ok {
			result[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		embs, err := c.inner.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, vec := range embs {
			result[missingIdx[j]] = vec
			c.put(ctx, missing[j], vec)
		}
	}

	return result, nil
}

// Dimension 向量维度
func (c *CachingProvider) Dimension() int { return c.inner.Dimension() }

// GetModel 模型名
func (c *CachingProvider) GetModel() string { return c.inner.GetModel() }

// GetProviderName 提供商名称
func (c *CachingProvider) GetProviderName() string { return c.inner.GetProviderName() }

func (c *CachingProvider) get(ctx context.Context, text string) ([]float32, bool) {
	key := c.makeKey(text)

	if val, ok := c.local.Load(key); ok {
		return val.(*cachedEmbedding).Vector, true
	}

	if c.redis != nil {
		raw, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			var cached cachedEmbedding
			if json.Unmarshal(raw, &cached) == nil && cached.Model == c.inner.GetModel() {
				c.storeLocal(key, &cached)
				return cached.Vector, true
			}
		}
	}

	return nil, false
}

func (c *CachingProvider) put(ctx context.Context, text string, vec []float32) {
	key := c.makeKey(text)
	cached := &cachedEmbedding{
		Vector:    vec,
		Model:     c.inner.GetModel(),
		CreatedAt: time.Now(),
	}
	c.storeLocal(key, cached)

	if c.redis != nil {
		if raw, err := json.Marshal(cached); err == nil {
			// 写 Redis 失败不影响主流程
			c.redis.Set(ctx, key, raw, c.ttl)
		}
	}
}

func (c *CachingProvider) storeLocal(key string, cached *cachedEmbedding) {
	if c.localCount.Load() >= c.maxLocalSize {
		return
	}
	if _, loaded := c.local.LoadOrStore(key, cached); !loaded {
		c.localCount.Add(1)
	}
}

func (c *CachingProvider) makeKey(text string) string {
	sum := sha256.Sum256([]byte(c.inner.GetModel() + "\x00" + text))
	return c.prefix + hex.EncodeToString(sum[:])
}
