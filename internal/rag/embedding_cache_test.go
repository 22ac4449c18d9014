package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider 统计底层调用次数的提供者
type countingProvider struct {
	stubProvider
	embedCalls int
	batchTexts [][]string
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.embedCalls++
	return p.stubProvider.Embed(ctx, text)
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.batchTexts = append(p.batchTexts, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.stubProvider.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func TestCachingProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("重复单条请求只调用一次底层", func(t *testing.T) {
		inner := &countingProvider{stubProvider: stubProvider{
			dim: 2, model: "m", vectors: map[string][]float32{"hello": {1, 2}},
		}}
		cache := NewCachingProvider(inner, nil, time.Hour)

		first, err := cache.Embed(ctx, "hello")
		require.NoError(t, err)
		second, err := cache.Embed(ctx, "hello")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, inner.embedCalls)
	})

	t.Run("批量请求只补齐未命中部分", func(t *testing.T) {
		inner := &countingProvider{stubProvider: stubProvider{
			dim: 2, model: "m",
			vectors: map[string][]float32{
				"a": {1, 0}, "b": {2, 0}, "c": {3, 0},
			},
		}}
		cache := NewCachingProvider(inner, nil, time.Hour)

		// 预热 "b"
		_, err := cache.Embed(ctx, "b")
		require.NoError(t, err)

		result, err := cache.EmbedBatch(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, result, 3)

		// 结果顺序与输入一致
		assert.Equal(t, []float32{1, 0}, result[0])
		assert.Equal(t, []float32{2, 0}, result[1])
		assert.Equal(t, []float32{3, 0}, result[2])

		// 底层只看见未命中的两条
		require.Len(t, inner.batchTexts, 1)
		assert.Equal(t, []string{"a", "c"}, inner.batchTexts[0])
	})

	t.Run("空批量直接返回", func(t *testing.T) {
		inner := &countingProvider{stubProvider: stubProvider{dim: 2, model: "m"}}
		cache := NewCachingProvider(inner, nil, time.Hour)

		result, err := cache.EmbedBatch(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Empty(t, inner.batchTexts)
	})

	t.Run("透传模型信息", func(t *testing.T) {
		inner := &countingProvider{stubProvider: stubProvider{dim: 7, model: "m"}}
		cache := NewCachingProvider(inner, nil, 0)

		assert.Equal(t, 7, cache.Dimension())
		assert.Equal(t, "m", cache.GetModel())
		assert.Equal(t, "stub", cache.GetProviderName())
	})
}

func TestBatchingProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("按批量切分并保持顺序", func(t *testing.T) {
		inner := &countingProvider{stubProvider: stubProvider{
			dim: 1, model: "m",
			vectors: map[string][]float32{
				"t0": {0}, "t1": {1}, "t2": {2}, "t3": {3}, "t4": {4},
			},
		}}
		batching := NewBatchingProvider(inner, 2)

		result, err := batching.EmbedBatch(ctx, []string{"t0", "t1", "t2", "t3", "t4"})
		require.NoError(t, err)
		require.Len(t, result, 5)
		for i, vec := range result {
			assert.Equal(t, float32(i), vec[0])
		}

		// 5 条按批量 2 切成 3 批
		require.Len(t, inner.batchTexts, 3)
		assert.Equal(t, []string{"t0", "t1"}, inner.batchTexts[0])
		assert.Equal(t, []string{"t4"}, inner.batchTexts[2])
	})

	t.Run("非法批量回退默认值", func(t *testing.T) {
		inner := &countingProvider{stubProvider: stubProvider{dim: 1, model: "m"}}
		batching := NewBatchingProvider(inner, 0)
		assert.Equal(t, DefaultEncodeBatchSize, batching.batchSize)
	})
}
