package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerSplitText(t *testing.T) {
	t.Run("空文本返回空切片", func(t *testing.T) {
		c := NewChunker(800, 200)
		chunks := c.SplitText("")
		assert.NotNil(t, chunks)
		assert.Len(t, chunks, 0)
	})

	t.Run("纯空白文本不产生分块", func(t *testing.T) {
		c := NewChunker(800, 200)
		assert.Len(t, c.SplitText("   \n\t  "), 0)
	})

	t.Run("短文本产生单个分块", func(t *testing.T) {
		c := NewChunker(800, 200)
		chunks := c.SplitText("  hello world  ")
		require.Len(t, chunks, 1)
		assert.Equal(t, "hello world", chunks[0].Content)
		assert.Equal(t, 0, chunks[0].ChunkIndex)
		assert.NotEmpty(t, chunks[0].ContentHash)
		assert.Greater(t, chunks[0].TokenCount, 0)
	})

	t.Run("长文本按窗口切分且索引递增", func(t *testing.T) {
		c := NewChunker(800, 200)
		text := strings.Repeat("a", 2000)
		chunks := c.SplitText(text)

		// 窗口起点 0, 600, 1200, 1800
		require.Len(t, chunks, 4)
		assert.Equal(t, 800, len(chunks[0].Content))
		assert.Equal(t, 800, len(chunks[1].Content))
		assert.Equal(t, 800, len(chunks[2].Content))
		assert.Equal(t, 200, len(chunks[3].Content))
		for i, chunk := range chunks {
			assert.Equal(t, i, chunk.ChunkIndex)
		}
	})

	t.Run("相邻分块包含重叠内容", func(t *testing.T) {
		c := NewChunker(10, 4)
		chunks := c.SplitText("abcdefghijklmnop")
		require.GreaterOrEqual(t, len(chunks), 2)
		// 第二个窗口从 6 开始，前 4 个字符与第一个窗口尾部重叠
		assert.Equal(t, "abcdefghij", chunks[0].Content)
		assert.Equal(t, "ghijklmnop", chunks[1].Content)
	})

	t.Run("重叠大于等于窗口时仍然推进", func(t *testing.T) {
		c := NewChunker(10, 10)
		text := strings.Repeat("x", 55)
		chunks := c.SplitText(text)

		// 退化为逐窗口前进，不会死循环
		require.Len(t, chunks, 6)
		assert.Equal(t, 5, chunks[5].ChunkIndex)
	})

	t.Run("CRLF统一为LF", func(t *testing.T) {
		c := NewChunker(800, 200)
		chunks := c.SplitText("line1\r\nline2")
		require.Len(t, chunks, 1)
		assert.Equal(t, "line1\nline2", chunks[0].Content)
	})

	t.Run("多字节字符按字符计数切分", func(t *testing.T) {
		c := NewChunker(10, 0)
		text := strings.Repeat("文", 25)
		chunks := c.SplitText(text)
		require.Len(t, chunks, 3)
		assert.Equal(t, strings.Repeat("文", 10), chunks[0].Content)
		assert.Equal(t, strings.Repeat("文", 5), chunks[2].Content)
	})

	t.Run("相同内容哈希一致", func(t *testing.T) {
		c := NewChunker(800, 200)
		a := c.SplitText("same content")
		b := c.SplitText("same content")
		require.Len(t, a, 1)
		require.Len(t, b, 1)
		assert.Equal(t, a[0].ContentHash, b[0].ContentHash)
	})
}

func TestNewChunkerDefaults(t *testing.T) {
	t.Run("非法参数回退默认值", func(t *testing.T) {
		c := NewChunker(0, -5)
		assert.Equal(t, DefaultChunkSize, c.ChunkSize)
		assert.Equal(t, 0, c.ChunkOverlap)
	})
}
