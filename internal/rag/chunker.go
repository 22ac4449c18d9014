package rag

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// 默认分块参数（字符数）
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 200
)

// Chunker 固定窗口文档分块器
type Chunker struct {
	ChunkSize    int // 分块大小(字符数)
	ChunkOverlap int // 相邻分块重叠(字符数)
}

// NewChunker 创建分块器
// chunkSize <= 0 时使用默认 800，overlap < 0 时归零。
// overlap >= chunkSize 时不修正参数，切分循环自身保证推进。
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &Chunker{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	}
}

// Chunk 一个待嵌入的文本分块
type Chunk struct {
	Content     string // 去除首尾空白后的分块内容
	ChunkIndex  int    // 分块索引(从0开始，按生成顺序)
	ContentHash string // 内容哈希(SHA256)
	TokenCount  int    // Token数量(近似)
}

// SplitText 对文本做滑动窗口切分
// 窗口 [start, start+ChunkSize)，去除首尾空白后为空的窗口丢弃；
// start 每次前进 ChunkSize-ChunkOverlap，且保证严格递增，
// 即使 overlap >= size 也不会死循环。空文本返回空切片。
// 纯函数，结果只取决于输入。
func (c *Chunker) SplitText(text string) []Chunk {
	if text == "" {
		return []Chunk{}
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	runes := []rune(text)
	total := len(runes)
	chunks := make([]Chunk, 0, total/c.ChunkSize+1)
	index := 0

	for start := 0; start < total; {
		end := start + c.ChunkSize
		if end > total {
			end = total
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, Chunk{
				Content:     content,
				ChunkIndex:  index,
				ContentHash: hashContent(content),
				TokenCount:  countTokens(content),
			})
			index++
		}

		next := start + c.ChunkSize - c.ChunkOverlap
		if next <= start {
			// overlap >= size 时退化为逐窗口前进
			next = start + c.ChunkSize
		}
		start = next
	}

	return chunks
}

// hashContent 计算内容哈希
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)
}

var (
	tokenEncoderOnce sync.Once
	tokenEncoder     *tiktoken.Tiktoken
)

// countTokens 估算 Token 数量
// 优先使用 tiktoken cl100k_base；编码器不可用时按 4 字符≈1 token 估算。
func countTokens(text string) int {
	tokenEncoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err == nil {
			tokenEncoder = enc
		}
	})
	if tokenEncoder == nil {
		return (len(text) + 3) / 4
	}
	return len(tokenEncoder.Encode(text, nil, nil))
}
