package parsers

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ParserRegistry manages document parsers
type ParserRegistry struct {
	parsers []Parser
}

// NewParserRegistry creates a new registry with default parsers
func NewParserRegistry() *ParserRegistry {
	r := &ParserRegistry{
		parsers: make([]Parser, 0),
	}

	r.Register(NewTextParser())
	r.Register(NewPDFParser())
	r.Register(NewDocxParser())

	return r
}

// Register registers a new parser
func (r *ParserRegistry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Parse 选择解析器提取文本
// 不支持的扩展名返回占位内容而不是错误：上传永远不能仅因文件类型失败。
// 解析器自身的错误（文件损坏等）原样上抛，由上层记录到文档记录里。
func (r *ParserRegistry) Parse(fileName string, reader io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	for _, p := range r.parsers {
		if p.CanParse(ext) {
			return p.Parse(reader)
		}
	}

	return fmt.Sprintf("Unsupported file type: %s", ext), nil
}

// Supported 报告扩展名是否有对应解析器。
func (r *ParserRegistry) Supported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, p := range r.parsers {
		if p.CanParse(ext) {
			return true
		}
	}
	return false
}
