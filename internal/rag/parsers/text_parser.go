package parsers

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// TextParser 文本文件解析器
// 支持: .txt, .md
type TextParser struct{}

// NewTextParser 创建文本解析器
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse 解析文本文件
// 按 UTF-8 读取，非法字节替换为 U+FFFD 而不是报错。
func (p *TextParser) Parse(reader io.Reader) (string, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}

	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, string(utf8.RuneError))
	}

	return strings.TrimSpace(text), nil
}

// SupportedExtensions 支持的文件扩展名
func (p *TextParser) SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

// CanParse 检查是否可以解析指定扩展名的文件
func (p *TextParser) CanParse(extension string) bool {
	extension = strings.ToLower(extension)
	for _, ext := range p.SupportedExtensions() {
		if ext == extension {
			return true
		}
	}
	return false
}
