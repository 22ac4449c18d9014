package parsers

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDocx 在内存中构造一个最小可用的 .docx（ZIP + word/document.xml）
func buildDocx(t *testing.T, paragraphs []string) []byte {
	t.Helper()

	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>`)
		body.WriteString(p)
		body.WriteString(`</w:t></w:r></w:p>`)
	}

	documentXML := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body>` + body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func TestTextParser(t *testing.T) {
	parser := NewTextParser()

	t.Run("读取并去除首尾空白", func(t *testing.T) {
		text, err := parser.Parse(strings.NewReader("  hello world\n\n"))
		require.NoError(t, err)
		assert.Equal(t, "hello world", text)
	})

	t.Run("空文件返回空字符串", func(t *testing.T) {
		text, err := parser.Parse(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, "", text)
	})

	t.Run("非法 UTF-8 被替换而不是报错", func(t *testing.T) {
		text, err := parser.Parse(bytes.NewReader([]byte{'o', 'k', 0xff, 0xfe, '!'}))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(text, "ok"))
		assert.True(t, strings.HasSuffix(text, "!"))
		assert.True(t, strings.Contains(text, "�"))
	})

	t.Run("支持的扩展名", func(t *testing.T) {
		assert.True(t, parser.CanParse(".txt"))
		assert.True(t, parser.CanParse(".md"))
		assert.True(t, parser.CanParse(".markdown"))
		assert.False(t, parser.CanParse(".pdf"))
	})
}

func TestDocxParser(t *testing.T) {
	parser := NewDocxParser()

	t.Run("提取段落文本并以换行拼接", func(t *testing.T) {
		data := buildDocx(t, []string{"First paragraph", "Second paragraph"})

		text, err := parser.Parse(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "First paragraph\nSecond paragraph", text)
	})

	t.Run("跳过空段落", func(t *testing.T) {
		data := buildDocx(t, []string{"only", "   "})

		text, err := parser.Parse(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "only", text)
	})

	t.Run("非 ZIP 数据报错", func(t *testing.T) {
		_, err := parser.Parse(strings.NewReader("not a zip archive"))
		assert.Error(t, err)
	})

	t.Run("缺少 document.xml 报错", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, err := zw.Create("word/other.xml")
		require.NoError(t, err)
		_, err = w.Write([]byte("<x/>"))
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		_, err = parser.Parse(bytes.NewReader(buf.Bytes()))
		assert.Error(t, err)
	})
}

func TestParserRegistry(t *testing.T) {
	registry := NewParserRegistry()

	t.Run("按扩展名分派到文本解析器", func(t *testing.T) {
		text, err := registry.Parse("notes.TXT", strings.NewReader(" hi "))
		require.NoError(t, err)
		assert.Equal(t, "hi", text)
	})

	t.Run("分派到 DOCX 解析器", func(t *testing.T) {
		data := buildDocx(t, []string{"docx body"})

		text, err := registry.Parse("report.docx", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "docx body", text)
	})

	t.Run("不支持的类型返回占位内容而非错误", func(t *testing.T) {
		text, err := registry.Parse("image.png", strings.NewReader("binary"))
		require.NoError(t, err)
		assert.Equal(t, "Unsupported file type: .png", text)
	})

	t.Run("Supported 汇总所有解析器", func(t *testing.T) {
		assert.True(t, registry.Supported(".txt"))
		assert.True(t, registry.Supported(".md"))
		assert.True(t, registry.Supported(".pdf"))
		assert.True(t, registry.Supported(".DOCX"))
		assert.False(t, registry.Supported(".png"))
	})
}
