package parsers

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// DocxParser Word 文档解析器（.docx）
// .docx 文件本质上是 ZIP 压缩包，正文在 word/document.xml 中；
// 段落文本以换行符拼接。
type DocxParser struct{}

// NewDocxParser 创建 DOCX 解析器
func NewDocxParser() *DocxParser {
	return &DocxParser{}
}

// Parse 解析 DOCX 文档
func (p *DocxParser) Parse(reader io.Reader) (string, error) {
	// zip 需要 ReaderAt，先读入内存
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取文档失败: %w", err)
	}

	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("打开 DOCX 失败: %w", err)
	}

	var documentXML []byte
	for _, file := range zipReader.File {
		if file.Name == "word/document.xml" {
			rc, err := file.Open()
			if err != nil {
				return "", fmt.Errorf("打开 document.xml 失败: %w", err)
			}
			documentXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return "", fmt.Errorf("读取 document.xml 失败: %w", err)
			}
			break
		}
	}

	if documentXML == nil {
		return "", fmt.Errorf("无效的 DOCX 文件：找不到 document.xml")
	}

	return p.extractTextFromXML(documentXML)
}

// SupportedExtensions 支持的扩展名
func (p *DocxParser) SupportedExtensions() []string {
	return []string{".docx"}
}

// CanParse 检查是否支持该扩展名
func (p *DocxParser) CanParse(ext string) bool {
	for _, e := range p.SupportedExtensions() {
		if e == ext {
			return true
		}
	}
	return false
}

// extractTextFromXML 从 Word XML 中提取纯文本，段落间以换行分隔。
func (p *DocxParser) extractTextFromXML(xmlData []byte) (string, error) {
	type Text struct {
		Content string `xml:",chardata"`
	}
	type Run struct {
		Text []Text `xml:"t"`
	}
	type Paragraph struct {
		Runs []Run `xml:"r"`
	}
	type Body struct {
		Paragraphs []Paragraph `xml:"p"`
	}
	type Document struct {
		XMLName xml.Name `xml:"document"`
		Body    Body     `xml:"body"`
	}

	var doc Document
	if err := xml.Unmarshal(xmlData, &doc); err != nil {
		// 结构化解析失败时退回正则提取
		return p.extractTextByRegex(xmlData), nil
	}

	var result strings.Builder
	for _, para := range doc.Body.Paragraphs {
		var paraText strings.Builder
		for _, run := range para.Runs {
			for _, t := range run.Text {
				paraText.WriteString(t.Content)
			}
		}

		text := strings.TrimSpace(paraText.String())
		if text != "" {
			if result.Len() > 0 {
				result.WriteString("\n")
			}
			result.WriteString(text)
		}
	}

	return result.String(), nil
}

// extractTextByRegex 正则提取（备用方法）
func (p *DocxParser) extractTextByRegex(xmlData []byte) string {
	content := string(xmlData)

	paraRegex := regexp.MustCompile(`<w:p[^>]*>(.*?)</w:p>`)
	textRegex := regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

	paraMatches := paraRegex.FindAllStringSubmatch(content, -1)
	if len(paraMatches) > 0 {
		var result strings.Builder
		for _, para := range paraMatches {
			if len(para) < 2 {
				continue
			}

			var paraText strings.Builder
			for _, tm := range textRegex.FindAllStringSubmatch(para[1], -1) {
				if len(tm) > 1 {
					paraText.WriteString(tm[1])
				}
			}

			text := strings.TrimSpace(paraText.String())
			if text != "" {
				if result.Len() > 0 {
					result.WriteString("\n")
				}
				result.WriteString(text)
			}
		}
		return result.String()
	}

	var texts []string
	for _, match := range textRegex.FindAllStringSubmatch(content, -1) {
		if len(match) > 1 && match[1] != "" {
			texts = append(texts, match[1])
		}
	}
	return strings.Join(texts, " ")
}
