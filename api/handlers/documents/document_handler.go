package documents

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	response "ragchat/api/handlers/common"
	"ragchat/internal/rag"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentHandler 文档处理器
type DocumentHandler struct {
	ragService  *rag.RAGService
	uploadDir   string
	maxFileSize int64
	logger      *zap.Logger
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(ragService *rag.RAGService, uploadDir string, maxFileSize int64, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		ragService:  ragService,
		uploadDir:   uploadDir,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Upload 上传文档
// @Summary 上传公司文档并提交索引
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "文档文件 (.txt .md .pdf .docx)"
// @Success 202 {object} response.APIResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 413 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "未找到上传文件: " + err.Error()})
		return
	}
	defer file.Close()

	if h.maxFileSize > 0 && header.Size > h.maxFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, response.ErrorResponse{Success: false, Message: "文件超过大小限制"})
		return
	}

	// 落盘原件，摄取和全量重建都从这份文件重新提取
	dstPath, err := h.saveFile(file, header.Filename)
	if err != nil {
		h.logger.Error("保存上传文件失败", zap.String("filename", header.Filename), zap.Error(err))
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "保存文件失败: " + err.Error()})
		return
	}

	resp, err := h.ragService.UploadDocument(c.Request.Context(), &rag.UploadDocumentRequest{
		FileName:    header.Filename,
		FilePath:    dstPath,
		FileSize:    header.Size,
		ContentType: detectContentType(header.Filename),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "创建文档记录失败: " + err.Error()})
		return
	}

	// 摄取失败只体现在状态字段上，上传本身始终是 202
	c.JSON(http.StatusAccepted, response.APIResponse{Success: true, Message: "文档已提交处理", Data: gin.H{
		"document_id": resp.DocumentID,
		"filename":    resp.FileName,
		"status":      resp.Status,
	}})
}

// List 列出文档
// @Summary 文档列表
// @Tags Documents
// @Produce json
// @Success 200 {object} response.APIResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.ragService.ListDocuments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "查询文档失败: " + err.Error()})
		return
	}

	items := make([]gin.H, 0, len(docs))
	for _, doc := range docs {
		items = append(items, gin.H{
			"document_id": doc.ID,
			"filename":    doc.FileName,
			"status":      doc.Status,
			"chunk_count": doc.ChunkCount,
			"uploaded_at": doc.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: gin.H{"items": items, "total": len(items)}})
}

// saveFile 将上传文件写入存储目录，文件名加 UUID 前缀避免冲突
func (h *DocumentHandler) saveFile(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
		return "", err
	}

	base := filepath.Base(filename)
	dstPath := filepath.Join(h.uploadDir, uuid.New().String()+"_"+base)

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dstPath)
		return "", err
	}
	return dstPath, nil
}

// detectContentType 根据文件扩展名检测内容类型
func detectContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))

	contentTypes := map[string]string{
		".txt":  "text/plain",
		".md":   "text/markdown",
		".pdf":  "application/pdf",
		".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}

	if ct, exists := contentTypes[ext]; exists {
		return ct
	}
	return "application/octet-stream"
}
