package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"ragchat/internal/rag"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixedEmbedder struct{}

func (p *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func (p *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := p.Embed(ctx, t)
		vectors[i] = v
	}
	return vectors, nil
}

func (p *fixedEmbedder) Dimension() int          { return 2 }
func (p *fixedEmbedder) GetModel() string        { return "test-model" }
func (p *fixedEmbedder) GetProviderName() string { return "test" }

type noopGenerator struct{}

func (g *noopGenerator) Generate(_ context.Context, _ string, _ int) (string, error) {
	return "answer", nil
}

type documentsFixture struct {
	router    *gin.Engine
	db        *gorm.DB
	uploadDir string
}

func newDocumentsFixture(t *testing.T, maxFileSize int64) *documentsFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&rag.UploadedDocument{}))

	handle := rag.NewProviderHandle(true, func() (rag.EmbeddingProvider, error) {
		return &fixedEmbedder{}, nil
	}, zap.NewNop())

	store, err := rag.NewFlatStore(t.TempDir(), handle, zap.NewNop())
	require.NoError(t, err)

	svc := rag.NewRAGService(db, store, rag.NewChunker(rag.DefaultChunkSize, rag.DefaultChunkOverlap), &noopGenerator{}, nil, zap.NewNop())

	uploadDir := t.TempDir()
	handler := NewDocumentHandler(svc, uploadDir, maxFileSize, zap.NewNop())

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/documents", handler.Upload)
	router.GET("/api/documents", handler.List)

	return &documentsFixture{router: router, db: db, uploadDir: uploadDir}
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return &buf, writer.FormDataContentType()
}

func TestDocumentUpload(t *testing.T) {
	t.Run("上传后返回 202 并附带文档信息", func(t *testing.T) {
		fx := newDocumentsFixture(t, 0)
		body, contentType := multipartUpload(t, "handbook.txt", "Employees get 20 vacation days per year.")

		req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		fx.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusAccepted, w.Code)

		var resp struct {
			Success bool `json:"success"`
			Data    struct {
				DocumentID string `json:"document_id"`
				Filename   string `json:"filename"`
				Status     string `json:"status"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.NotEmpty(t, resp.Data.DocumentID)
		assert.Equal(t, "handbook.txt", resp.Data.Filename)
		assert.Equal(t, "indexed", resp.Data.Status)

		// 原件落盘，带 UUID 前缀
		entries, err := os.ReadDir(fx.uploadDir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Contains(t, entries[0].Name(), "handbook.txt")

		var doc rag.UploadedDocument
		require.NoError(t, fx.db.First(&doc, "id = ?", resp.Data.DocumentID).Error)
		assert.Equal(t, "indexed", doc.Status)
		assert.Greater(t, doc.ChunkCount, 0)
	})

	t.Run("缺少文件字段返回 400", func(t *testing.T) {
		fx := newDocumentsFixture(t, 0)

		req := httptest.NewRequest(http.MethodPost, "/api/documents", bytes.NewReader(nil))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		w := httptest.NewRecorder()
		fx.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("超过大小限制返回 413", func(t *testing.T) {
		fx := newDocumentsFixture(t, 8)
		body, contentType := multipartUpload(t, "big.txt", "this content is longer than eight bytes")

		req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		fx.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

		entries, err := os.ReadDir(fx.uploadDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestDocumentList(t *testing.T) {
	t.Run("返回已上传文档列表", func(t *testing.T) {
		fx := newDocumentsFixture(t, 0)

		for _, name := range []string{"a.txt", "b.md"} {
			body, contentType := multipartUpload(t, name, "content for "+name)
			req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()
			fx.router.ServeHTTP(w, req)
			require.Equal(t, http.StatusAccepted, w.Code)
		}

		req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
		w := httptest.NewRecorder()
		fx.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Success bool `json:"success"`
			Data    struct {
				Items []map[string]any `json:"items"`
				Total int              `json:"total"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 2, resp.Data.Total)
		require.Len(t, resp.Data.Items, 2)
		for _, item := range resp.Data.Items {
			assert.NotEmpty(t, item["document_id"])
			assert.Equal(t, "indexed", item["status"])
		}
	})
}
