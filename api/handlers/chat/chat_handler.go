package chat

import (
	"errors"
	"net/http"
	"strings"

	response "ragchat/api/handlers/common"
	"ragchat/internal/rag"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ChatHandler 问答处理器
type ChatHandler struct {
	ragService *rag.RAGService
	logger     *zap.Logger
}

// NewChatHandler 创建问答处理器
func NewChatHandler(ragService *rag.RAGService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		ragService: ragService,
		logger:     logger,
	}
}

// ChatRequest 问答请求
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse 问答响应
type ChatResponse struct {
	Reply   string   `json:"reply"`
	Sources []string `json:"sources"`
}

// Chat 基于文档知识回答问题
// @Summary 公司知识问答
// @Tags Chat
// @Accept json
// @Produce json
// @Param request body ChatRequest true "用户问题"
// @Success 200 {object} ChatResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "no message provided"})
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "no message provided"})
		return
	}

	result, err := h.ragService.Answer(c.Request.Context(), req.Message)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuery) {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "no message provided"})
			return
		}

		// 生成失败时仍然带回来源，便于前端提示用户参考哪些文档
		var answerErr *rag.AnswerError
		if errors.As(err, &answerErr) {
			h.logger.Error("生成回答失败", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "answer generation failed",
				"sources": answerErr.Sources,
			})
			return
		}

		h.logger.Error("问答处理失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "internal error"})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		Reply:   result.Reply,
		Sources: result.Sources,
	})
}
