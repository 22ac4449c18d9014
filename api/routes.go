package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, db *gorm.DB, h *Handlers) {
	// 系统端点
	router.GET("/healthz", HealthCheck())
	router.GET("/ready", ReadinessCheck(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 业务 API
	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/chat", h.Chat.Chat)
		apiGroup.POST("/documents", h.Documents.Upload)
		apiGroup.GET("/documents", h.Documents.List)
	}

	// 运维 API
	admin := router.Group("/admin")
	{
		admin.POST("/reindex", h.Reindex)
	}
}
