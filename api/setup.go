package api

import (
	"net/http"
	"time"

	chatHandlers "ragchat/api/handlers/chat"
	documentHandlers "ragchat/api/handlers/documents"
	"ragchat/internal/config"
	"ragchat/internal/generate"
	"ragchat/internal/infra"
	"ragchat/internal/infra/queue"
	"ragchat/internal/logger"
	"ragchat/internal/metrics"
	"ragchat/internal/rag"
	"ragchat/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handlers API 处理器集合
type Handlers struct {
	Chat      *chatHandlers.ChatHandler
	Documents *documentHandlers.DocumentHandler
	Reindex   gin.HandlerFunc
}

// SetupRouter 组装服务依赖并返回 Gin 路由与 Worker 服务器
// queue.mode=inline 时 Worker 为 nil，文档在上传请求内同步摄取。
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *worker.Server, error) {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), CORS(), metrics.PrometheusMiddleware())

	log := logger.Get()

	// 嵌入层：懒初始化句柄，首次使用时才建连
	handle := rag.NewProviderHandle(cfg.Embedding.Enabled, embeddingFactory(cfg), log)

	store, err := rag.NewFlatStore(cfg.Storage.IndexDir, handle, log)
	if err != nil {
		return nil, nil, err
	}

	generator := buildGenerator(cfg, log)

	// 任务队列：asynq 模式走 Redis 异步，inline 模式同步处理
	var queueClient queue.Client
	var workerServer *worker.Server
	var ingestQueue rag.IngestQueue
	if cfg.Queue.Mode == "asynq" {
		queueClient = queue.NewClient(cfg.Redis, cfg.Queue)
		ingestQueue = queueClient
	}

	ragService := rag.NewRAGService(db, store, rag.NewChunker(rag.DefaultChunkSize, rag.DefaultChunkOverlap), generator, ingestQueue, log).
		WithPersona(cfg.Generation.Persona)

	if cfg.Queue.Mode == "asynq" {
		workerServer = worker.NewServer(cfg.Redis, cfg.Queue, ragService, log)
	}

	handlers := &Handlers{
		Chat:      chatHandlers.NewChatHandler(ragService, log),
		Documents: documentHandlers.NewDocumentHandler(ragService, cfg.Storage.UploadDir, cfg.Storage.MaxFileSize, log),
		Reindex:   reindexHandler(ragService, queueClient, log),
	}

	RegisterRoutes(router, db, handlers)
	return router, workerServer, nil
}

// embeddingFactory 根据配置构造嵌入提供者
// 外层包 批量切分 和 两级缓存，调用方拿到的始终是装饰后的提供者。
func embeddingFactory(cfg *config.Config) rag.ProviderFactory {
	return func() (rag.EmbeddingProvider, error) {
		var provider rag.EmbeddingProvider
		var err error

		switch cfg.Embedding.Provider {
		case "custom":
			provider, err = rag.NewCustomEmbeddingProvider(rag.CustomEmbeddingConfig{
				Endpoint:  cfg.Embedding.BaseURL,
				Model:     cfg.Embedding.Model,
				Dimension: cfg.Embedding.Dimension,
				APIKey:    cfg.Embedding.APIKey,
				Timeout:   time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
			})
			if err != nil {
				return nil, err
			}
		default:
			provider = rag.NewOpenAIEmbeddingProvider(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model)
		}

		provider = rag.NewBatchingProvider(provider, cfg.Embedding.BatchSize)

		if cfg.Embedding.CacheEnabled {
			ttl := time.Duration(cfg.Embedding.CacheTTLHours) * time.Hour
			provider = rag.NewCachingProvider(provider, infra.GetRedis(), ttl)
		}
		return provider, nil
	}
}

// buildGenerator 组装分层生成器：远程 API → 本地模型 → 固定回复
func buildGenerator(cfg *config.Config, log *zap.Logger) *generate.Generator {
	var remote generate.Strategy
	if cfg.Generation.RemoteAPIURL != "" {
		client, err := generate.NewHFClient(generate.HFOptions{
			APIURL:   cfg.Generation.RemoteAPIURL,
			APIToken: cfg.Generation.RemoteAPIToken,
			Timeout:  time.Duration(cfg.Generation.RemoteTimeout) * time.Second,
		})
		if err != nil {
			log.Warn("远程生成层初始化失败，跳过", zap.Error(err))
		} else {
			remote = client
		}
	}

	// 本地模型懒加载：受限模式下 NewGenerator 会直接剔除
	local := generate.NewLazyStrategy("ollama", func() (generate.Strategy, error) {
		return generate.NewOllamaClient(generate.OllamaOptions{
			BaseURL: cfg.Generation.OllamaBaseURL,
			Model:   cfg.Generation.OllamaModel,
		})
	})

	return generate.NewGenerator(remote, local, cfg.Generation.Restricted, log)
}

// reindexHandler 全量重建端点
// asynq 模式下入队异步执行，inline 模式同步重建。
func reindexHandler(ragService *rag.RAGService, queueClient queue.Client, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if queueClient != nil {
			if err := queueClient.EnqueueRebuildIndex(); err != nil {
				log.Error("重建任务入队失败", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "rebuild scheduled"})
			return
		}

		if err := ragService.RebuildIndex(c.Request.Context()); err != nil {
			log.Error("全量重建失败", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "rebuild failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "rebuilt"})
	}
}
