package main

import (
	"context"
	"flag"
	"log"
	"time"

	"ragchat/internal/config"
	"ragchat/internal/infra"
	"ragchat/internal/logger"
	"ragchat/internal/rag"

	"github.com/joho/godotenv"
)

// 离线全量重建工具：遍历所有已登记文档，重新提取、分块、嵌入，
// 原子替换 index.bin 与 documents.json。与在线 Append 路径互不依赖。
func main() {
	env := flag.String("env", "dev", "配置环境 dev/prod/test")
	timeout := flag.Duration("timeout", 30*time.Minute, "整体超时")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*env, "")
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()

	db, err := infra.InitDatabase(&cfg.Database)
	if err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer infra.CloseDatabase()

	if _, err := infra.InitRedis(&cfg.Redis); err != nil {
		log.Fatalf("初始化 Redis 失败: %v", err)
	}
	defer infra.CloseRedis()

	handle := rag.NewProviderHandle(cfg.Embedding.Enabled, rebuildEmbeddingFactory(cfg), logger.Get())
	store, err := rag.NewFlatStore(cfg.Storage.IndexDir, handle, logger.Get())
	if err != nil {
		log.Fatalf("初始化向量存储失败: %v", err)
	}

	// 重建不需要生成器和队列
	svc := rag.NewRAGService(db, store, rag.NewChunker(rag.DefaultChunkSize, rag.DefaultChunkOverlap), nil, nil, logger.Get())

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := svc.RebuildIndex(ctx); err != nil {
		log.Fatalf("全量重建失败: %v", err)
	}

	count, err := store.Count()
	if err != nil {
		log.Fatalf("读取索引统计失败: %v", err)
	}
	log.Printf("重建完成，索引向量数: %d", count)
}

// rebuildEmbeddingFactory 与服务端相同的嵌入装配，不含进程内缓存热身
func rebuildEmbeddingFactory(cfg *config.Config) rag.ProviderFactory {
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

		return rag.NewBatchingProvider(provider, cfg.Embedding.BatchSize), nil
	}
}
