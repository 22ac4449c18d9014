package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragchat_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragchat_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 文档摄取指标
var (
	// IngestTotal 文档摄取总数
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragchat_ingest_total",
			Help: "文档摄取总数",
		},
		[]string{"status"},
	)

	// ChunksIndexed 已索引文本块总数
	ChunksIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ragchat_chunks_indexed_total",
			Help: "已写入索引的文本块总数",
		},
	)

	// EmbeddingRequestsTotal 嵌入请求总数
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragchat_embedding_requests_total",
			Help: "嵌入 API 请求总数",
		},
		[]string{"provider", "status"},
	)
)

// 检索与生成指标
var (
	// SearchesTotal 检索总数
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragchat_searches_total",
			Help: "向量检索总数",
		},
		[]string{"status"},
	)

	// SearchDuration 检索耗时（秒），含查询嵌入
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ragchat_search_duration_seconds",
			Help:    "向量检索耗时分布",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
	)

	// GenerationTotal 按策略与结果统计的回答生成次数
	GenerationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragchat_generation_total",
			Help: "回答生成总数",
		},
		[]string{"strategy", "status"},
	)

	// GenerationDuration 回答生成耗时（秒）
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragchat_generation_duration_seconds",
			Help:    "回答生成耗时分布",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 60, 120},
		},
		[]string{"strategy"},
	)
)
