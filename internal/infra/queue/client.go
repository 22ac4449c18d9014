package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"ragchat/internal/config"
	"ragchat/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueProcessDocument(documentID string) error
	EnqueueRebuildIndex() error
	Close() error
}

type asynqClient struct {
	client   *asynq.Client
	maxRetry int
}

// NewClient 创建任务队列客户端
func NewClient(redisCfg config.RedisConfig, queueCfg config.QueueConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisCfg.RedisAddr(),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	return &asynqClient{client: client, maxRetry: queueCfg.MaxRetry}
}

func (c *asynqClient) EnqueueProcessDocument(documentID string) error {
	payload, err := json.Marshal(tasks.ProcessDocumentPayload{DocumentID: documentID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeProcessDocument, payload)

	// 摄取含外部嵌入调用，超时放宽到 10 分钟
	_, err = c.client.Enqueue(task,
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("rag"),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) EnqueueRebuildIndex() error {
	payload, err := json.Marshal(tasks.RebuildIndexPayload{})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeRebuildIndex, payload)

	// 全量重建不重试：失败后旧索引原样保留，由运维重新触发
	_, err = c.client.Enqueue(task,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("rag"),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
