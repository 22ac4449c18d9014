// Package generate 实现多级回退的回答生成编排。
// 各级能力建模为有序策略列表，编排器依次尝试并返回第一个成功结果，
// 替代层层嵌套的异常处理。
package generate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/metrics"
)

// Strategy 一级生成能力
type Strategy interface {
	Name() string
	Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error)
}

// DefaultMaxNewTokens 默认生成长度
const DefaultMaxNewTokens = 200

// 固定回复文案
const (
	// WarmupMessage 受限(生产)模式下远程失败时的静态回复，
	// 避免在小内存实例上触发本地推理。
	WarmupMessage = "The answer service is still warming up, please try again in a moment."

	// ApologyMessage 所有层级都失败后的兜底回复。
	ApologyMessage = "Sorry, I couldn't generate an answer right now."
)

// Generator 按序尝试各级生成策略
// 受限模式下只尝试远程层，失败直接返回 WarmupMessage；
// 非受限模式下继续尝试本地层，最终兜底为 ApologyMessage。
type Generator struct {
	strategies []Strategy
	restricted bool
	logger     *zap.Logger
}

// NewGenerator 创建生成编排器
// remote 为必选远程层；local 为本地回退层，受限模式下即使提供也不会被调用。
func NewGenerator(remote, local Strategy, restricted bool, logger *zap.Logger) *Generator {
	strategies := make([]Strategy, 0, 2)
	if remote != nil {
		strategies = append(strategies, remote)
	}
	if local != nil && !restricted {
		strategies = append(strategies, local)
	}
	return &Generator{
		strategies: strategies,
		restricted: restricted,
		logger:     logger,
	}
}

// Generate 生成回答文本
// 恰好返回一层的输出：前面的层按序尝试，第一个成功者短路返回。
// 单层失败只在内部记 warn，不单独上抛。
func (g *Generator) Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	if maxNewTokens <= 0 {
		maxNewTokens = DefaultMaxNewTokens
	}

	for _, strategy := range g.strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		start := time.Now()
		text, err := strategy.Generate(ctx, prompt, maxNewTokens)
		metrics.GenerationDuration.WithLabelValues(strategy.Name()).Observe(time.Since(start).Seconds())
		if err == nil && text != "" {
			metrics.GenerationTotal.WithLabelValues(strategy.Name(), "success").Inc()
			return text, nil
		}
		metrics.GenerationTotal.WithLabelValues(strategy.Name(), "failed").Inc()
		g.logger.Warn("生成层失败，切换下一层",
			zap.String("tier", strategy.Name()),
			zap.Error(err),
		)
	}

	metrics.GenerationTotal.WithLabelValues("static", "success").Inc()
	if g.restricted {
		return WarmupMessage, nil
	}
	return ApologyMessage, nil
}

// LazyStrategy 懒初始化的策略包装
// 底层能力在首次调用时构造一次并缓存整个进程生命周期，
// 并发首次调用由 sync.Once 保护。
type LazyStrategy struct {
	name    string
	factory func() (Strategy, error)

	once     sync.Once
	strategy Strategy
	initErr  error
}

// NewLazyStrategy 创建懒初始化包装
func NewLazyStrategy(name string, factory func() (Strategy, error)) *LazyStrategy {
	return &LazyStrategy{name: name, factory: factory}
}

// Name 策略名
func (l *LazyStrategy) Name() string { return l.name }

// Generate 首次调用时初始化底层能力
func (l *LazyStrategy) Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	l.once.Do(func() {
		l.strategy, l.initErr = l.factory()
	})
	if l.initErr != nil {
		return "", l.initErr
	}
	return l.strategy.Generate(ctx, prompt, maxNewTokens)
}
