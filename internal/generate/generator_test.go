package generate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubStrategy 测试用生成策略
type stubStrategy struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func TestGeneratorTiers(t *testing.T) {
	ctx := context.Background()

	t.Run("首层成功时短路返回", func(t *testing.T) {
		remote := &stubStrategy{name: "remote", text: "remote answer"}
		local := &stubStrategy{name: "local", text: "local answer"}
		g := NewGenerator(remote, local, false, zap.NewNop())

		text, err := g.Generate(ctx, "prompt", 100)
		require.NoError(t, err)
		assert.Equal(t, "remote answer", text)
		assert.Equal(t, 1, remote.calls)
		assert.Equal(t, 0, local.calls)
	})

	t.Run("首层失败时回退到本地层", func(t *testing.T) {
		remote := &stubStrategy{name: "remote", err: errors.New("http 503")}
		local := &stubStrategy{name: "local", text: "local answer"}
		g := NewGenerator(remote, local, false, zap.NewNop())

		text, err := g.Generate(ctx, "prompt", 100)
		require.NoError(t, err)
		assert.Equal(t, "local answer", text)
	})

	t.Run("空输出视为本层失败", func(t *testing.T) {
		remote := &stubStrategy{name: "remote", text: ""}
		local := &stubStrategy{name: "local", text: "local answer"}
		g := NewGenerator(remote, local, false, zap.NewNop())

		text, err := g.Generate(ctx, "prompt", 100)
		require.NoError(t, err)
		assert.Equal(t, "local answer", text)
	})

	t.Run("全部失败返回道歉文案", func(t *testing.T) {
		remote := &stubStrategy{name: "remote", err: errors.New("http 503")}
		local := &stubStrategy{name: "local", err: errors.New("connection refused")}
		g := NewGenerator(remote, local, false, zap.NewNop())

		text, err := g.Generate(ctx, "prompt", 100)
		require.NoError(t, err)
		assert.Equal(t, ApologyMessage, text)
	})

	t.Run("受限模式不触碰本地层", func(t *testing.T) {
		remote := &stubStrategy{name: "remote", err: errors.New("http 503")}
		local := &stubStrategy{name: "local", text: "local answer"}
		g := NewGenerator(remote, local, true, zap.NewNop())

		text, err := g.Generate(ctx, "prompt", 100)
		require.NoError(t, err)
		assert.Equal(t, WarmupMessage, text)
		assert.Equal(t, 0, local.calls)
	})

	t.Run("无任何策略时直接兜底", func(t *testing.T) {
		g := NewGenerator(nil, nil, false, zap.NewNop())
		text, err := g.Generate(ctx, "prompt", 100)
		require.NoError(t, err)
		assert.Equal(t, ApologyMessage, text)
	})

	t.Run("上下文取消原样上抛", func(t *testing.T) {
		remote := &stubStrategy{name: "remote", text: "unused"}
		g := NewGenerator(remote, nil, false, zap.NewNop())

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := g.Generate(cancelled, "prompt", 100)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, remote.calls)
	})

	t.Run("非法长度回退默认值", func(t *testing.T) {
		remote := &stubStrategy{name: "remote", text: "ok"}
		g := NewGenerator(remote, nil, false, zap.NewNop())
		_, err := g.Generate(ctx, "prompt", 0)
		require.NoError(t, err)
	})
}

func TestLazyStrategy(t *testing.T) {
	t.Run("工厂只调用一次", func(t *testing.T) {
		factoryCalls := 0
		inner := &stubStrategy{name: "inner", text: "lazy answer"}
		lazy := NewLazyStrategy("lazy", func() (Strategy, error) {
			factoryCalls++
			return inner, nil
		})

		ctx := context.Background()
		for i := 0; i < 3; i++ {
			text, err := lazy.Generate(ctx, "prompt", 10)
			require.NoError(t, err)
			assert.Equal(t, "lazy answer", text)
		}
		assert.Equal(t, 1, factoryCalls)
	})

	t.Run("初始化失败后续调用稳定报错", func(t *testing.T) {
		wantErr := errors.New("ollama not installed")
		lazy := NewLazyStrategy("lazy", func() (Strategy, error) {
			return nil, wantErr
		})

		ctx := context.Background()
		_, err := lazy.Generate(ctx, "prompt", 10)
		assert.ErrorIs(t, err, wantErr)
		_, err = lazy.Generate(ctx, "prompt", 10)
		assert.ErrorIs(t, err, wantErr)
	})
}
