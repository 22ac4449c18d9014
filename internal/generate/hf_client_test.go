package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHFClientGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("数组形状响应", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req hfRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "the prompt", req.Inputs)
			assert.Equal(t, 150, req.Parameters.MaxNewTokens)

			w.Write([]byte(`[{"generated_text":"  an answer  "}]`))
		}))
		defer server.Close()

		client, err := NewHFClient(HFOptions{APIURL: server.URL})
		require.NoError(t, err)

		text, err := client.Generate(ctx, "the prompt", 150)
		require.NoError(t, err)
		assert.Equal(t, "an answer", text)
	})

	t.Run("对象形状响应", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"generated_text":"object answer"}`))
		}))
		defer server.Close()

		client, err := NewHFClient(HFOptions{APIURL: server.URL})
		require.NoError(t, err)

		text, err := client.Generate(ctx, "prompt", 10)
		require.NoError(t, err)
		assert.Equal(t, "object answer", text)
	})

	t.Run("携带Bearer令牌", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
			w.Write([]byte(`[{"generated_text":"ok"}]`))
		}))
		defer server.Close()

		client, err := NewHFClient(HFOptions{APIURL: server.URL, APIToken: "secret-token"})
		require.NoError(t, err)

		_, err = client.Generate(ctx, "prompt", 10)
		require.NoError(t, err)
	})

	t.Run("非200状态码报错", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"model loading"}`))
		}))
		defer server.Close()

		client, err := NewHFClient(HFOptions{APIURL: server.URL})
		require.NoError(t, err)

		_, err = client.Generate(ctx, "prompt", 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("形状异常报错", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"unexpected":"shape"}`))
		}))
		defer server.Close()

		client, err := NewHFClient(HFOptions{APIURL: server.URL})
		require.NoError(t, err)

		_, err = client.Generate(ctx, "prompt", 10)
		require.Error(t, err)
	})

	t.Run("API地址必填", func(t *testing.T) {
		_, err := NewHFClient(HFOptions{})
		assert.Error(t, err)
	})
}

func TestOllamaClientGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("正常响应", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/generate", r.URL.Path)

			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "llama3", req["model"])
			assert.Equal(t, false, req["stream"])

			w.Write([]byte(`{"response":"local answer"}`))
		}))
		defer server.Close()

		client, err := NewOllamaClient(OllamaOptions{BaseURL: server.URL, Model: "llama3"})
		require.NoError(t, err)

		text, err := client.Generate(ctx, "prompt", 50)
		require.NoError(t, err)
		assert.Equal(t, "local answer", text)
	})

	t.Run("错误字段上抛", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":"model not found"}`))
		}))
		defer server.Close()

		client, err := NewOllamaClient(OllamaOptions{BaseURL: server.URL, Model: "llama3"})
		require.NoError(t, err)

		_, err = client.Generate(ctx, "prompt", 50)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model not found")
	})

	t.Run("model必填", func(t *testing.T) {
		_, err := NewOllamaClient(OllamaOptions{})
		assert.Error(t, err)
	})
}
