package llmvendor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/airenas/voxsum/internal/pkg/provider"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	c := newClient("vendor_test", url, "key", "test-model")
	c.backoff = func() backoff.BackOff { return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 1) }
	return c
}

func Test_ModelName(t *testing.T) {
	c := newTestClient("http://unused")
	assert.Equal(t, "test-model", c.ModelName())
}

func Test_EstimateCost(t *testing.T) {
	c := newTestClient("http://unused")
	assert.Equal(t, float64(300)*0.000002, c.EstimateCost(100, 200))
}

func Test_Chat_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi there"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.Chat(context.Background(), []provider.ChatMessage{{Role: "user", Content: "hi"}}, provider.GenParams{})
	require.Nil(t, err)
	assert.Equal(t, "hi there", out)
}

func Test_Chat_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Chat(context.Background(), []provider.ChatMessage{{Role: "user", Content: "hi"}}, provider.GenParams{})
	require.NotNil(t, err)
}

func Test_Generate_DelegatesToChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"generated"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.Generate(context.Background(), "write a poem", provider.GenParams{})
	require.Nil(t, err)
	assert.Equal(t, "generated", out)
}

func Test_Chat_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Chat(context.Background(), nil, provider.GenParams{})
	require.NotNil(t, err)
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrQuotaExceeded, perr.Kind)
}

func Test_ChatStream_EmitsChunksThenDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fl := w.(http.Flusher)
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n"))
		fl.Flush()
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n"))
		fl.Flush()
		_, _ = w.Write([]byte("data: [DONE]\n"))
		fl.Flush()
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ch, err := c.ChatStream(context.Background(), []provider.ChatMessage{{Role: "user", Content: "hi"}}, provider.GenParams{})
	require.Nil(t, err)

	var got []string
	done := false
	for chunk := range ch {
		if chunk.Done {
			done = true
			continue
		}
		got = append(got, chunk.Text)
	}
	assert.True(t, done)
	assert.Equal(t, []string{"hel", "lo"}, got)
}

func Test_ChatStream_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.ChatStream(context.Background(), nil, provider.GenParams{})
	require.NotNil(t, err)
}
