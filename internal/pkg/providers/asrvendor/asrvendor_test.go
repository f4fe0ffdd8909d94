package asrvendor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/airenas/voxsum/internal/pkg/provider"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	c := newClient("vendor_test", url, "key")
	c.backoff = func() backoff.BackOff { return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 1) }
	return c
}

func Test_Transcribe_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"segments":[{"start":0,"end":1.5,"text":"hello","speaker_id":"spk1"}],"duration_seconds":1.5}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.Transcribe(context.Background(), provider.AudioSource{Reader: strings.NewReader("data")},
		provider.TranscribeOptions{Language: "en"})
	require.Nil(t, err)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, "hello", res.Segments[0].Content)
	assert.Equal(t, "spk1", res.Segments[0].SpeakerID)
	assert.Equal(t, 1.5, res.DurationSeconds)
}

func Test_Transcribe_DurationFallsBackToHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"segments":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.Transcribe(context.Background(), provider.AudioSource{Reader: strings.NewReader("d"), DurationHint: 9.0},
		provider.TranscribeOptions{})
	require.Nil(t, err)
	assert.Equal(t, 9.0, res.DurationSeconds)
}

func Test_Transcribe_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Transcribe(context.Background(), provider.AudioSource{Reader: strings.NewReader("d")}, provider.TranscribeOptions{})
	require.NotNil(t, err)
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrQuotaExceeded, perr.Kind)
	assert.False(t, perr.Retriable())
}

func Test_Transcribe_BadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Transcribe(context.Background(), provider.AudioSource{Reader: strings.NewReader("d")}, provider.TranscribeOptions{})
	require.NotNil(t, err)
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrInvalidFormat, perr.Kind)
}

func Test_Transcribe_ServerErrorRetriesThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Transcribe(context.Background(), provider.AudioSource{Reader: strings.NewReader("d")}, provider.TranscribeOptions{})
	require.NotNil(t, err)
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrTransient, perr.Kind)
	assert.True(t, calls >= 2, "expected at least one retry, got %d calls", calls)
}
