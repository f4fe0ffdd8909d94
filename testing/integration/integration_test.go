//go:build integration
// +build integration

package integration

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type config struct {
	uploadURL   string
	resultURL   string
	progressURL string
	cleanURL    string
	dbURL       string
	httpclient  *http.Client
}

var cfg config

func TestMain(m *testing.M) {
	cfg.uploadURL = GetEnvOrFail("UPLOAD_URL")
	cfg.resultURL = GetEnvOrFail("RESULT_URL")
	cfg.progressURL = GetEnvOrFail("PROGRESS_URL")
	cfg.cleanURL = GetEnvOrFail("CLEAN_URL")
	cfg.dbURL = GetEnvOrFail("DB_URL")
	cfg.httpclient = &http.Client{Timeout: time.Second * 30}

	tCtx, cf := context.WithTimeout(context.Background(), time.Second*20)
	defer cf()
	WaitForOpenOrFail(tCtx, cfg.dbURL)
	WaitForOpenOrFail(tCtx, cfg.uploadURL)
	WaitForOpenOrFail(tCtx, cfg.resultURL)
	WaitForOpenOrFail(tCtx, cfg.progressURL)
	WaitForOpenOrFail(tCtx, cfg.cleanURL)
	waitForDB(tCtx, cfg.dbURL)

	os.Exit(m.Run())
}

func TestUploadLive(t *testing.T) {
	t.Parallel()
	CheckCode(t, Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.uploadURL, "/live", nil)), http.StatusOK)
}

func TestResultLive(t *testing.T) {
	t.Parallel()
	CheckCode(t, Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.resultURL, "/live", nil)), http.StatusOK)
}

func TestProgressLive(t *testing.T) {
	t.Parallel()
	CheckCode(t, Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.progressURL, "/live", nil)), http.StatusOK)
}

func TestCleanLive(t *testing.T) {
	t.Parallel()
	CheckCode(t, Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.cleanURL, "/live", nil)), http.StatusOK)
}

type envelope[T any] struct {
	Code int `json:"code"`
	Data T   `json:"data"`
}

type taskResp struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int32  `json:"progress"`
}

func TestGetTask_NotFound(t *testing.T) {
	t.Parallel()
	resp := Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.uploadURL, "/tasks/does-not-exist", nil))
	CheckCode(t, resp, http.StatusOK)
	var env envelope[taskResp]
	Decode(t, resp, &env)
	assert.Equal(t, 40400, env.Code)
}

func TestCreateTask_URL_LifecycleUntilDispatched(t *testing.T) {
	t.Parallel()
	req := NewRequest(t, http.MethodPost, cfg.uploadURL, "/tasks", map[string]any{
		"title": "integration test task", "source_type": "url",
		"source_url": "https://example.com/sample.mp3",
		"options":    map[string]any{"language": "en", "summary_style": "meeting"},
	})
	req.Header.Set("x-user-id", "integration-user")
	resp := Invoke(t, cfg.httpclient, req)
	CheckCode(t, resp, http.StatusOK)

	var env envelope[taskResp]
	Decode(t, resp, &env)
	require.NotEmpty(t, env.Data.ID)
	assert.Equal(t, "pending", env.Data.Status)

	getReq := NewRequest(t, http.MethodGet, cfg.uploadURL, "/tasks/"+env.Data.ID, nil)
	getReq.Header.Set("x-user-id", "integration-user")
	getResp := Invoke(t, cfg.httpclient, getReq)
	CheckCode(t, getResp, http.StatusOK)

	delReq := NewRequest(t, http.MethodDelete, cfg.uploadURL, "/tasks/"+env.Data.ID, nil)
	delReq.Header.Set("x-user-id", "integration-user")
	CheckCode(t, Invoke(t, cfg.httpclient, delReq), http.StatusOK)
}
