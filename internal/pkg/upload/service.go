// Package upload serves the task-intake HTTP surface: presigning direct
// uploads, creating tasks (with content-hash dedup), listing, reading,
// and soft-deleting them.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/google/uuid"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/apperr"
	"github.com/airenas/voxsum/internal/pkg/httpapi"
	"github.com/airenas/voxsum/internal/pkg/messages"
	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/airenas/voxsum/internal/pkg/postgres"
	"github.com/airenas/voxsum/internal/pkg/provider"
	"github.com/airenas/voxsum/internal/pkg/selector"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// presignTTL bounds how long a presigned upload URL stays valid.
const presignTTL = 5 * time.Minute

// DB is the subset of the task repository this surface needs.
type DB interface {
	InsertTask(ctx context.Context, t *persistence.Task) error
	FindTaskByContentHash(ctx context.Context, userID, hash string) (*persistence.Task, error)
	LoadTask(ctx context.Context, id string) (*persistence.Task, error)
	ListTasks(ctx context.Context, f postgres.ListTasksFilter) ([]*persistence.Task, int, error)
	SoftDeleteTask(ctx context.Context, id string) error
}

// MsgSender enqueues a newly created task into the stage pipeline.
type MsgSender interface {
	SendMessage(ctx context.Context, msg any, queue string) error
}

// Selector picks a storage provider for the presign call, satisfied by
// *selector.Selector.
type Selector interface {
	Select(ctx context.Context, req selector.Request) (*selector.Selected, error)
}

// Data keeps the collaborators the upload service needs.
type Data struct {
	Port      int
	DB        DB
	Selector  Selector
	MsgSender MsgSender
}

// StartWebServer starts the echo web service.
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msg("starting HTTP upload service")
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)
	e := initRoutes(data)
	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))
	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Selector == nil {
		return fmt.Errorf("no selector")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("voxsum_upload", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/tasks/presign", presign(data))
	e.POST("/tasks", createTask(data))
	e.GET("/tasks", listTasks(data))
	e.GET("/tasks/:id", getTask(data))
	e.DELETE("/tasks/:id", deleteTask(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func userID(c echo.Context) string {
	return c.Request().Header.Get("x-user-id")
}

type presignReq struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentHash string `json:"content_hash"`
}

type presignResp struct {
	Exists    bool   `json:"exists"`
	TaskID    string `json:"task_id,omitempty"`
	UploadURL string `json:"upload_url,omitempty"`
	FileKey   string `json:"file_key,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// presign implements the "presign upload" operation: dedup by content
// hash against the caller's own non-deleted, non-failed tasks, otherwise hand back a
// direct-to-bucket PUT URL under a content-addressed key.
func presign(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("presign method")()
		ctx := c.Request().Context()
		uid := userID(c)

		var req presignReq
		if err := c.Bind(&req); err != nil {
			return httpapi.Err(c, apperr.BadParam("invalid request body"))
		}
		if req.Filename == "" || req.SizeBytes <= 0 {
			return httpapi.Err(c, apperr.BadParam("filename and size_bytes are required"))
		}

		if req.ContentHash != "" {
			existing, err := data.DB.FindTaskByContentHash(ctx, uid, req.ContentHash)
			if err != nil {
				return httpapi.Err(c, apperr.System(err))
			}
			if existing != nil {
				return httpapi.OK(c, presignResp{Exists: true, TaskID: existing.ID})
			}
		}

		sel, err := data.Selector.Select(ctx, selector.Request{ServiceType: provider.ServiceStorage, Owner: uid})
		if err != nil {
			return httpapi.Err(c, apperr.Wrap(apperr.CodeSystem, "no storage provider available", err))
		}
		store, ok := sel.Client.(provider.Storage)
		if !ok {
			return httpapi.Err(c, apperr.System(fmt.Errorf("provider %s does not implement Storage", sel.ProviderName)))
		}

		key := objectKey(req.ContentHash, req.Filename)
		url, err := store.PresignPut(ctx, key, presignTTL, req.ContentType)
		if err != nil {
			return httpapi.Err(c, apperr.Vendor(sel.ProviderName, err))
		}

		return httpapi.OK(c, presignResp{Exists: false, UploadURL: url, FileKey: key, ExpiresIn: int(presignTTL.Seconds())})
	}
}

func objectKey(hash, filename string) string {
	now := time.Now().UTC()
	id := hash
	if id == "" {
		sum := sha256.Sum256([]byte(filename + now.String()))
		id = hex.EncodeToString(sum[:])
	}
	ext := extOf(filename)
	return fmt.Sprintf("uploads/%04d/%02d/%s%s", now.Year(), now.Month(), id, ext)
}

func extOf(filename string) string {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			return filename[i:]
		}
		if filename[i] == '/' {
			break
		}
	}
	return ""
}

type createTaskReq struct {
	Title       string             `json:"title"`
	SourceType  string             `json:"source_type"`
	FileKey     string             `json:"file_key"`
	SourceURL   string             `json:"source_url"`
	ContentHash string             `json:"content_hash"`
	Options     persistence.Options `json:"options"`
}

type taskResp struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int32  `json:"progress"`
}

// createTask implements the "create task" operation, enqueuing the new
// task for pipeline extraction.
func createTask(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("createTask method")()
		ctx := c.Request().Context()
		uid := userID(c)

		var req createTaskReq
		if err := c.Bind(&req); err != nil {
			return httpapi.Err(c, apperr.BadParam("invalid request body"))
		}

		task := &persistence.Task{
			ID: uuid.New().String(), UserID: uid, Title: req.Title, Options: req.Options,
			Status: "pending", Created: time.Now(), Updated: time.Now(),
		}
		switch req.SourceType {
		case "upload":
			if req.FileKey == "" {
				return httpapi.Err(c, apperr.BadParam("file_key is required for upload source"))
			}
			task.Source = persistence.SourceUpload
			task.FileKey.String, task.FileKey.Valid = req.FileKey, true
		case "url":
			if req.SourceURL == "" {
				return httpapi.Err(c, apperr.BadParam("source_url is required for url source"))
			}
			task.Source = persistence.SourceURL
			task.SourceURL.String, task.SourceURL.Valid = req.SourceURL, true
		default:
			return httpapi.Err(c, apperr.BadParam("source_type must be 'upload' or 'url'"))
		}
		if req.ContentHash != "" {
			task.ContentHash.String, task.ContentHash.Valid = req.ContentHash, true
		}

		if err := data.DB.InsertTask(ctx, task); err != nil {
			return httpapi.Err(c, apperr.System(err))
		}
		if err := data.MsgSender.SendMessage(ctx, messages.NewTaskMessage(task.ID), messages.Extract); err != nil {
			return httpapi.Err(c, apperr.System(err))
		}

		return httpapi.OK(c, taskResp{ID: task.ID, Status: task.Status, Progress: 0})
	}
}

func listTasks(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("listTasks method")()
		page, _ := strconv.Atoi(c.QueryParam("page"))
		pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
		if pageSize <= 0 || pageSize > 100 {
			pageSize = 20
		}
		if page <= 0 {
			page = 1
		}
		tasks, total, err := data.DB.ListTasks(c.Request().Context(), postgres.ListTasksFilter{
			UserID: userID(c), Status: c.QueryParam("status"), Page: page, PageSize: pageSize,
		})
		if err != nil {
			return httpapi.Err(c, apperr.System(err))
		}
		return httpapi.OK(c, map[string]any{"items": tasks, "total": total, "page": page, "page_size": pageSize})
	}
}

func getTask(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("getTask method")()
		id := c.Param("id")
		task, err := data.DB.LoadTask(c.Request().Context(), id)
		if err != nil {
			return httpapi.Err(c, apperr.System(err))
		}
		if task == nil {
			return httpapi.Err(c, apperr.NotFound("task %s not found", id))
		}
		if task.UserID != "" && task.UserID != userID(c) {
			return httpapi.Err(c, apperr.New(apperr.CodeForbidden, "not the task owner"))
		}
		return httpapi.OK(c, task)
	}
}

func deleteTask(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("deleteTask method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		task, err := data.DB.LoadTask(ctx, id)
		if err != nil {
			return httpapi.Err(c, apperr.System(err))
		}
		if task == nil {
			return httpapi.Err(c, apperr.NotFound("task %s not found", id))
		}
		if task.UserID != "" && task.UserID != userID(c) {
			return httpapi.Err(c, apperr.New(apperr.CodeForbidden, "not the task owner"))
		}
		if err := data.DB.SoftDeleteTask(ctx, id); err != nil {
			return httpapi.Err(c, apperr.System(err))
		}
		return httpapi.OK(c, nil)
	}
}
