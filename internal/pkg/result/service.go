// Package result serves the transcript/summary retrieval HTTP surface:
// reading a task's transcript segments, its active summaries, and
// enqueuing on-demand visualization generation.
package result

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/apperr"
	"github.com/airenas/voxsum/internal/pkg/httpapi"
	"github.com/airenas/voxsum/internal/pkg/messages"
	"github.com/airenas/voxsum/internal/pkg/persistence"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DB is the subset of the task/transcript/summary repository this
// surface needs.
type DB interface {
	LoadTask(ctx context.Context, id string) (*persistence.Task, error)
	ListTranscriptSegments(ctx context.Context, taskID string, page, pageSize int) ([]*persistence.TranscriptSegment, int, error)
	ListActiveSummaries(ctx context.Context, taskID string) ([]*persistence.Summary, error)
}

// MsgSender enqueues the on-demand visualization-generation request.
type MsgSender interface {
	SendMessage(ctx context.Context, msg any, queue string) error
}

// Data keeps the collaborators the result service needs.
type Data struct {
	Port      int
	DB        DB
	MsgSender MsgSender
}

// StartWebServer starts the echo web service.
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msg("starting HTTP result service")
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
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("voxsum_result", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/tasks/:id/transcript", getTranscript(data))
	e.GET("/tasks/:id/summaries", getSummaries(data))
	e.POST("/tasks/:id/visualize", visualize(data))
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

func loadOwnedTask(ctx context.Context, data *Data, c echo.Context, id string) (*persistence.Task, error) {
	task, err := data.DB.LoadTask(ctx, id)
	if err != nil {
		return nil, apperr.System(err)
	}
	if task == nil {
		return nil, apperr.NotFound("task %s not found", id)
	}
	if task.UserID != "" && task.UserID != userID(c) {
		return nil, apperr.New(apperr.CodeForbidden, "not the task owner")
	}
	return task, nil
}

func getTranscript(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("getTranscript method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		if _, err := loadOwnedTask(ctx, data, c, id); err != nil {
			return httpapi.Err(c, err)
		}

		page, _ := strconv.Atoi(c.QueryParam("page"))
		pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
		if page <= 0 {
			page = 1
		}
		if pageSize <= 0 || pageSize > 500 {
			pageSize = 100
		}

		segs, total, err := data.DB.ListTranscriptSegments(ctx, id, page, pageSize)
		if err != nil {
			return httpapi.Err(c, apperr.System(err))
		}
		return httpapi.OK(c, map[string]any{"items": segs, "total": total, "page": page, "page_size": pageSize})
	}
}

func getSummaries(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("getSummaries method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		if _, err := loadOwnedTask(ctx, data, c, id); err != nil {
			return httpapi.Err(c, err)
		}

		summaries, err := data.DB.ListActiveSummaries(ctx, id)
		if err != nil {
			return httpapi.Err(c, apperr.System(err))
		}
		return httpapi.OK(c, map[string]any{"items": summaries})
	}
}

type visualizeReq struct {
	VisualType    string `json:"visual_type"`
	ContentStyle  string `json:"content_style"`
	Provider      string `json:"provider"`
	ModelID       string `json:"model_id"`
	GenerateImage bool   `json:"generate_image"`
	ImageFormat   string `json:"image_format"`
}

var validVisualTypes = map[string]bool{"visual_mindmap": true, "visual_timeline": true, "visual_flowchart": true}

// visualize implements the "generate visualization" operation: it only
// enqueues the request, it does not wait for the diagram to be produced.
func visualize(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("visualize method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		if _, err := loadOwnedTask(ctx, data, c, id); err != nil {
			return httpapi.Err(c, err)
		}

		var req visualizeReq
		if err := c.Bind(&req); err != nil {
			return httpapi.Err(c, apperr.BadParam("invalid request body"))
		}
		if !validVisualTypes[req.VisualType] {
			return httpapi.Err(c, apperr.BadParam("visual_type must be one of visual_mindmap, visual_timeline, visual_flowchart"))
		}

		msg := messages.VisualizeMessage{
			TaskID: id, VisualType: req.VisualType, ContentStyle: req.ContentStyle,
			Provider: req.Provider, ModelID: req.ModelID,
			GenerateImage: req.GenerateImage, ImageFormat: req.ImageFormat,
		}
		if err := data.MsgSender.SendMessage(ctx, msg, messages.Visualize); err != nil {
			return httpapi.Err(c, apperr.System(err))
		}
		return httpapi.OK(c, map[string]any{"enqueued": true})
	}
}
