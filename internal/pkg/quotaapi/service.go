// Package quotaapi serves the Quota Pool Manager's (C5) admin HTTP
// surface: querying an owner's windows and refreshing (upserting) one.
package quotaapi

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
	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/airenas/voxsum/internal/pkg/quota"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Manager is the subset of *quota.Manager this surface drives.
type Manager interface {
	Query(ctx context.Context, owner, provider, variant string) ([]*persistence.QuotaEntry, error)
	Refresh(ctx context.Context, p quota.RefreshParams) (*persistence.QuotaEntry, error)
}

// Data keeps the collaborators the quota service needs.
type Data struct {
	Port    int
	Manager Manager
}

// StartWebServer starts the echo web service.
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msg("starting HTTP quota service")
	if err := validate(data); err != nil {
		return err
	}

	e := initRoutes(data)
	e.Server.Addr = ":" + strconv.Itoa(data.Port)
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 10 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))
	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Manager == nil {
		return fmt.Errorf("no quota manager")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("voxsum_quota", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/quota", query(data))
	e.POST("/quota/refresh", refresh(data))
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

// query implements "quota: query | owner scope | [QuotaEntry]".
func query(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("query quota method")()
		owner := c.QueryParam("owner")
		provider := c.QueryParam("provider")
		variant := c.QueryParam("variant")
		if owner == "" || provider == "" {
			return httpapi.Err(c, apperr.BadParam("owner and provider are required"))
		}
		entries, err := data.Manager.Query(c.Request().Context(), owner, provider, variant)
		if err != nil {
			return httpapi.Err(c, apperr.System(err))
		}
		return httpapi.OK(c, map[string]any{"items": entries})
	}
}

type refreshReq struct {
	Owner       string     `json:"owner"`
	Provider    string     `json:"provider"`
	Variant     string     `json:"variant"`
	WindowType  string     `json:"window_type"`
	QuotaSec    float64    `json:"quota_seconds"`
	QuotaHours  float64    `json:"quota_hours"`
	WindowStart *time.Time `json:"window_start"`
	WindowEnd   *time.Time `json:"window_end"`
	Reset       bool       `json:"reset"`
}

// refresh implements "quota: refresh | owner, provider, variant,
// window_type, quota_(seconds|hours), [window_start, window_end], reset |
// upsert entry".
func refresh(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("refresh quota method")()
		var req refreshReq
		if err := c.Bind(&req); err != nil {
			return httpapi.Err(c, apperr.BadParam("invalid request body"))
		}
		if req.Owner == "" || req.Provider == "" || req.WindowType == "" {
			return httpapi.Err(c, apperr.BadParam("owner, provider and window_type are required"))
		}
		quotaSec := req.QuotaSec
		if quotaSec == 0 && req.QuotaHours > 0 {
			quotaSec = req.QuotaHours * 3600
		}
		entry, err := data.Manager.Refresh(c.Request().Context(), quota.RefreshParams{
			Owner: req.Owner, Provider: req.Provider, Variant: req.Variant, WindowType: req.WindowType,
			QuotaSec: quotaSec, WindowStart: req.WindowStart, WindowEnd: req.WindowEnd, Reset: req.Reset,
		})
		if err != nil {
			return httpapi.Err(c, apperr.System(err))
		}
		return httpapi.OK(c, entry)
	}
}
