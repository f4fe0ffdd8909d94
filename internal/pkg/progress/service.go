package progress

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/apperr"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Data keeps the collaborators the progress HTTP/WS service needs.
type Data struct {
	Port        int
	Broadcaster *Broadcaster
}

// StartWebServer starts the echo web service serving the progress stream.
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msg("starting HTTP progress service")
	if err := validate(data); err != nil {
		return err
	}

	e := initRoutes(data)
	e.Server.Addr = ":" + strconv.Itoa(data.Port)
	e.Server.ReadHeaderTimeout = 5 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))
	return gracehttp.Serve(e.Server)
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("voxsum_progress", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/tasks/:id/progress", subscribeHandler(data))
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

func validate(data *Data) error {
	if data.Broadcaster == nil {
		return fmt.Errorf("no broadcaster")
	}
	return nil
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscribeHandler upgrades the connection to a websocket and streams
// task_id's progress events, in publish order, until the subscriber
// disconnects or a terminal event (completed/error) has been sent.
func subscribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no task id")
		}
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Msg("can't upgrade websocket")
			return err
		}
		defer ws.Close()

		ch, unsub := data.Broadcaster.Subscribe(id)
		defer unsub()

		traceID := uuid.New().String()
		for ev := range ch {
			env := apperr.OK(ev, traceID)
			if err := ws.WriteJSON(env); err != nil {
				goapp.Log.Warn().Err(err).Str("taskID", id).Msg("can't write to ws, closing")
				return nil
			}
			if ev.Type == TypeCompleted || ev.Type == TypeError {
				return nil
			}
		}
		return nil
	}
}
