package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/breaker"
	"github.com/airenas/voxsum/internal/pkg/cost"
	"github.com/airenas/voxsum/internal/pkg/health"
	"github.com/airenas/voxsum/internal/pkg/media"
	"github.com/airenas/voxsum/internal/pkg/orchestrator"
	"github.com/airenas/voxsum/internal/pkg/postgres"
	"github.com/airenas/voxsum/internal/pkg/progress"
	_ "github.com/airenas/voxsum/internal/pkg/providers/asrvendor"
	_ "github.com/airenas/voxsum/internal/pkg/providers/llmvendor"
	_ "github.com/airenas/voxsum/internal/pkg/providers/storagevendor"
	"github.com/airenas/voxsum/internal/pkg/quota"
	"github.com/airenas/voxsum/internal/pkg/registry"
	"github.com/airenas/voxsum/internal/pkg/selector"
	"github.com/airenas/voxsum/internal/pkg/stage"
	"github.com/airenas/voxsum/internal/pkg/summary"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"

	"github.com/airenas/voxsum/internal/pkg/worker"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.GetString("redis.addr"), Password: cfg.GetString("redis.password")})

	gueClient, err := gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	sender, err := postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}

	healthMonitor := health.New()
	breakerMgr := breaker.NewManager(healthMonitor)
	quotaMgr := quota.New(db)
	costTracker := cost.New(rdb, db)
	reg := registry.Default
	sel := selector.New(reg, healthMonitor, breakerMgr, costTracker, quotaMgr)
	stageMachine := stage.New(db)
	summaryGen := summary.New(db)
	progressBroadcaster := progress.New()

	transcoder, err := media.NewTranscoder(cfg.GetString("ffmpeg.bin"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init transcoder")
	}

	orc := orchestrator.New(orchestrator.Deps{
		Tasks: db, Stages: stageMachine, Selector: sel, Health: healthMonitor,
		Breaker: breakerMgr, Quota: quotaMgr, Cost: costTracker, Registry: reg,
		Summaries: summaryGen, Progress: progressBroadcaster, Informer: sender,
		Resolver: media.NewResolver(), Downloader: media.NewDownloader(cfg.GetInt64("download.maxBytes")),
		Transcoder: transcoder, TempDir: defaultV(cfg.GetString("worker.tempDir"), os.TempDir()),
	})

	data := &worker.ServiceData{
		GueClient: gueClient, WorkerCount: defaultV(cfg.GetInt("worker.count"), 1),
		MsgSender: sender, Orchestrator: orc, Testing: cfg.GetBool("worker.testing"),
	}

	printBanner()

	runCtx, cancelFunc := context.WithCancel(context.Background())
	doneCh, err := worker.StartWorkerService(runCtx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("all code returned. now exit. bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("timeout graceful shutdown")
	}
}

var version = "DEV"

// defaultV returns d if v is the zero value of T, otherwise v.
func defaultV[T comparable](v, d T) T {
	var zero T
	if v == zero {
		return d
	}
	return v
}

func printBanner() {
	banner := `
     ____  ____ _  ____  __
    / __ \/ __ \ |/ /\ \/ /
   / /_/ / / / /   /  \  /
  / _, _/ /_/ /   |   / /
 /_/ |_|\____/_/|_|  /_/   v: %s

                      __
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /
|__/|__/\____/_/  /_/|_|\___/_/

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/voxsum"))
}
