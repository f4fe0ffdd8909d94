package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/progress"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
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

	gueClient, err := gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}

	broadcaster := progress.New()

	consumerData := &progress.ConsumerData{
		GueClient: gueClient, WorkerCount: defaultV(cfg.GetInt("progress.worker.count"), 1),
		Broadcaster: broadcaster, Testing: cfg.GetBool("progress.worker.testing"),
	}

	printBanner()

	runCtx, cancelFunc := context.WithCancel(context.Background())
	consumerDone, err := progress.StartConsumer(runCtx, consumerData)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start progress consumer")
	}

	webData := &progress.Data{Port: cfg.GetInt("port"), Broadcaster: broadcaster}
	webDone := make(chan error, 1)
	go func() {
		webDone <- progress.StartWebServer(webData)
	}()

	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("got exit signal")
	case err := <-webDone:
		if err != nil {
			goapp.Log.Error().Err(err).Msg("web server exited")
		}
	case <-consumerDone:
		goapp.Log.Info().Msg("consumer exited")
	}
	cancelFunc()
	select {
	case <-consumerDone:
		goapp.Log.Info().Msg("all code returned. now exit. bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("timeout graceful shutdown")
	}
}

var version = "DEV"

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


 _______  _________  ____ ________________________
/ ___/ _ \/ ___/ __ \/ __ ` + "`" + `/ ___/ ___/ ___/ ___/
/ /  /  __/ /  / /_/ / /_/ / /  / /__(__  |__  )
/_/   \___/_/   \____/\__, /_/   \___/____/____/
                      /____/
%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/voxsum"))
}
