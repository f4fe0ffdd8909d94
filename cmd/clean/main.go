package main

import (
	"context"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/clean"
	"github.com/airenas/voxsum/internal/pkg/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &clean.Data{}
	data.Port = cfg.GetInt("port")

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

	dbCleaner, err := postgres.NewCleaner(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db cleaner")
	}
	data.Cleaner = dbCleaner

	printBanner()

	retention := cfg.GetDuration("timer.expire")
	tData := &clean.TimerData{
		IDsProvider: dbCleaner,
		Cleaner:     dbCleaner,
		RunEvery:    cfg.GetDuration("timer.runEvery"),
		Retention:   retention,
	}
	goapp.Log.Info().Dur("duration", retention).Msg("expire")

	ctxTimer, cancelFunc := context.WithCancel(ctx)
	doneCh, err := clean.StartCleanTimer(ctxTimer, tData)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start timer")
	}
	err = clean.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

var (
	version = "DEV"
)

func printBanner() {
	banner :=
		`
    ____  ____ _  ____  __
   / __ \/ __ \ |/ /\ \/ /
  / /_/ / / / /   /  \  /
 / _, _/ /_/ /   |   / /
/_/ |_|\____/_/|_|  /_/

        __
  _____/ /__  ____ _____           _  __
 / ___/ / _ \/ __ ` + "`" + `/ __ \   ______| |/_/_____
/ /__/ /  __/ /_/ / / / /  /_____/>  </_____/
\___/_/\___/\__,_/_/ /_/        /_/|_|   v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/voxsum"))
}
