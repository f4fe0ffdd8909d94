package main

import (
	"context"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/postgres"
	"github.com/airenas/voxsum/internal/pkg/quota"
	"github.com/airenas/voxsum/internal/pkg/quotaapi"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	data := &quotaapi.Data{}
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

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	data.Manager = quota.New(db)

	err = quotaapi.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
}

var version = "DEV"

func printBanner() {
	banner := `
     ____  ____ _  ____  __
    / __ \/ __ \ |/ /\ \/ /
   / /_/ / / / /   /  \  /
  / _, _/ /_/ /   |   / /
 /_/ |_|\____/_/|_|  /_/

                         __
  ____ ___  ______  ____/ /_____ _
 / __ ` + "`" + `/ / / / __ \/ __  / __ ` + "`" + `/
/ /_/ / /_/ / /_/ / /_/ / /_/ /
\__, /\__,_/\____/\__,_/\__,_/  v: %s
  /_/
%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/voxsum"))
}
