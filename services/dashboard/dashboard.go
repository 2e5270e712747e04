package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeshaw/envdecode"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/twinrelay/core/access"
	"github.com/relabs-tech/twinrelay/core/csql"
	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/core/server"
	"github.com/relabs-tech/twinrelay/timeseries"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTRGRES_PASSWORD="docker"
type Service struct {
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
	PostgresSchema   string `env:"POSTGRES_SCHEMA,default=twinrelay" description:"the database schema"`
	SensorCount      int    `env:"SENSOR_COUNT,default=3" description:"number of twins per sensor type"`
	JWTSecret        string `env:"JWT_SECRET,required" description:"HMAC secret of the bearer tokens"`
	JWTIssuer        string `env:"JWT_ISSUER,default=twinrelay" description:"accepted issuer of the bearer tokens"`
	CORSOrigins      string `env:"CORS_ORIGINS,optional" description:"comma separated list of origins allowed to query"`
	Address          string `env:"ADDRESS,default=:3001" description:"listen address of the HTTP server"`
	LogLevel         string `env:"LOG_LEVEL,optional,default=info" description:"The level used for logger, can be debug, warning, info, error"`
}

// RoleViewer is the role required to read time series
const RoleViewer = "viewer"

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	logger.InitLogger(logger.ParseLevel(service.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, service.PostgresSchema)
	defer db.Close()

	router := server.NewRouter(prometheus.DefaultGatherer)
	api := router.NewRoute().Subrouter()
	api.Use(access.NewJwtMiddelware(&access.JwtMiddlewareBuilder{
		Secret: []byte(service.JWTSecret),
		Issuer: service.JWTIssuer,
	}))
	api.Use(access.RequireRole(RoleViewer))

	timeseries.NewAPI(&timeseries.APIBuilder{
		Aggregator:  timeseries.NewStore(db),
		Router:      api,
		SensorCount: service.SensorCount,
	})

	if err := server.ListenAndServe(ctx, service.Address, server.Handler(router, server.Origins(service.CORSOrigins))); err != nil {
		logger.Default().WithError(err).Errorln("Error 4903: dashboard stopped")
		os.Exit(1)
	}
}
