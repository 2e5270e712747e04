package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/twinrelay/core/access"
	"github.com/relabs-tech/twinrelay/core/csql"
	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/core/metrics"
	"github.com/relabs-tech/twinrelay/core/schema"
	"github.com/relabs-tech/twinrelay/core/server"
	"github.com/relabs-tech/twinrelay/iot/events"
	"github.com/relabs-tech/twinrelay/iot/mqtt"
	"github.com/relabs-tech/twinrelay/iot/simulator"
	"github.com/relabs-tech/twinrelay/iot/twin"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTRGRES_PASSWORD="docker"
type Service struct {
	Postgres         string        `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string        `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
	PostgresSchema   string        `env:"POSTGRES_SCHEMA,default=twinrelay" description:"the database schema"`
	KafkaBrokers     string        `env:"KAFKA_BROKERS,default=localhost:9092" description:"comma separated list of kafka brokers"`
	ChangesTopic     string        `env:"KAFKA_CHANGES_TOPIC,default=twin-changes" description:"topic the twin change events are published to"`
	MQTTAddress      string        `env:"MQTT_ADDRESS,default=:8883" description:"TLS listen address of the MQTT broker"`
	CACertFile       string        `env:"CA_CERT_FILE,default=ca.crt" description:"certificate of the device certificate authority"`
	CertFile         string        `env:"CERT_FILE,default=server.crt" description:"server certificate"`
	KeyFile          string        `env:"KEY_FILE,default=server.key" description:"server private key"`
	DevicesFile      string        `env:"DEVICES_FILE,optional" description:"device set of the simulated devices"`
	DeviceInterval   time.Duration `env:"DEVICE_INTERVAL,default=5s" description:"default reporting interval of simulated devices"`
	JWTSecret        string        `env:"JWT_SECRET,optional" description:"HMAC secret of the bearer tokens, the twin API is open without"`
	JWTIssuer        string        `env:"JWT_ISSUER,default=twinrelay" description:"accepted issuer of the bearer tokens"`
	Address          string        `env:"ADDRESS,default=:3000" description:"listen address of the HTTP server"`
	LogLevel         string        `env:"LOG_LEVEL,optional,default=info" description:"The level used for logger, can be debug, warning, info, error"`
}

// RoleTwinWriter is the role required for the twin API
const RoleTwinWriter = "twin-writer"

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	logger.InitLogger(logger.ParseLevel(service.LogLevel))
	rlog := logger.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		panic(err)
	}

	db := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, service.PostgresSchema)
	defer db.Close()

	writer := events.NewWriter(strings.Split(service.KafkaBrokers, ","), service.ChangesTopic)
	defer writer.Close()

	graph := twin.NewGraph(&twin.Builder{
		DB:      db,
		Changes: events.NewPublisher(writer),
		Metrics: m,
	})

	iotBroker := mqtt.NewBroker(&mqtt.Builder{
		Twins:      graph,
		Metrics:    m,
		Address:    service.MQTTAddress,
		CertFile:   service.CertFile,
		KeyFile:    service.KeyFile,
		CACertFile: service.CACertFile,
	})

	router := server.NewRouter(prometheus.DefaultGatherer)
	api := router.NewRoute().Subrouter()
	if service.JWTSecret != "" {
		api.Use(access.NewJwtMiddelware(&access.JwtMiddlewareBuilder{
			Secret: []byte(service.JWTSecret),
			Issuer: service.JWTIssuer,
		}))
		api.Use(access.RequireRole(RoleTwinWriter))
	}
	validator := schema.Builtin()
	twin.NewAPI(&twin.APIBuilder{
		Store:     graph,
		Router:    api,
		Validator: validator,
		Publisher: iotBroker,
	})

	tasks := []func(context.Context) error{
		iotBroker.Run,
		func(ctx context.Context) error {
			return server.ListenAndServe(ctx, service.Address, server.Handler(router, nil))
		},
	}

	if service.DevicesFile != "" {
		data, err := os.ReadFile(service.DevicesFile)
		if err != nil {
			panic(err)
		}
		devices, err := simulator.ParseDeviceSet(data, validator, service.DeviceInterval)
		if err != nil {
			panic(err)
		}
		loop, err := simulator.NewLoop(simulator.LoopBuilder{
			Devices:  devices,
			Reporter: iotBroker,
			Metrics:  m,
		})
		if err != nil {
			panic(err)
		}
		rlog.Infof("simulating %d devices", len(devices))
		tasks = append(tasks, func(ctx context.Context) error {
			loop.Run(ctx)
			return nil
		})
	}

	if err := server.Run(ctx, tasks...); err != nil {
		rlog.WithError(err).Errorln("Error 4902: devices service stopped")
		os.Exit(1)
	}
}
