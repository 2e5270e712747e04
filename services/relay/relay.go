package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joeshaw/envdecode"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/twinrelay/core/csql"
	"github.com/relabs-tech/twinrelay/core/kss"
	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/core/metrics"
	"github.com/relabs-tech/twinrelay/core/server"
	"github.com/relabs-tech/twinrelay/iot/broadcast"
	"github.com/relabs-tech/twinrelay/iot/events"
	"github.com/relabs-tech/twinrelay/iot/relay"
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
	KafkaBrokers     string `env:"KAFKA_BROKERS,default=localhost:9092" description:"comma separated list of kafka brokers"`
	ChangesTopic     string `env:"KAFKA_CHANGES_TOPIC,default=twin-changes" description:"topic of the twin change events"`
	RecordsTopic     string `env:"KAFKA_RECORDS_TOPIC,optional" description:"topic the flattened records are forwarded to, if set"`
	GroupID          string `env:"KAFKA_GROUP_ID,default=twinrelay" description:"kafka consumer group"`
	SQSQueueURL      string `env:"SQS_QUEUE_URL,optional" description:"read change events from this SQS queue instead of kafka"`
	ArchivePrefix    string `env:"ARCHIVE_PREFIX,default=records" description:"key prefix of archived records"`
	KSS              kss.Configuration
	Address          string `env:"ADDRESS,default=:3000" description:"listen address of the HTTP server"`
	CORSOrigins      string `env:"CORS_ORIGINS,optional" description:"comma separated list of origins allowed to connect to /broadcast"`
	LogLevel         string `env:"LOG_LEVEL,optional,default=info" description:"The level used for logger, can be debug, warning, info, error"`
}

func brokers(list string) []string {
	var b []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			b = append(b, s)
		}
	}
	return b
}

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

	sinks := []relay.Sink{timeseries.NewStore(db)}
	if service.RecordsTopic != "" {
		w := events.NewWriter(brokers(service.KafkaBrokers), service.RecordsTopic)
		defer w.Close()
		sinks = append(sinks, relay.NewKafkaSink(w))
	}
	driver, err := kss.New(ctx, service.KSS)
	if err != nil {
		panic(err)
	}
	if driver != nil {
		sinks = append(sinks, relay.NewArchiveSink(driver, service.ArchivePrefix))
	}

	hub := broadcast.NewHub(m)
	defer hub.Close()
	r := relay.NewRelay(&relay.Builder{Sinks: sinks, Broadcaster: hub, Metrics: m})

	router := server.NewRouter(prometheus.DefaultGatherer)
	router.Handle("/broadcast", hub)

	tasks := []func(context.Context) error{
		func(ctx context.Context) error {
			return server.ListenAndServe(ctx, service.Address, server.Handler(router, server.Origins(service.CORSOrigins)))
		},
	}
	if service.SQSQueueURL != "" {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			panic(err)
		}
		rlog.Infoln("relay change events from", service.SQSQueueURL)
		tasks = append(tasks, relay.NewSQSSource(sqs.NewFromConfig(cfg), service.SQSQueueURL, r).Run)
	} else {
		reader := events.NewReader(brokers(service.KafkaBrokers), service.ChangesTopic, service.GroupID)
		defer reader.Close()
		rlog.Infoln("relay change events from kafka topic", service.ChangesTopic)
		tasks = append(tasks, relay.NewKafkaSource(reader, r).Run)
	}

	if err := server.Run(ctx, tasks...); err != nil {
		rlog.WithError(err).Errorln("Error 4901: relay stopped")
		os.Exit(1)
	}
}
