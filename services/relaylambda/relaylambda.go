package main

import (
	"context"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joeshaw/envdecode"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/twinrelay/core/csql"
	"github.com/relabs-tech/twinrelay/core/kss"
	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/core/metrics"
	twinevents "github.com/relabs-tech/twinrelay/iot/events"
	"github.com/relabs-tech/twinrelay/iot/relay"
	"github.com/relabs-tech/twinrelay/timeseries"
)

// Service holds the configuration for this function
type Service struct {
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
	PostgresSchema   string `env:"POSTGRES_SCHEMA,default=twinrelay" description:"the database schema"`
	KafkaBrokers     string `env:"KAFKA_BROKERS,optional" description:"comma separated list of kafka brokers for the records topic"`
	RecordsTopic     string `env:"KAFKA_RECORDS_TOPIC,optional" description:"topic the flattened records are forwarded to, if set"`
	ArchivePrefix    string `env:"ARCHIVE_PREFIX,default=records" description:"key prefix of archived records"`
	KSS              kss.Configuration
	LogLevel         string `env:"LOG_LEVEL,optional,default=info" description:"The level used for logger, can be debug, warning, info, error"`
}

// newHandler returns the SQS handler. Every record is handled once, failed records are
// logged and counted but do not fail the batch.
func newHandler(r *relay.Relay) func(ctx context.Context, event events.SQSEvent) error {
	return func(ctx context.Context, event events.SQSEvent) error {
		for _, message := range event.Records {
			mctx, rlog := logger.ContextWithLogger(ctx)
			subject := ""
			if a, ok := message.MessageAttributes[twinevents.HeaderSubject]; ok && a.StringValue != nil {
				subject = *a.StringValue
			}
			rlog.Debugln("handle sqs message", message.MessageId)
			r.Handle(mctx, relay.SourceSQS, []byte(message.Body), subject)
		}
		return nil
	}
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	logger.InitLogger(logger.ParseLevel(service.LogLevel))

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		panic(err)
	}

	db := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, service.PostgresSchema)
	defer db.Close()

	sinks := []relay.Sink{timeseries.NewStore(db)}
	if service.RecordsTopic != "" && service.KafkaBrokers != "" {
		w := twinevents.NewWriter(strings.Split(service.KafkaBrokers, ","), service.RecordsTopic)
		defer w.Close()
		sinks = append(sinks, relay.NewKafkaSink(w))
	}
	driver, err := kss.New(context.Background(), service.KSS)
	if err != nil {
		panic(err)
	}
	if driver != nil {
		sinks = append(sinks, relay.NewArchiveSink(driver, service.ArchivePrefix))
	}

	lambda.Start(newHandler(relay.NewRelay(&relay.Builder{Sinks: sinks, Metrics: m})))
}
