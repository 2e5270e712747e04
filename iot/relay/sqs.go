package relay

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/iot/events"
)

// SourceSQS is the source label of events read from SQS
const SourceSQS = "sqs"

// SQSAPI is the part of the SQS client used by the SQSSource
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSSource feeds change events from an SQS queue into the relay. The twin id is read from
// the message attribute "cloudEvents:subject".
type SQSSource struct {
	client   SQSAPI
	queueURL string
	relay    *Relay
}

// NewSQSSource returns a source polling queueURL
func NewSQSSource(client SQSAPI, queueURL string, relay *Relay) *SQSSource {
	return &SQSSource{client: client, queueURL: queueURL, relay: relay}
}

// Run long-polls the queue until ctx is done. Every message is deleted after it was handled,
// whether or not it could be relayed.
func (s *SQSSource) Run(ctx context.Context) error {
	for {
		if err := s.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Poll receives and handles one batch of messages
func (s *SQSSource) Poll(ctx context.Context) error {
	out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(s.queueURL),
		MaxNumberOfMessages:   10,
		WaitTimeSeconds:       20,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return err
	}
	for _, m := range out.Messages {
		mctx, _ := logger.ContextWithLogger(ctx)
		s.relay.Handle(mctx, SourceSQS, []byte(aws.ToString(m.Body)), subjectAttribute(m))
		_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(s.queueURL),
			ReceiptHandle: m.ReceiptHandle,
		})
		if err != nil {
			logger.FromContext(mctx).WithError(err).Errorln("Error 4510: cannot delete sqs message", aws.ToString(m.MessageId))
		}
	}
	return nil
}

func subjectAttribute(m types.Message) string {
	if a, ok := m.MessageAttributes[events.HeaderSubject]; ok {
		return aws.ToString(a.StringValue)
	}
	return ""
}
