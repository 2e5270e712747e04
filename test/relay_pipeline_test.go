package test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/relabs-tech/twinrelay/iot/events"
	"github.com/relabs-tech/twinrelay/iot/patch"
	"github.com/relabs-tech/twinrelay/iot/relay"
	"github.com/relabs-tech/twinrelay/iot/twin"
	"github.com/relabs-tech/twinrelay/timeseries"
)

type RelayPipelineTestSuite struct {
	IntegrationTestSuite
}

func TestRelayPipelineTestSuite(t *testing.T) {
	suite.Run(t, &RelayPipelineTestSuite{})
}

// runSource relays topic into sinks until the returned cancel function is called
func (s *RelayPipelineTestSuite) runSource(topic string, sinks ...relay.Sink) context.CancelFunc {
	reader := events.NewReader([]string{s.kafkaAddr}, topic, "relay-"+uuid.New().String())
	source := relay.NewKafkaSource(reader, relay.NewRelay(&relay.Builder{Sinks: sinks}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		source.Run(ctx)
		reader.Close()
	}()
	return func() {
		cancel()
		<-done
	}
}

func add(path string, value any) patch.Document {
	raw, _ := json.Marshal(value)
	return patch.Document{{Op: patch.Add, Path: path, Value: raw}}
}

func (s *RelayPipelineTestSuite) TestTwinChangesReachTimeseries() {
	topic := "twin-changes." + uuid.New().String()
	s.Require().NoError(s.createTopic(topic, 1))
	defer s.deleteTopic(topic)

	writer := events.NewWriter([]string{s.kafkaAddr}, topic)
	defer writer.Close()
	graph := twin.NewGraph(&twin.Builder{DB: s.DB, Changes: events.NewPublisher(writer)})
	store := timeseries.NewStore(s.DB)

	stop := s.runSource(topic, store)
	defer stop()

	ctx := context.Background()
	_, err := graph.Apply(ctx, "tempsensor1", add("/temperature", 20))
	s.Require().NoError(err)
	t, err := graph.Apply(ctx, "tempsensor1", add("/temperature", 22))
	s.Require().NoError(err)
	s.Equal(2, t.Version)
	_, err = graph.Apply(ctx, "hvacsensor1", add("/State", true))
	s.Require().NoError(err)

	now := time.Now().UTC()
	aggregate := func(id, property string) (count int, average float64) {
		series, err := store.Aggregate(ctx, timeseries.Query{
			TwinIDs:  []string{id},
			Property: property,
			From:     now.Add(-time.Hour),
			To:       now.Add(time.Hour),
			Interval: time.Hour,
		})
		s.Require().NoError(err)
		s.Require().Len(series, 1)
		sum := 0.0
		for _, p := range series[0].Points {
			count += p.Count
			sum += p.Average * float64(p.Count)
		}
		if count > 0 {
			average = sum / float64(count)
		}
		return count, average
	}

	s.Eventually(func() bool {
		count, _ := aggregate("tempsensor1", "temperature")
		return count == 2
	}, 30*time.Second, 200*time.Millisecond)
	_, average := aggregate("tempsensor1", "temperature")
	s.InDelta(21.0, average, 0.0001)

	s.Eventually(func() bool {
		count, _ := aggregate("hvacsensor1", "State")
		return count == 1
	}, 30*time.Second, 200*time.Millisecond)
	_, average = aggregate("hvacsensor1", "State")
	s.Equal(1.0, average)
}

func (s *RelayPipelineTestSuite) TestChangesOfOneTwinKeepTheirOrder() {
	topic := "twin-changes." + uuid.New().String()
	s.Require().NoError(s.createTopic(topic, 3))
	defer s.deleteTopic(topic)

	mu := &sync.Mutex{}
	processed := map[string][]int{}
	sink := relay.SinkFunc{SinkName: "order", Func: func(ctx context.Context, records ...patch.Record) error {
		mu.Lock()
		defer mu.Unlock()
		for _, r := range records {
			raw, err := json.Marshal(r["Sequence"])
			if err != nil {
				return err
			}
			n := 0
			if err := json.Unmarshal(raw, &n); err != nil {
				return err
			}
			processed[r.EntityID()] = append(processed[r.EntityID()], n)
		}
		return nil
	}}

	stop := s.runSource(topic, sink)
	defer stop()

	writer := events.NewWriter([]string{s.kafkaAddr}, topic)
	defer writer.Close()
	publisher := events.NewPublisher(writer)

	ids := []string{"tempsensor1", "tempsensor2", "hvacsensor1", "occupancysensor1", "lightingsensor1"}
	expected := map[string][]int{}
	for i := 0; i < 100; i++ {
		id := ids[rand.Intn(len(ids))]
		expected[id] = append(expected[id], i)
		msg := patch.Message{EntityIdentifier: id, Patch: add("/Sequence", i)}
		s.Require().NoError(publisher.PublishChange(context.Background(), msg), fmt.Sprintf("publish %d", i))
	}

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		total := 0
		for _, seq := range processed {
			total += len(seq)
		}
		return total == 100
	}, 30*time.Second, 200*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for id, seq := range expected {
		require.Equal(s.T(), seq, processed[id], "order of %s", id)
	}
}
