package timeseries

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/twinrelay/core/logger"
)

// Aggregator is the part of the Store used by the API
type Aggregator interface {
	Aggregate(ctx context.Context, q Query) ([]Series, error)
}

var _ Aggregator = (*Store)(nil)

// Defaults of the query parameters
const (
	DefaultSince    = "60m"
	DefaultInterval = "pt3m"
)

// API is the REST interface for the time series
type API struct {
	aggregator  Aggregator
	sensorCount int
	now         func() time.Time
}

// APIBuilder is a builder helper for the API
type APIBuilder struct {
	// Aggregator answers the queries. This is mandatory.
	Aggregator Aggregator
	// Router is the mux router the routes are added to. This is mandatory.
	Router *mux.Router
	// SensorCount is the number of twins per sensor type. Defaults to 3.
	SensorCount int
}

// Response is the answer to a time series query
type Response struct {
	SensorType  SensorType `json:"sensorType"`
	TwinIDs     []string   `json:"timeSeriesIds"`
	Property    Property   `json:"property"`
	From        time.Time  `json:"from"`
	To          time.Time  `json:"to"`
	BucketSize  string     `json:"bucketSize"`
	Aggregation string     `json:"aggregation"`
	Series      []Series   `json:"series"`
}

// NewAPI adds the time series routes to the router and returns the API
func NewAPI(b *APIBuilder) *API {
	if b.Aggregator == nil {
		panic("Aggregator is missing")
	}
	if b.Router == nil {
		panic("Router is missing")
	}
	a := &API{
		aggregator:  b.Aggregator,
		sensorCount: b.SensorCount,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if a.sensorCount <= 0 {
		a.sensorCount = 3
	}
	logger.Default().Debugln("timeseries: handle route /timeseries/{sensor_type} GET")
	b.Router.Handle("/timeseries/{sensor_type}", handlers.CompressHandler(http.HandlerFunc(a.handleQuery))).Methods(http.MethodGet)
	return a
}

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	sensorType, err := ParseSensorType(mux.Vars(r)["sensor_type"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	property, _ := PropertyOf(sensorType)

	values := r.URL.Query()
	sinceParam := values.Get("since")
	if sinceParam == "" {
		sinceParam = DefaultSince
	}
	intervalParam := values.Get("interval")
	if intervalParam == "" {
		intervalParam = DefaultInterval
	}
	since, err := ParseSince(sinceParam)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	interval, err := ParseInterval(intervalParam)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	to := a.now().Truncate(time.Minute)
	q := Query{
		TwinIDs:  SensorIDs(sensorType, 1, a.sensorCount),
		Property: property.Name,
		From:     to.Add(-since),
		To:       to,
		Interval: interval,
	}
	series, err := a.aggregator.Aggregate(r.Context(), q)
	if err != nil {
		if errors.Is(err, ErrInvalidInterval) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rlog.WithError(err).Errorln("Error 4601: cannot aggregate time series")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.Encode(Response{
		SensorType:  sensorType,
		TwinIDs:     q.TwinIDs,
		Property:    property,
		From:        q.From,
		To:          q.To,
		BucketSize:  fmt.Sprintf("%ds", int64(interval.Seconds())),
		Aggregation: "avg",
		Series:      series,
	})
}
