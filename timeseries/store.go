package timeseries

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/relabs-tech/twinrelay/core/csql"
	"github.com/relabs-tech/twinrelay/iot/patch"
)

// Store keeps the numeric properties of records in postgres
type Store struct {
	db    *csql.DB
	table string
	now   func() time.Time
}

// NewStore returns a new store. It creates the sql relation for the samples if it does not
// exist.
func NewStore(db *csql.DB) *Store {
	if db == nil {
		panic("DB is missing")
	}
	s := &Store{
		db:    db,
		table: db.Table("_telemetry_"),
		now:   func() time.Time { return time.Now().UTC() },
	}
	// poor man's database migrations
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + s.table + `
(twin_id varchar NOT NULL,
property varchar NOT NULL,
time timestamp NOT NULL,
value double precision NOT NULL
);
CREATE INDEX IF NOT EXISTS telemetry_twin_property_time ON ` + s.table + `(twin_id, property, time);`)
	if err != nil {
		panic(err)
	}
	return s
}

// Sample is one stored value
type Sample struct {
	TwinID   string
	Property string
	Time     time.Time
	Value    float64
}

// Samples returns the numeric properties of r, sorted by property name. Properties which
// are not numbers, e.g. strings or objects, are skipped.
func Samples(r patch.Record, at time.Time) []Sample {
	id := r.EntityID()
	samples := []Sample{}
	for key, v := range r {
		if key == patch.DTIDKey {
			continue
		}
		var value float64
		switch v := v.(type) {
		case int:
			value = float64(v)
		case float64:
			value = v
		case json.RawMessage:
			if err := json.Unmarshal(v, &value); err != nil {
				continue
			}
		default:
			continue
		}
		samples = append(samples, Sample{TwinID: id, Property: key, Time: at, Value: value})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Property < samples[j].Property })
	return samples
}

// Name implements relay.Sink
func (s *Store) Name() string { return "timeseries" }

// Write implements relay.Sink. All samples of the records are inserted with one statement.
func (s *Store) Write(ctx context.Context, records ...patch.Record) error {
	at := s.now()
	var samples []Sample
	for _, r := range records {
		samples = append(samples, Samples(r, at)...)
	}
	if len(samples) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.table)
	b.WriteString(" (twin_id,property,time,value) VALUES ")
	args := make([]any, 0, len(samples)*4)
	for i, sample := range samples {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d)", len(args)+1, len(args)+2, len(args)+3, len(args)+4)
		args = append(args, sample.TwinID, sample.Property, sample.Time, sample.Value)
	}
	b.WriteString(";")

	_, err := s.db.ExecContext(ctx, b.String(), args...)
	return err
}

// Query selects the samples to aggregate
type Query struct {
	TwinIDs  []string
	Property string
	From     time.Time
	To       time.Time
	Interval time.Duration
}

// Point is the average of one interval bucket
type Point struct {
	Time    time.Time `json:"time"`
	Average float64   `json:"avg"`
	Count   int       `json:"count"`
}

// Series are the points of one twin
type Series struct {
	TwinID string  `json:"twinId"`
	Points []Point `json:"points"`
}

// Aggregate returns the average per interval bucket of the property for every requested
// twin, in the order of q.TwinIDs. Buckets are aligned to the unix epoch, empty buckets are
// omitted.
func (s *Store) Aggregate(ctx context.Context, q Query) ([]Series, error) {
	seconds := q.Interval.Seconds()
	if seconds < 1 {
		return nil, fmt.Errorf("%w: interval must be at least one second", ErrInvalidInterval)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT twin_id, floor(extract(epoch from time)/$1)*$1 AS bucket, avg(value), count(*)
FROM `+s.table+`
WHERE twin_id = ANY($2) AND property=$3 AND time>=$4 AND time<$5
GROUP BY twin_id, bucket ORDER BY twin_id, bucket;`,
		seconds, pq.Array(q.TwinIDs), q.Property, q.From, q.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := map[string][]Point{}
	for rows.Next() {
		var (
			id     string
			bucket float64
			p      Point
		)
		if err := rows.Scan(&id, &bucket, &p.Average, &p.Count); err != nil {
			return nil, err
		}
		p.Time = time.Unix(int64(bucket), 0).UTC()
		points[id] = append(points[id], p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	series := make([]Series, 0, len(q.TwinIDs))
	for _, id := range q.TwinIDs {
		p := points[id]
		if p == nil {
			p = []Point{}
		}
		series = append(series, Series{TwinID: id, Points: p})
	}
	return series, nil
}
