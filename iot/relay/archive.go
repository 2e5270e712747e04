package relay

import (
	"context"
	"path"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/relabs-tech/twinrelay/core/kss"
	"github.com/relabs-tech/twinrelay/iot/patch"
)

// ArchiveSink stores every record as a JSON object in the key storage service. Keys are
// "<prefix>/<twin id>/<yyyy-mm-dd>/<uuid>.json".
type ArchiveSink struct {
	driver kss.Driver
	prefix string
	now    func() time.Time
}

// NewArchiveSink returns a sink writing below prefix
func NewArchiveSink(driver kss.Driver, prefix string) *ArchiveSink {
	return &ArchiveSink{
		driver: driver,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Name implements Sink
func (s *ArchiveSink) Name() string { return "archive" }

// Write implements Sink
func (s *ArchiveSink) Write(ctx context.Context, records ...patch.Record) error {
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := s.driver.Put(ctx, s.Key(r), data); err != nil {
			return err
		}
	}
	return nil
}

// Key returns a new object key for r
func (s *ArchiveSink) Key(r patch.Record) string {
	return path.Join(s.prefix, r.EntityID(), s.now().Format("2006-01-02"), uuid.New().String()+".json")
}
