package twin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/twinrelay/core/csql"
	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/core/metrics"
	"github.com/relabs-tech/twinrelay/iot"
	"github.com/relabs-tech/twinrelay/iot/patch"
)

// ErrNotFound is returned for twins or properties that do not exist
var ErrNotFound = errors.New("not found")

// Twin is a digital twin
type Twin struct {
	ID         string          `json:"twinId"`
	ModelID    string          `json:"modelId"`
	Properties json.RawMessage `json:"properties,omitempty"`
	Version    int             `json:"version"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Graph stores the twins in postgres and publishes their changes
type Graph struct {
	db      *csql.DB
	table   string
	changes iot.ChangePublisher
	metrics *metrics.Metrics
	now     func() time.Time
}

// Builder is a builder helper for the Graph
type Builder struct {
	// DB is a postgres database. This is mandatory.
	DB *csql.DB
	// Changes receives the change event of every applied patch. Optional.
	Changes iot.ChangePublisher
	// Metrics is optional
	Metrics *metrics.Metrics
}

// NewGraph returns a new graph. It creates the sql relation for the twins if it does not
// exist.
func NewGraph(b *Builder) *Graph {
	if b.DB == nil {
		panic("DB is missing")
	}
	g := &Graph{
		db:      b.DB,
		table:   b.DB.Table("_twin_"),
		changes: b.Changes,
		metrics: b.Metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
	g.mustCreateTableIfNotExists()
	return g
}

func (g *Graph) mustCreateTableIfNotExists() {
	// poor man's database migrations
	_, err := g.db.Exec(`CREATE table IF NOT EXISTS ` + g.table + `
(twin_id varchar PRIMARY KEY,
model_id varchar NOT NULL DEFAULT '',
properties jsonb NOT NULL,
version integer NOT NULL,
updated_at timestamp NOT NULL
);`)
	if err != nil {
		panic(err)
	}
}

// Get returns the twin with id
func (g *Graph) Get(ctx context.Context, id string) (Twin, error) {
	t := Twin{ID: id}
	var properties []byte
	err := g.db.QueryRowContext(ctx,
		`SELECT model_id,properties,version,updated_at FROM `+g.table+` WHERE twin_id=$1;`,
		id).Scan(&t.ModelID, &properties, &t.Version, &t.UpdatedAt)
	if err == csql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Properties = properties
	return t, nil
}

// List returns the twins of page ordered by id, without properties
func (g *Graph) List(ctx context.Context, page Page) ([]Twin, error) {
	query := `SELECT twin_id,model_id,version,updated_at FROM ` + g.table + ` WHERE twin_id>$1 ORDER BY twin_id`
	args := []any{page.After}
	if page.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, page.Limit)
	}
	rows, err := g.db.QueryContext(ctx, query+";", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	twins := []Twin{}
	for rows.Next() {
		t := Twin{}
		if err := rows.Scan(&t.ID, &t.ModelID, &t.Version, &t.UpdatedAt); err != nil {
			return nil, err
		}
		twins = append(twins, t)
	}
	return twins, rows.Err()
}

// Put creates or replaces the twin t and returns the stored twin
func (g *Graph) Put(ctx context.Context, t Twin) (Twin, error) {
	if len(t.Properties) == 0 {
		t.Properties = json.RawMessage("{}")
	}
	var properties map[string]any
	if err := json.Unmarshal(t.Properties, &properties); err != nil {
		return t, fmt.Errorf("%w: properties must be a JSON object", patch.ErrMalformedInput)
	}
	t.UpdatedAt = g.now()
	err := g.db.QueryRowContext(ctx,
		`INSERT INTO `+g.table+`(twin_id,model_id,properties,version,updated_at)
VALUES($1,$2,$3,1,$4)
ON CONFLICT (twin_id) DO UPDATE SET model_id=$2,properties=$3,version=`+g.table+`.version+1,updated_at=$4
RETURNING version;`,
		t.ID, t.ModelID, string(t.Properties), t.UpdatedAt).Scan(&t.Version)
	return t, err
}

// Apply applies the patch document to the twin with id, creating the twin if it does not
// exist, and publishes the change event. The change is stored even if publishing fails, the
// publishing error is logged.
func (g *Graph) Apply(ctx context.Context, id string, doc patch.Document) (t Twin, err error) {
	defer func() { g.metrics.RecordTwinUpdate(err) }()
	ctx, rlog := logger.ContextWithTwin(ctx, id)

	t, err = g.apply(ctx, id, doc)
	if err != nil {
		return t, err
	}

	if g.changes != nil && len(doc) > 0 {
		msg := patch.Message{Patch: doc, EntityIdentifier: id, ModelID: t.ModelID}
		if perr := g.changes.PublishChange(ctx, msg); perr != nil {
			rlog.WithError(perr).Errorln("Error 4710: cannot publish twin change")
		}
	}
	return t, nil
}

func (g *Graph) apply(ctx context.Context, id string, doc patch.Document) (Twin, error) {
	t := Twin{ID: id}
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	var properties []byte
	err = tx.QueryRowContext(ctx,
		`SELECT model_id,properties,version FROM `+g.table+` WHERE twin_id=$1 FOR UPDATE;`,
		id).Scan(&t.ModelID, &properties, &t.Version)
	if err != nil && err != sql.ErrNoRows {
		return t, err
	}

	updated, err := Apply(properties, doc)
	if err != nil {
		return t, err
	}
	t.Properties = updated
	t.Version++
	t.UpdatedAt = g.now()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+g.table+`(twin_id,model_id,properties,version,updated_at)
VALUES($1,$2,$3,$4,$5)
ON CONFLICT (twin_id) DO UPDATE SET properties=$3,version=$4,updated_at=$5;`,
		id, t.ModelID, string(t.Properties), t.Version, t.UpdatedAt)
	if err != nil {
		return t, err
	}
	return t, tx.Commit()
}
