package csql

import (
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/lib/pq" // load database driver for postgres

	"github.com/relabs-tech/twinrelay/core/logger"
)

// DB encapsulates a standard sql.DB with a schema
type DB struct {
	*sql.DB
	Schema string
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a
// row. In such a case, QueryRow returns a placeholder *Row value that
// defers this error until a Scan.
var ErrNoRows = sql.ErrNoRows

var validSchema = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// OpenWithSchema opens a postgres database with a schema. The password is passed
// separately so that the data source name can be logged.
// The schema gets created if it does not exist yet.
func OpenWithSchema(dataSourceName, password, schema string) *DB {
	logger.Default().Infoln("connecting to postgres database:", dataSourceName)
	if len(password) > 0 {
		dataSourceName += " password=" + password
	}
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		panic(err)
	}
	if err = db.Ping(); err != nil {
		panic(err)
	}
	wrapped, err := WithSchema(db, schema)
	if err != nil {
		panic(err)
	}
	if wrapped.Schema != "public" {
		logger.Default().Infoln("selected database schema:", wrapped.Schema)
		_, err = db.Exec(`CREATE schema IF NOT EXISTS ` + wrapped.Schema + `;`)
		if err != nil {
			panic(err)
		}
	}
	return wrapped
}

// WithSchema wraps an already opened database. An empty schema selects "public". Schema
// names are interpolated into statements, hence only lower case identifiers are accepted.
func WithSchema(db *sql.DB, schema string) (*DB, error) {
	if len(schema) == 0 {
		schema = "public"
	}
	if !validSchema.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name '%s'", schema)
	}
	return &DB{DB: db, Schema: schema}, nil
}

// Table returns the schema qualified, quoted name of a table
func (db *DB) Table(name string) string {
	return db.Schema + `."` + name + `"`
}

// ClearSchema clears all the data contained in the database's schema
// Technically this is done by dropping the schema and then recreating it
func (db *DB) ClearSchema() {
	if db.Schema == "public" {
		panic("refuse to drop public schema")
	}
	_, err := db.Exec(`DROP SCHEMA ` + db.Schema + ` CASCADE;
	CREATE schema IF NOT EXISTS ` + db.Schema + `;`)
	if err != nil {
		logger.Default().WithError(err).Errorln("clear schema error:", db.Schema)
	}
}
