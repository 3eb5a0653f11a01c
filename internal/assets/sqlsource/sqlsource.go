// Package sqlsource loads a project.Game from a relational database,
// adapted from the teacher's database connection handling (one *sql.DB per
// source, driver selected by name, blank-imported drivers registering
// themselves with database/sql). Where the teacher dials out to probe and
// fingerprint someone else's database, this package queries the project's
// own schema: a `scripts` table and an `events` table, the source-of-truth
// a host engine keeps its compiled game in.
package sqlsource

import (
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"gmlvm/internal/project"
)

// driverNames maps a short source kind to the database/sql driver name
// registered by its blank import above.
var driverNames = map[string]string{
	"sqlite":   "sqlite",
	"postgres": "postgres",
	"mysql":    "mysql",
	"mssql":    "sqlserver",
}

// Source is an open connection to a project's backing database.
type Source struct {
	kind string
	db   *sql.DB
}

// Open dials dsn using the driver named by kind ("sqlite", "postgres",
// "mysql", or "mssql").
func Open(kind, dsn string) (*Source, error) {
	driver, ok := driverNames[kind]
	if !ok {
		return nil, fmt.Errorf("sqlsource: unknown source kind %q", kind)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlsource: open %s: %w", kind, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlsource: ping %s: %w", kind, err)
	}
	return &Source{kind: kind, db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Source) Close() error { return s.db.Close() }

// expectedSchema documents the tables Load reads:
//
//	scripts(id INTEGER, name TEXT, body BLOB)
//	objects(id INTEGER, name TEXT)
//	events(object_id INTEGER, type INTEGER, kind INTEGER, code BLOB)
const expectedSchema = "scripts(id,name,body); objects(id,name); events(object_id,type,kind,code)"

// Load reads every script, object, and event out of the source's schema
// and assembles a project.Game, the same shape the compiler would be
// handed from a game file reader or a test fixture.
func (s *Source) Load() (*project.Game, error) {
	game := &project.Game{}

	scriptRows, err := s.db.Query(`SELECT id, name, body FROM scripts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlsource: query scripts (expects %s): %w", expectedSchema, err)
	}
	defer scriptRows.Close()

	scriptIndex := make(map[int]int) // db id -> index into game.Scripts
	for scriptRows.Next() {
		var id int
		var name string
		var body []byte
		if err := scriptRows.Scan(&id, &name, &body); err != nil {
			return nil, fmt.Errorf("sqlsource: scan script row: %w", err)
		}
		scriptIndex[id] = len(game.Scripts)
		game.Scripts = append(game.Scripts, project.Script{Name: name, Body: body})
	}
	if err := scriptRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlsource: iterate scripts: %w", err)
	}

	objectRows, err := s.db.Query(`SELECT id, name FROM objects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlsource: query objects: %w", err)
	}
	defer objectRows.Close()

	objectIndex := make(map[int]int) // db id -> index into game.Objects
	for objectRows.Next() {
		var id int
		var name string
		if err := objectRows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("sqlsource: scan object row: %w", err)
		}
		objectIndex[id] = len(game.Objects)
		game.Objects = append(game.Objects, project.Object{Name: name})
	}
	if err := objectRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlsource: iterate objects: %w", err)
	}

	eventRows, err := s.db.Query(`SELECT object_id, type, kind, code FROM events ORDER BY object_id, type, kind`)
	if err != nil {
		return nil, fmt.Errorf("sqlsource: query events: %w", err)
	}
	defer eventRows.Close()

	for eventRows.Next() {
		var objectID int
		var evType uint32
		var evKind int32
		var code []byte
		if err := eventRows.Scan(&objectID, &evType, &evKind, &code); err != nil {
			return nil, fmt.Errorf("sqlsource: scan event row: %w", err)
		}
		oi, ok := objectIndex[objectID]
		if !ok {
			return nil, fmt.Errorf("sqlsource: event references unknown object id %d", objectID)
		}
		game.Objects[oi].Events = append(game.Objects[oi].Events, project.Event{
			Type: evType,
			Kind: evKind,
			Code: code,
		})
	}
	if err := eventRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlsource: iterate events: %w", err)
	}

	return game, nil
}
