// Package journal records what a routing session did: one row per routed
// item and one per emitted shell command, in a SQLite database so past
// sessions stay queryable from the CLI.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Entry is one journal record.
type Entry struct {
	Seq   int64
	TS    string
	Event string // "route" or "command"
	Data  string // routed data, or the quoted command line
	Type  string // routable type for route events
}

// QueryParams filters journal queries. Zero values mean "no filter".
type QueryParams struct {
	Event string
	Limit int
}

// Journal is a handle on the journal database.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database and its schema.
// WAL mode keeps a live watch session from blocking CLI queries.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			seq   INTEGER PRIMARY KEY AUTOINCREMENT,
			ts    TEXT NOT NULL,
			event TEXT NOT NULL,
			data  TEXT NOT NULL DEFAULT '',
			type  TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_event ON entries(event);
		CREATE INDEX IF NOT EXISTS idx_ts ON entries(ts);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) record(event, data, typ string) {
	_, err := j.db.Exec(
		`INSERT INTO entries (ts, event, data, type) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), event, data, typ,
	)
	if err != nil {
		slog.Error("journal insert failed", "event", event, "error", err)
	}
}

// RecordRoute logs one routed item.
func (j *Journal) RecordRoute(data, typ string) {
	j.record("route", data, typ)
}

// RecordCommand logs one emitted shell command line.
func (j *Journal) RecordCommand(line string) {
	j.record("command", line, "")
}

// Query retrieves entries, newest first.
func (j *Journal) Query(params QueryParams) ([]Entry, error) {
	q := "SELECT seq, ts, event, data, type FROM entries"
	var args []any
	var where []string
	if params.Event != "" {
		where = append(where, "event = ?")
		args = append(args, params.Event)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq DESC"
	if params.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, params.Limit)
	}

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.TS, &e.Event, &e.Data, &e.Type); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
