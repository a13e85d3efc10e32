// Package sqlitestore implements broker.Store on SQLite.
//
// Documents are kept as JSON text columns next to the handful of scalar
// columns the queries sort and join on. The pure-Go modernc.org/sqlite
// driver is used so the store builds without cgo.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/scigolib/h5export/broker"
)

// Schema is created on open if missing.
const Schema = `
CREATE TABLE IF NOT EXISTS run_starts (
	uid  TEXT PRIMARY KEY,
	time REAL NOT NULL,
	doc  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_stops (
	run_start TEXT PRIMARY KEY REFERENCES run_starts(uid),
	doc       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS descriptors (
	uid       TEXT PRIMARY KEY,
	run_start TEXT NOT NULL REFERENCES run_starts(uid),
	position  INTEGER NOT NULL,
	name      TEXT NOT NULL,
	time      REAL NOT NULL,
	data_keys TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_descriptors_run_start ON descriptors(run_start, position);
CREATE TABLE IF NOT EXISTS events (
	uid        TEXT PRIMARY KEY,
	descriptor TEXT NOT NULL REFERENCES descriptors(uid),
	seq_num    INTEGER NOT NULL,
	time       REAL NOT NULL,
	data       TEXT NOT NULL,
	timestamps TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_descriptor ON events(descriptor, time, seq_num);
`

// Config contains configuration for the SQLite store.
type Config struct {
	// Path is the database file path. Empty means a private in-memory database.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4. Forced to 1 for in-memory databases.
	MaxOpenConns int

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// Logger receives store diagnostics. Default: no-op.
	Logger *zap.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Path:         "data/broker.db",
		MaxOpenConns: 4,
		BusyTimeout:  5 * time.Second,
	}
}

// Store is a broker.Store backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ broker.Store = (*Store)(nil)

// Open opens (creating if needed) the database described by cfg.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "broker.sqlite"))

	dsn := cfg.Path
	maxConns := cfg.MaxOpenConns
	if dsn == "" {
		dsn = ":memory:"
		maxConns = 1
	}
	if maxConns <= 0 {
		maxConns = 4
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(maxConns)

	s := &Store{db: db, logger: logger}
	if err := s.initialize(ctx, cfg.BusyTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("sqlite store opened", zap.String("path", dsn), zap.Int("max_open_conns", maxConns))
	return s, nil
}

func (s *Store) initialize(ctx context.Context, busy time.Duration) error {
	if busy > 0 {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", busy.Milliseconds())); err != nil {
			return fmt.Errorf("set busy timeout: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertRunStart records a run start document.
func (s *Store) InsertRunStart(ctx context.Context, start broker.Document) error {
	uid := start.UID()
	if uid == "" {
		return fmt.Errorf("run start without uid: %w", broker.ErrInvalidDocument)
	}
	ok, err := s.exists(ctx, `SELECT 1 FROM run_starts WHERE uid = ?`, uid)
	if err != nil {
		return fmt.Errorf("lookup run start %s: %w", uid, err)
	}
	if ok {
		return fmt.Errorf("run start %s already recorded: %w", uid, broker.ErrInvalidDocument)
	}
	doc, err := json.Marshal(start)
	if err != nil {
		return fmt.Errorf("encode run start %s: %w", uid, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO run_starts (uid, time, doc) VALUES (?, ?, ?)`, uid, start.Time(), string(doc)); err != nil {
		return fmt.Errorf("insert run start %s: %w", uid, err)
	}
	return nil
}

// InsertDescriptor records a descriptor for an existing run.
func (s *Store) InsertDescriptor(ctx context.Context, desc broker.Descriptor) error {
	if desc.UID == "" {
		return fmt.Errorf("descriptor without uid: %w", broker.ErrInvalidDocument)
	}
	ok, err := s.exists(ctx, `SELECT 1 FROM run_starts WHERE uid = ?`, desc.RunStart)
	if err != nil {
		return fmt.Errorf("lookup run start %s: %w", desc.RunStart, err)
	}
	if !ok {
		return fmt.Errorf("descriptor %s: unknown run start %q: %w", desc.UID, desc.RunStart, broker.ErrInvalidDocument)
	}
	ok, err = s.exists(ctx, `SELECT 1 FROM descriptors WHERE uid = ?`, desc.UID)
	if err != nil {
		return fmt.Errorf("lookup descriptor %s: %w", desc.UID, err)
	}
	if ok {
		return fmt.Errorf("descriptor %s already recorded: %w", desc.UID, broker.ErrInvalidDocument)
	}

	keys, err := json.Marshal(desc.DataKeys)
	if err != nil {
		return fmt.Errorf("encode data keys of %s: %w", desc.UID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO descriptors (uid, run_start, position, name, time, data_keys)
		VALUES (?, ?, (SELECT COUNT(*) FROM descriptors WHERE run_start = ?), ?, ?, ?)`,
		desc.UID, desc.RunStart, desc.RunStart, desc.Name, desc.Time, string(keys))
	if err != nil {
		return fmt.Errorf("insert descriptor %s: %w", desc.UID, err)
	}
	return nil
}

// InsertEvent records an event for an existing descriptor.
func (s *Store) InsertEvent(ctx context.Context, ev broker.Event) error {
	ok, err := s.exists(ctx, `SELECT 1 FROM descriptors WHERE uid = ?`, ev.Descriptor)
	if err != nil {
		return fmt.Errorf("lookup descriptor %s: %w", ev.Descriptor, err)
	}
	if !ok {
		return fmt.Errorf("event %s: unknown descriptor %q: %w", ev.UID, ev.Descriptor, broker.ErrInvalidDocument)
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode event %s data: %w", ev.UID, err)
	}
	ts, err := json.Marshal(ev.Timestamps)
	if err != nil {
		return fmt.Errorf("encode event %s timestamps: %w", ev.UID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (uid, descriptor, seq_num, time, data, timestamps)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.UID, ev.Descriptor, ev.SeqNum, ev.Time, string(data), string(ts))
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.UID, err)
	}
	return nil
}

// InsertRunStop records the stop document of an existing run.
func (s *Store) InsertRunStop(ctx context.Context, runStart string, stop broker.Document) error {
	ok, err := s.exists(ctx, `SELECT 1 FROM run_starts WHERE uid = ?`, runStart)
	if err != nil {
		return fmt.Errorf("lookup run start %s: %w", runStart, err)
	}
	if !ok {
		return fmt.Errorf("run stop: unknown run start %q: %w", runStart, broker.ErrInvalidDocument)
	}
	doc, err := json.Marshal(stop)
	if err != nil {
		return fmt.Errorf("encode run stop of %s: %w", runStart, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_stops (run_start, doc) VALUES (?, ?)
		ON CONFLICT(run_start) DO UPDATE SET doc = excluded.doc`, runStart, string(doc))
	if err != nil {
		return fmt.Errorf("insert run stop of %s: %w", runStart, err)
	}
	return nil
}

// Header returns the run whose start uid is uid.
func (s *Store) Header(ctx context.Context, uid string) (*broker.Header, error) {
	var startDoc string
	var stopDoc sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT s.doc, p.doc FROM run_starts s
		LEFT JOIN run_stops p ON p.run_start = s.uid
		WHERE s.uid = ?`, uid).Scan(&startDoc, &stopDoc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("header %s: %w", uid, broker.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query header %s: %w", uid, err)
	}
	return s.assemble(ctx, uid, startDoc, stopDoc)
}

func (s *Store) assemble(ctx context.Context, uid, startDoc string, stopDoc sql.NullString) (*broker.Header, error) {
	h := &broker.Header{}
	if err := json.Unmarshal([]byte(startDoc), &h.Start); err != nil {
		return nil, fmt.Errorf("decode run start %s: %w", uid, err)
	}
	if stopDoc.Valid {
		if err := json.Unmarshal([]byte(stopDoc.String), &h.Stop); err != nil {
			return nil, fmt.Errorf("decode run stop of %s: %w", uid, err)
		}
	}
	descs, err := s.descriptors(ctx, uid)
	if err != nil {
		return nil, err
	}
	h.Descriptors = descs
	return h, nil
}

func (s *Store) descriptors(ctx context.Context, runStart string) ([]broker.Descriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, name, time, data_keys FROM descriptors
		WHERE run_start = ? ORDER BY position`, runStart)
	if err != nil {
		return nil, fmt.Errorf("query descriptors of %s: %w", runStart, err)
	}
	defer rows.Close()

	var out []broker.Descriptor
	for rows.Next() {
		d := broker.Descriptor{RunStart: runStart}
		var keys string
		if err := rows.Scan(&d.UID, &d.Name, &d.Time, &keys); err != nil {
			return nil, fmt.Errorf("scan descriptor of %s: %w", runStart, err)
		}
		if err := json.Unmarshal([]byte(keys), &d.DataKeys); err != nil {
			return nil, fmt.Errorf("decode data keys of %s: %w", d.UID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Headers returns every run ordered by start time.
func (s *Store) Headers(ctx context.Context) ([]*broker.Header, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.uid, s.doc, p.doc FROM run_starts s
		LEFT JOIN run_stops p ON p.run_start = s.uid
		ORDER BY s.time, s.uid`)
	if err != nil {
		return nil, fmt.Errorf("query headers: %w", err)
	}

	type row struct {
		uid, start string
		stop       sql.NullString
	}
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.uid, &r.start, &r.stop); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan header: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate headers: %w", err)
	}
	// Release the connection before the per-header descriptor queries.
	_ = rows.Close()

	out := make([]*broker.Header, 0, len(pending))
	for _, r := range pending {
		h, err := s.assemble(ctx, r.uid, r.start, r.stop)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Events returns the descriptor's events in time order.
func (s *Store) Events(ctx context.Context, descriptorUID string) ([]broker.Event, error) {
	ok, err := s.exists(ctx, `SELECT 1 FROM descriptors WHERE uid = ?`, descriptorUID)
	if err != nil {
		return nil, fmt.Errorf("lookup descriptor %s: %w", descriptorUID, err)
	}
	if !ok {
		return nil, fmt.Errorf("descriptor %s: %w", descriptorUID, broker.ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, seq_num, time, data, timestamps FROM events
		WHERE descriptor = ? ORDER BY time, seq_num`, descriptorUID)
	if err != nil {
		return nil, fmt.Errorf("query events of %s: %w", descriptorUID, err)
	}
	defer rows.Close()

	out := []broker.Event{}
	for rows.Next() {
		ev := broker.Event{Descriptor: descriptorUID}
		var data, ts string
		if err := rows.Scan(&ev.UID, &ev.SeqNum, &ev.Time, &data, &ts); err != nil {
			return nil, fmt.Errorf("scan event of %s: %w", descriptorUID, err)
		}
		if err := json.Unmarshal([]byte(data), &ev.Data); err != nil {
			return nil, fmt.Errorf("decode event %s data: %w", ev.UID, err)
		}
		if err := json.Unmarshal([]byte(ts), &ev.Timestamps); err != nil {
			return nil, fmt.Errorf("decode event %s timestamps: %w", ev.UID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
