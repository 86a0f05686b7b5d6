package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"lootforge/internal/editor"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_edits (
  document_id TEXT PRIMARY KEY,
  operations TEXT NOT NULL,
  last_modified_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session_bookmarks (
  document_id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS session_meta (
  meta_key TEXT PRIMARY KEY,
  meta_value TEXT NOT NULL
);
`

const (
	metaVersion   = "version"
	metaSavedAt   = "saved_at"
	metaOverrides = "link_overrides"
)

// SQLStore persists a session in three tables. The same code serves PostgreSQL
// (pgx stdlib driver) and SQLite (modernc driver); only placeholders differ.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time

	schemaOnce sync.Once
	schemaErr  error
}

// NewPostgres opens a PostgreSQL-backed store.
func NewPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	return openSQL(ctx, "pgx", strings.TrimSpace(dsn))
}

// NewSQLite opens a SQLite-backed store; path may be ":memory:".
func NewSQLite(ctx context.Context, path string) (*SQLStore, error) {
	s, err := openSQL(ctx, "sqlite", strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	// one connection keeps :memory: databases alive and serialises writers
	s.db.SetMaxOpenConns(1)
	return s, nil
}

func openSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("session: empty %s dsn", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &SQLStore{db: db, driver: driver, now: time.Now}, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, schema)
	})
	return s.schemaErr
}

// q rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) q(query string) string {
	if s.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Save(ctx context.Context, snap Snapshot) error {
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("session schema: %w", err)
	}
	snap = Normalize(snap)
	overrides, err := json.Marshal(snap.LinkOverrides)
	if err != nil {
		return fmt.Errorf("encode link overrides: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"session_edits", "session_bookmarks", "session_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, log := range snap.Edits {
		ops, err := json.Marshal(log.Operations)
		if err != nil {
			return fmt.Errorf("encode operations of %s: %w", log.DocumentID, err)
		}
		_, err = tx.ExecContext(ctx,
			s.q(`INSERT INTO session_edits (document_id, operations, last_modified_at) VALUES (?, ?, ?)`),
			log.DocumentID, string(ops), log.LastModifiedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert edits of %s: %w", log.DocumentID, err)
		}
	}
	for _, id := range snap.Bookmarks {
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO session_bookmarks (document_id) VALUES (?)`), id); err != nil {
			return fmt.Errorf("insert bookmark %s: %w", id, err)
		}
	}
	meta := [][2]string{
		{metaVersion, fmt.Sprint(snap.Version)},
		{metaSavedAt, s.now().UTC().Format(time.RFC3339Nano)},
		{metaOverrides, string(overrides)},
	}
	for _, kv := range meta {
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO session_meta (meta_key, meta_value) VALUES (?, ?)`), kv[0], kv[1]); err != nil {
			return fmt.Errorf("insert %s: %w", kv[0], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) (Snapshot, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("session schema: %w", err)
	}
	var snap Snapshot
	err := s.each(ctx, `SELECT document_id, operations, last_modified_at FROM session_edits ORDER BY document_id`,
		func(rows *sql.Rows) error {
			var id, ops, modified string
			if err := rows.Scan(&id, &ops, &modified); err != nil {
				return err
			}
			log := editor.EditLog{DocumentID: id}
			if err := json.Unmarshal([]byte(ops), &log.Operations); err != nil {
				return fmt.Errorf("decode operations of %s: %w", id, err)
			}
			if t, err := time.Parse(time.RFC3339Nano, modified); err == nil {
				log.LastModifiedAt = t
			}
			snap.Edits = append(snap.Edits, log)
			return nil
		})
	if err != nil {
		return Snapshot{}, fmt.Errorf("load edits: %w", err)
	}

	err = s.each(ctx, `SELECT document_id FROM session_bookmarks ORDER BY document_id`, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		snap.Bookmarks = append(snap.Bookmarks, id)
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("load bookmarks: %w", err)
	}

	err = s.each(ctx, `SELECT meta_key, meta_value FROM session_meta`, func(rows *sql.Rows) error {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		switch key {
		case metaVersion:
			snap.Version, _ = strconv.Atoi(value)
		case metaSavedAt:
			snap.SavedAt, _ = time.Parse(time.RFC3339Nano, value)
		case metaOverrides:
			if err := json.Unmarshal([]byte(value), &snap.LinkOverrides); err != nil {
				return fmt.Errorf("decode link overrides: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("load meta: %w", err)
	}
	return Normalize(snap), nil
}

// each runs query and calls fn per row; the rows are closed before it returns.
func (s *SQLStore) each(ctx context.Context, query string, fn func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
