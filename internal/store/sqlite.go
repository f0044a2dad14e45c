package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"

	"actionboard/internal/domain"
	"actionboard/internal/migrate"
)

// SQLiteStore keeps activities as one JSON document per row, the id
// counter in a meta table, and the registry as a single-row document.
// Saves replace the full dataset inside one transaction.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.StorageError{Op: "open sqlite", Err: err}
	}
	// modernc.org/sqlite serializes writes per connection.
	db.SetMaxOpenConns(1)
	if err := migrate.Apply(db); err != nil {
		db.Close()
		return nil, domain.StorageError{Op: "migrate", Err: err}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadActivities(ctx context.Context) (domain.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM activities ORDER BY id`)
	if err != nil {
		return domain.Collection{}, domain.StorageError{Op: "load activities", Err: err}
	}
	defer rows.Close()

	c := EmptyCollection()
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return domain.Collection{}, domain.StorageError{Op: "load activities", Err: err}
		}
		var a domain.Activity
		if err := json.Unmarshal([]byte(doc), &a); err != nil {
			return domain.Collection{}, domain.StorageError{Op: "decode activity", Err: err}
		}
		c.Activities = append(c.Activities, a)
	}
	if err := rows.Err(); err != nil {
		return domain.Collection{}, domain.StorageError{Op: "load activities", Err: err}
	}

	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'next_id'`).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		// keep the default
	case err != nil:
		return domain.Collection{}, domain.StorageError{Op: "load next_id", Err: err}
	default:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Collection{}, domain.StorageError{Op: "load next_id", Err: err}
		}
		c.NextID = n
	}
	return c, nil
}

func (s *SQLiteStore) SaveActivities(ctx context.Context, c domain.Collection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageError{Op: "save activities", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM activities`); err != nil {
		return domain.StorageError{Op: "save activities", Err: err}
	}
	for _, a := range c.Activities {
		doc, err := json.Marshal(a)
		if err != nil {
			return domain.StorageError{Op: "encode activity", Err: err}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO activities (id, doc) VALUES (?, ?)`, a.ID, string(doc)); err != nil {
			return domain.StorageError{Op: "save activities", Err: err}
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('next_id', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(c.NextID)); err != nil {
		return domain.StorageError{Op: "save next_id", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.StorageError{Op: "save activities", Err: err}
	}
	return nil
}

func (s *SQLiteStore) LoadRegistry(ctx context.Context) (domain.Registry, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM registry WHERE id = 1`).Scan(&doc)
	if err == sql.ErrNoRows {
		return domain.Registry{}, nil
	}
	if err != nil {
		return domain.Registry{}, domain.StorageError{Op: "load registry", Err: err}
	}
	var r domain.Registry
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return domain.Registry{}, domain.StorageError{Op: "decode registry", Err: err}
	}
	return r, nil
}

func (s *SQLiteStore) SaveRegistry(ctx context.Context, r domain.Registry) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return domain.StorageError{Op: "encode registry", Err: err}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO registry (id, doc) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`,
		string(doc)); err != nil {
		return domain.StorageError{Op: "save registry", Err: err}
	}
	return nil
}
