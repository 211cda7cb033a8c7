package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "gstaldergeist/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; database/sql queues the rest.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Info("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordCollections upserts rows; a refetch only refreshes fetched_at.
func (s *sqliteStore) RecordCollections(ctx context.Context, recs []CollectionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO collections(date, item, source, fetched_at) VALUES(?,?,?,?)
		 ON CONFLICT(date, item, source) DO UPDATE SET fetched_at=excluded.fetched_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		at := r.FetchedAt
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, r.Date, r.Item, r.Source, at.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Collections returns rows with from <= date <= to, ordered by date.
func (s *sqliteStore) Collections(ctx context.Context, from, to string) ([]CollectionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, item, source, fetched_at FROM collections
		 WHERE date >= ? AND date <= ? ORDER BY date, source, item`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CollectionRecord
	for rows.Next() {
		var r CollectionRecord
		var at string
		if err := rows.Scan(&r.Date, &r.Item, &r.Source, &at); err != nil {
			return nil, err
		}
		r.FetchedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneCollections deletes rows dated strictly before before.
func (s *sqliteStore) PruneCollections(ctx context.Context, before string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE date < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) AppendDutyEvent(ctx context.Context, e DutyEvent) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO duty_events(at, kind, cycle, phase, member, detail) VALUES(?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.Kind, nullStr(e.Cycle), e.Phase, e.Member, nullStr(e.Detail),
	)
	return err
}

// RecentDutyEvents returns up to limit events, newest first.
func (s *sqliteStore) RecentDutyEvents(ctx context.Context, limit int) ([]DutyEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, kind, COALESCE(cycle, ''), phase, member, COALESCE(detail, '')
		 FROM duty_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DutyEvent
	for rows.Next() {
		var e DutyEvent
		var at string
		if err := rows.Scan(&e.ID, &at, &e.Kind, &e.Cycle, &e.Phase, &e.Member, &e.Detail); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
