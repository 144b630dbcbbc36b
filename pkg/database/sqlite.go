package database

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps every record as a JSON value in one table.
// One connection plus writeMu serialises all writers.
type SQLiteStore struct {
	conn    *sql.DB
	writeMu sync.Mutex
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.KindPersistence, "sqlite.open", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, pkgerrors.Wrap(pkgerrors.KindPersistence, "sqlite.open", err)
	}

	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, pkgerrors.Wrap(pkgerrors.KindPersistence, "sqlite.schema", err)
	}

	log.Info().Str("path", path).Msg("Connected to SQLite store")

	return &SQLiteStore{conn: conn}, nil
}

// DB exposes the connection pool for stats collection
func (s *SQLiteStore) DB() *sql.DB {
	return s.conn
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readRecord(ctx context.Context, q queryer, key string, target any) (bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal([]byte(value), target); err != nil {
		return false, err
	}

	return true, nil
}

func writeRecord(ctx context.Context, tx *sql.Tx, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (key, value, version, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			version = records.version + 1,
			updated_at = excluded.updated_at`,
		key, string(encoded), time.Now().UnixMilli(),
	)

	return err
}

// mutate runs update inside a write transaction on one record
func (s *SQLiteStore) mutate(ctx context.Context, op string, key string, target any, update func(exists bool) (any, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.KindPersistence, op, err)
	}
	defer tx.Rollback()

	exists, err := readRecord(ctx, tx, key, target)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.KindPersistence, op, err)
	}

	value, err := update(exists)
	if err != nil {
		return err
	}

	if err := writeRecord(ctx, tx, key, value); err != nil {
		return pkgerrors.Wrap(pkgerrors.KindPersistence, op, err)
	}

	if err := tx.Commit(); err != nil {
		return pkgerrors.Wrap(pkgerrors.KindPersistence, op, err)
	}

	return nil
}

func (s *SQLiteStore) LoadAlarms(ctx context.Context) ([]*ctdf.Alarm, error) {
	var alarms []*ctdf.Alarm
	if _, err := readRecord(ctx, s.conn, alarmsKey, &alarms); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.KindPersistence, "sqlite.alarms", err)
	}

	return alarms, nil
}

func (s *SQLiteStore) UpdateAlarms(ctx context.Context, update func([]*ctdf.Alarm) ([]*ctdf.Alarm, error)) error {
	var alarms []*ctdf.Alarm

	return s.mutate(ctx, "sqlite.alarms", alarmsKey, &alarms, func(bool) (any, error) {
		updated, err := update(alarms)
		if err != nil {
			return nil, err
		}
		if updated == nil {
			updated = []*ctdf.Alarm{}
		}

		return updated, nil
	})
}

func (s *SQLiteStore) LoadRoute(ctx context.Context) (ctdf.Route, error) {
	var route ctdf.Route
	if _, err := readRecord(ctx, s.conn, routeKey, &route); err != nil {
		return ctdf.Route{}, pkgerrors.Wrap(pkgerrors.KindPersistence, "sqlite.route", err)
	}

	return route, nil
}

func (s *SQLiteStore) SaveRoute(ctx context.Context, route ctdf.Route) error {
	var existing ctdf.Route

	return s.mutate(ctx, "sqlite.route", routeKey, &existing, func(bool) (any, error) {
		return route, nil
	})
}

func (s *SQLiteStore) SwapRoute(ctx context.Context) (ctdf.Route, error) {
	var route ctdf.Route
	var swapped ctdf.Route

	err := s.mutate(ctx, "sqlite.route", routeKey, &route, func(exists bool) (any, error) {
		if !exists || (route.Origin == nil && route.Destination == nil) {
			return nil, pkgerrors.New(pkgerrors.KindNotFound, "sqlite.route", "no route configured")
		}

		swapped = route.Swapped()
		return swapped, nil
	})

	return swapped, err
}
