package sqlite

import (
	"fmt"
	"strings"

	"github.com/OpenCHAMI/pductl/internal/cache"
	"github.com/OpenCHAMI/pductl/internal/util"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const TABLE_NAME = "pductl_outlet_events"

// History is the sqlite-backed cache of outlet changes.
type History struct {
	db *sqlx.DB
}

var _ cache.Cache[cache.OutletEvent] = (*History)(nil)

// CreateHistoryIfNotExists opens the database at path, creating the file
// and the events table as needed.
func CreateHistoryIfNotExists(path string) (*History, error) {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id 			TEXT PRIMARY KEY,
		endpoint 	TEXT NOT NULL,
		device 		TEXT NOT NULL,
		outlet 		INTEGER NOT NULL,
		state 		BOOLEAN NOT NULL,
		request_id 	TEXT,
		timestamp 	TIMESTAMP NOT NULL
	);
	`, TABLE_NAME)
	if err := util.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	// one writer at a time; sqlite serializes anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %v", err)
	}
	return &History{db: db}, nil
}

// OpenHistory opens an existing database without creating it.
func OpenHistory(path string) (*History, error) {
	if _, exists := util.PathExists(path); !exists {
		return nil, fmt.Errorf("no file found at %s", path)
	}
	return CreateHistoryIfNotExists(path)
}

func (h *History) Insert(events ...cache.OutletEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := h.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	sql := fmt.Sprintf(`INSERT INTO %s (id, endpoint, device, outlet, state, request_id, timestamp)
		VALUES (:id, :endpoint, :device, :outlet, :state, :request_id, :timestamp);`, TABLE_NAME)
	for _, event := range events {
		if event.ID == uuid.Nil {
			event.ID = uuid.New()
		}
		if _, err := tx.NamedExec(sql, &event); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert event: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

func (h *History) Delete(ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("DELETE FROM %s WHERE id IN (?);", TABLE_NAME), ids)
	if err != nil {
		return fmt.Errorf("failed to build query: %v", err)
	}
	if _, err := h.db.Exec(h.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to delete events: %v", err)
	}
	return nil
}

// Get returns matching events, newest first.
func (h *History) Get(filter cache.Filter) ([]cache.OutletEvent, error) {
	var (
		where []string
		args  = map[string]any{}
	)
	if filter.Endpoint != "" {
		where = append(where, "endpoint = :endpoint")
		args["endpoint"] = filter.Endpoint
	}
	if !filter.Since.IsZero() {
		where = append(where, "timestamp >= :since")
		args["since"] = filter.Since
	}

	sql := fmt.Sprintf("SELECT * FROM %s", TABLE_NAME)
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		sql += " LIMIT :limit"
		args["limit"] = filter.Limit
	}

	rows, err := h.db.NamedQuery(sql, args)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %v", err)
	}
	defer rows.Close()

	results := []cache.OutletEvent{}
	for rows.Next() {
		var event cache.OutletEvent
		if err := rows.StructScan(&event); err != nil {
			return nil, fmt.Errorf("failed to scan event: %v", err)
		}
		results = append(results, event)
	}
	return results, rows.Err()
}

func (h *History) Close() error {
	return h.db.Close()
}
