package iotstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// recencyWindow bounds how far back a reading may be to still count as
// a device's current state. Sensors report on change, so anything
// older than two days is treated as stale.
const recencyWindow = 48 * time.Hour

const defaultStateTable = "iot_data"

// contactPayload is the relevant slice of a contact sensor's JSON
// payload. Contact closed (true) means the window is shut.
type contactPayload struct {
	Contact *bool `json:"contact"`
}

// StateReader reads latest device states from the IoT time-series
// database. It issues a single read-only query per request; the
// connection pool is owned by the caller.
type StateReader struct {
	db     *sql.DB
	table  string
	now    func() time.Time
	logger *slog.Logger
}

// ReaderOption customizes a StateReader.
type ReaderOption func(*StateReader)

// WithTable overrides the table name, e.g. for a schema-qualified
// hypertable.
func WithTable(table string) ReaderOption {
	return func(r *StateReader) { r.table = table }
}

// withClock overrides the time source for tests.
func withClock(now func() time.Time) ReaderOption {
	return func(r *StateReader) { r.now = now }
}

// NewStateReader constructs a reader over the given connection pool.
func NewStateReader(db *sql.DB, logger *slog.Logger, opts ...ReaderOption) *StateReader {
	r := &StateReader{
		db:     db,
		table:  defaultStateTable,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DeviceStates returns the most recent reading per device matching the
// given parameters, ordered by device name. Per device only the row
// with the greatest timestamp inside the recency window is considered;
// the state filter applies to that row alone, so a window whose latest
// reading is "closed" never matches an "open" query even if an older
// "open" reading exists.
//
// Rows whose payload cannot be parsed are skipped with a warning
// rather than failing the whole query. A returned error therefore
// always indicates a database/connectivity problem.
func (r *StateReader) DeviceStates(ctx context.Context, params Parameters) ([]DeviceState, error) {
	query, args := r.buildQuery(params)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query device states: %w", err)
	}
	defer rows.Close()

	var states []DeviceState
	for rows.Next() {
		var (
			name    string
			room    string
			ts      time.Time
			payload []byte
		)
		if err := rows.Scan(&name, &room, &ts, &payload); err != nil {
			return nil, fmt.Errorf("scan device state row: %w", err)
		}

		var contact contactPayload
		if err := json.Unmarshal(payload, &contact); err != nil || contact.Contact == nil {
			r.logger.Warn("skipping device row with malformed payload",
				"device_name", name,
				"room", room,
				"error", err,
			)
			continue
		}

		state := DeviceState{
			DeviceName: name,
			Room:       room,
			LastSeen:   ts,
			Open:       !*contact.Contact,
		}
		if !matchesFilter(state, params.StateFilter) {
			continue
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device state rows: %w", err)
	}
	return states, nil
}

// buildQuery assembles the latest-row-per-device query. DISTINCT ON
// with a (device_name, time DESC) sort keeps exactly the newest row
// per device; the room predicate is only added when rooms are given.
func (r *StateReader) buildQuery(params Parameters) (string, []any) {
	args := []any{string(params.DeviceType), r.now().Add(-recencyWindow)}

	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT DISTINCT ON (device_name) device_name, room, time, payload
FROM %s
WHERE device_type = $1
	AND time > $2`, r.table)

	if len(params.Rooms) > 0 {
		placeholders := make([]string, 0, len(params.Rooms))
		for _, room := range params.Rooms {
			args = append(args, normalizeRoom(room))
			placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
		}
		fmt.Fprintf(&sb, "\n\tAND room IN (%s)", strings.Join(placeholders, ", "))
	}

	sb.WriteString("\nORDER BY device_name, time DESC")
	return sb.String(), args
}

func matchesFilter(state DeviceState, filter StateFilter) bool {
	switch filter {
	case FilterOpen:
		return state.Open
	case FilterClosed:
		return !state.Open
	default:
		return true
	}
}

// Ping verifies database connectivity. Used by the health watcher.
func (r *StateReader) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
