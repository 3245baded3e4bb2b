// Package sqlite is the storage collaborator: lightning events, experiments,
// and storms in a single SQLite database. Experiment identity uniqueness is
// enforced with a UNIQUE constraint, event ranges stream through sql.Rows,
// and each storm is written in one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/meteolab/storm-cluster-service/internal/cluster"
	"github.com/meteolab/storm-cluster-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS data_provider (
	data_provider_name TEXT PRIMARY KEY,
	description        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS lightning (
	lightning_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	utc_time_ns        INTEGER NOT NULL,
	x_4258             REAL NOT NULL,
	y_4258             REAL NOT NULL,
	x_25831            REAL NOT NULL,
	y_25831            REAL NOT NULL,
	data_provider_name TEXT NOT NULL REFERENCES data_provider(data_provider_name),
	payload            TEXT
);

CREATE INDEX IF NOT EXISTS idx_lightning_provider_time
	ON lightning(data_provider_name, utc_time_ns);

CREATE TABLE IF NOT EXISTS experiment (
	experiment_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	algorithm          TEXT NOT NULL,
	parameters         TEXT NOT NULL,
	data_provider_name TEXT NOT NULL REFERENCES data_provider(data_provider_name),
	UNIQUE(algorithm, parameters, data_provider_name)
);

CREATE TABLE IF NOT EXISTS thunderstorm (
	thunderstorm_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment_id         INTEGER NOT NULL REFERENCES experiment(experiment_id) ON DELETE CASCADE,
	utc_start_ns          INTEGER NOT NULL,
	utc_end_ns            INTEGER NOT NULL,
	x_4258                REAL NOT NULL,
	y_4258                REAL NOT NULL,
	x_4326                REAL NOT NULL,
	y_4326                REAL NOT NULL,
	x_25831               REAL NOT NULL,
	y_25831               REAL NOT NULL,
	lightnings_per_minute REAL NOT NULL,
	travelled_distance    REAL NOT NULL,
	cardinal_direction    REAL NOT NULL,
	speed                 REAL NOT NULL,
	number_of_lightnings  INTEGER NOT NULL,
	convex_hull_4258      TEXT,
	convex_hull_4326      TEXT,
	convex_hull_25831     TEXT,
	computed_at_ns        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS thunderstorm_lightning (
	thunderstorm_id INTEGER NOT NULL REFERENCES thunderstorm(thunderstorm_id) ON DELETE CASCADE,
	lightning_id    INTEGER NOT NULL REFERENCES lightning(lightning_id),
	PRIMARY KEY (thunderstorm_id, lightning_id)
);
`

// Store implements cluster.Store over SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. Every Open gets its own connection pool, so sweep workers call it
// once each.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureProvider registers a data provider if it is not present.
func (s *Store) EnsureProvider(ctx context.Context, name, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO data_provider(data_provider_name, description) VALUES (?, ?)`,
		name, description)
	if err != nil {
		return fmt.Errorf("ensure provider %s: %w", name, err)
	}
	return nil
}

// InsertEvents stores a batch of lightning events in one transaction,
// filling in their assigned IDs.
func (s *Store) InsertEvents(ctx context.Context, events []*domain.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lightning(utc_time_ns, x_4258, y_4258, x_25831, y_25831, data_provider_name, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // closed with tx

	for _, ev := range events {
		payload, err := marshalPayload(ev.Payload)
		if err != nil {
			return err
		}
		res, err := stmt.ExecContext(ctx,
			ev.Time.UnixNano(), ev.X4258, ev.Y4258, ev.X25831, ev.Y25831, ev.Provider, payload)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		ev.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit()
}

func marshalPayload(p domain.ProviderPayload) (any, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal provider payload: %w", err)
	}
	return string(data), nil
}

// EventRange opens a streamed ascending query over [from, to). The rows
// cursor pulls events incrementally; the range is never materialized here.
func (s *Store) EventRange(ctx context.Context, provider string, from, to time.Time) (cluster.EventCursor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lightning_id, utc_time_ns, x_4258, y_4258, x_25831, y_25831, data_provider_name, payload
		FROM lightning
		WHERE data_provider_name = ? AND utc_time_ns >= ? AND utc_time_ns < ?
		ORDER BY utc_time_ns ASC, lightning_id ASC`,
		provider, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query event range: %w", err)
	}
	return &eventCursor{rows: rows}, nil
}

type eventCursor struct {
	rows *sql.Rows
	ev   *domain.Event
	err  error
}

func (c *eventCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}

	var (
		ev      domain.Event
		timeNS  int64
		payload sql.NullString
	)
	c.err = c.rows.Scan(&ev.ID, &timeNS, &ev.X4258, &ev.Y4258, &ev.X25831, &ev.Y25831, &ev.Provider, &payload)
	if c.err != nil {
		return false
	}
	ev.Time = time.Unix(0, timeNS).UTC()

	if payload.Valid && ev.Provider == domain.MeteocatProvider {
		var p domain.MeteocatPayload
		if c.err = json.Unmarshal([]byte(payload.String), &p); c.err != nil {
			return false
		}
		ev.Payload = p
	}

	c.ev = &ev
	return true
}

func (c *eventCursor) Event() *domain.Event { return c.ev }

func (c *eventCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *eventCursor) Close() error { return c.rows.Close() }

// FindExperiment looks up an experiment identity. Missing is not an error.
func (s *Store) FindExperiment(ctx context.Context, algorithm domain.Algorithm, params map[string]string, provider string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT experiment_id FROM experiment
		WHERE algorithm = ? AND parameters = ? AND data_provider_name = ?`,
		string(algorithm), domain.CanonicalKey(params), provider).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find experiment: %w", err)
	}
	return id, true, nil
}

// InsertExperiment creates a new experiment. The UNIQUE constraint on
// (algorithm, parameters, provider) maps to domain.ErrDuplicateExperiment.
func (s *Store) InsertExperiment(ctx context.Context, algorithm domain.Algorithm, params map[string]string, provider string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO experiment(algorithm, parameters, data_provider_name) VALUES (?, ?, ?)`,
		string(algorithm), domain.CanonicalKey(params), provider)
	if isUniqueViolation(err) {
		return 0, domain.ErrDuplicateExperiment
	}
	if err != nil {
		return 0, fmt.Errorf("insert experiment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert experiment: %w", err)
	}
	return id, nil
}

// WriteStorm persists a storm's derived attributes and its ordered member
// associations in one transaction.
func (s *Store) WriteStorm(ctx context.Context, storm *domain.Storm) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write storm: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO thunderstorm(
			experiment_id, utc_start_ns, utc_end_ns,
			x_4258, y_4258, x_4326, y_4326, x_25831, y_25831,
			lightnings_per_minute, travelled_distance, cardinal_direction, speed,
			number_of_lightnings,
			convex_hull_4258, convex_hull_4326, convex_hull_25831,
			computed_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		storm.ExperimentID, storm.Start.UnixNano(), storm.End.UnixNano(),
		storm.X4258, storm.Y4258, storm.X4326, storm.Y4326, storm.X25831, storm.Y25831,
		storm.LightningsPerMinute, storm.TravelledDistance, storm.CardinalDirection, storm.Speed,
		storm.NumberOfLightnings,
		hullWKT(storm.Hull4258), hullWKT(storm.Hull4326), hullWKT(storm.Hull25831),
		storm.ComputedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("write storm: %w", err)
	}
	stormID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("write storm: %w", err)
	}
	storm.ID = stormID

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO thunderstorm_lightning(thunderstorm_id, lightning_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("write storm members: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // closed with tx

	for _, ev := range storm.Events {
		if _, err := stmt.ExecContext(ctx, stormID, ev.ID); err != nil {
			return fmt.Errorf("write storm member %d: %w", ev.ID, err)
		}
	}
	return tx.Commit()
}

// CountExperiments returns the number of stored experiments, used by tests
// and operational checks.
func (s *Store) CountExperiments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiment`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count experiments: %w", err)
	}
	return n, nil
}

// CountStormMembers returns the number of member associations for a storm.
func (s *Store) CountStormMembers(ctx context.Context, stormID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM thunderstorm_lightning WHERE thunderstorm_id = ?`, stormID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count storm members: %w", err)
	}
	return n, nil
}

func hullWKT(p orb.Polygon) any {
	if p == nil {
		return nil
	}
	return wkt.MarshalString(p)
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}
