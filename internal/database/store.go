package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/excavate/internal/model"
	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the name of the database file inside the database directory.
const FileName = "excavate.db"

// timeLayout is a fixed-width RFC 3339 layout, so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// EventStore provides SQLite-based storage for scans and their events.
// It is safe for concurrent use.
type EventStore struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures EventStore behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates an EventStore in dbDir.
// If CreateIfNotExists is false and the database doesn't exist,
// ErrDatabaseNotFound is returned.
func Open(dbDir string, opts Options) (*EventStore, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &EventStore{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

// Path returns the path of the database file.
func (s *EventStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *EventStore) Close() error {
	return s.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (s *EventStore) createTables() error {
	schema := `
	-- One row per scan
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		targets TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);

	-- Events are unique per scan by type and payload
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL REFERENCES scans(id),
		event_key TEXT NOT NULL,
		event_id TEXT NOT NULL,
		type TEXT NOT NULL,
		data TEXT NOT NULL,
		tags TEXT NOT NULL,
		scope_distance INTEGER NOT NULL,
		web_spider_distance INTEGER NOT NULL,
		module TEXT,
		source_id TEXT,
		timestamp TEXT NOT NULL,
		UNIQUE(scan_id, event_key)
	);

	CREATE INDEX IF NOT EXISTS idx_events_scan ON events(scan_id);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Scan is a stored scan.
type Scan struct {
	// ID is the scan ID (a UUID).
	ID string `json:"id"`

	// Targets are the targets given to the scan.
	Targets []string `json:"targets"`

	// StartedAt is when the scan was created.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the scan was finished. Zero while it is running.
	FinishedAt time.Time `json:"finished_at"`

	// Summary is the JSON summary recorded by FinishScan.
	Summary json.RawMessage `json:"summary,omitempty"`

	// EventCount is the number of stored events.
	EventCount int `json:"event_count"`
}

// CreateScan records a new scan of targets and returns its ID.
func (s *EventStore) CreateScan(ctx context.Context, targets []string) (string, error) {
	targetsJSON, err := json.Marshal(targets)
	if err != nil {
		return "", fmt.Errorf("failed to serialize targets: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scans (id, targets, started_at) VALUES (?, ?, ?)`,
		id, string(targetsJSON), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create scan: %w", err)
	}
	return id, nil
}

// FinishScan marks a scan as finished and stores summary as JSON.
func (s *EventStore) FinishScan(ctx context.Context, scanID string, summary any) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE scans SET finished_at = ?, summary = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), string(summaryJSON), scanID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish scan: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrScanNotFound, scanID)
	}
	return nil
}

// Emit stores ev as part of scan scanID.
// Uses UPSERT so that an event emitted again replaces the stored row.
func (s *EventStore) Emit(ctx context.Context, scanID string, ev *model.Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	dataJSON, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("failed to serialize event data: %w", err)
	}
	tagsJSON, err := json.Marshal(ev.Tags)
	if err != nil {
		return fmt.Errorf("failed to serialize event tags: %w", err)
	}

	query := `
	INSERT INTO events (scan_id, event_key, event_id, type, data, tags, scope_distance, web_spider_distance, module, source_id, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(scan_id, event_key) DO UPDATE SET
		event_id = excluded.event_id,
		data = excluded.data,
		tags = excluded.tags,
		scope_distance = excluded.scope_distance,
		web_spider_distance = excluded.web_spider_distance,
		module = excluded.module,
		source_id = excluded.source_id,
		timestamp = excluded.timestamp
	`
	_, err = s.db.ExecContext(ctx, query,
		scanID,
		ev.Key(),
		ev.ID,
		string(ev.Type),
		string(dataJSON),
		string(tagsJSON),
		ev.ScopeDistance,
		ev.WebSpiderDistance,
		ev.Module,
		ev.SourceID,
		ev.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// ScanSink is an event sink writing into one scan of an EventStore.
type ScanSink struct {
	store  *EventStore
	scanID string
}

// Sink returns a sink that stores events under scanID.
func (s *EventStore) Sink(scanID string) *ScanSink {
	return &ScanSink{store: s, scanID: scanID}
}

// Emit stores ev.
func (k *ScanSink) Emit(ctx context.Context, ev *model.Event) error {
	return k.store.Emit(ctx, k.scanID, ev)
}

// ScanID returns the scan the sink writes to.
func (k *ScanSink) ScanID() string {
	return k.scanID
}

// Scan returns the scan with the given ID.
func (s *EventStore) Scan(ctx context.Context, scanID string) (*Scan, error) {
	query := `
	SELECT s.id, s.targets, s.started_at, s.finished_at, s.summary,
		(SELECT COUNT(*) FROM events e WHERE e.scan_id = s.id)
	FROM scans s
	WHERE s.id = ?
	`
	scan, err := scanScan(s.db.QueryRowContext(ctx, query, scanID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrScanNotFound, scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return scan, nil
}

// Scans returns every stored scan, newest first.
func (s *EventStore) Scans(ctx context.Context) ([]*Scan, error) {
	query := `
	SELECT s.id, s.targets, s.started_at, s.finished_at, s.summary,
		(SELECT COUNT(*) FROM events e WHERE e.scan_id = s.id)
	FROM scans s
	ORDER BY s.started_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []*Scan
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScan(row rowScanner) (*Scan, error) {
	var (
		scan        Scan
		targetsJSON string
		startedAt   string
		finishedAt  sql.NullString
		summary     sql.NullString
	)
	if err := row.Scan(&scan.ID, &targetsJSON, &startedAt, &finishedAt, &summary, &scan.EventCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(targetsJSON), &scan.Targets); err != nil {
		return nil, fmt.Errorf("failed to parse targets: %w", err)
	}
	scan.StartedAt = parseTimestamp(startedAt)
	if finishedAt.Valid {
		scan.FinishedAt = parseTimestamp(finishedAt.String)
	}
	if summary.Valid && summary.String != "" {
		scan.Summary = json.RawMessage(summary.String)
	}
	return &scan, nil
}

// Events returns the events of a scan in emission order.
func (s *EventStore) Events(ctx context.Context, scanID string) ([]*model.Event, error) {
	query := `
	SELECT event_id, type, data, tags, scope_distance, web_spider_distance, module, source_id, timestamp
	FROM events
	WHERE scan_id = ?
	ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		var (
			id, eventType, data, tagsJSON, timestamp string
			module, sourceID                         sql.NullString
			scopeDistance, spiderDistance            int
		)
		if err := rows.Scan(&id, &eventType, &data, &tagsJSON, &scopeDistance, &spiderDistance, &module, &sourceID, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		et := model.EventType(eventType)
		payload, err := model.DecodePayload(et, []byte(data))
		if err != nil {
			return nil, err
		}
		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			return nil, fmt.Errorf("failed to parse tags: %w", err)
		}

		ev, err := model.NewEvent(et, payload,
			model.WithID(id),
			model.WithSourceID(sourceID.String),
			model.WithTags(tags...),
			model.WithScopeDistance(scopeDistance),
			model.WithWebSpiderDistance(spiderDistance),
			model.WithModule(module.String),
			model.WithTimestamp(parseTimestamp(timestamp)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to restore event %s: %w", id, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Comparison is the difference between two scans.
type Comparison struct {
	// Base is the older scan.
	Base *Scan `json:"base"`

	// Other is the scan compared against Base.
	Other *Scan `json:"other"`

	// Added are events present only in Other.
	Added []*model.Event `json:"added"`

	// Removed are events present only in Base.
	Removed []*model.Event `json:"removed"`

	// Unchanged is the number of events present in both.
	Unchanged int `json:"unchanged"`
}

// CompareScans compares the events of two scans by event key.
func (s *EventStore) CompareScans(ctx context.Context, baseID, otherID string) (*Comparison, error) {
	base, err := s.Scan(ctx, baseID)
	if err != nil {
		return nil, err
	}
	other, err := s.Scan(ctx, otherID)
	if err != nil {
		return nil, err
	}

	baseEvents, err := s.Events(ctx, baseID)
	if err != nil {
		return nil, err
	}
	otherEvents, err := s.Events(ctx, otherID)
	if err != nil {
		return nil, err
	}

	baseKeys := make(map[string]struct{}, len(baseEvents))
	for _, ev := range baseEvents {
		baseKeys[ev.Key()] = struct{}{}
	}
	otherKeys := make(map[string]struct{}, len(otherEvents))
	for _, ev := range otherEvents {
		otherKeys[ev.Key()] = struct{}{}
	}

	c := &Comparison{Base: base, Other: other}
	for _, ev := range otherEvents {
		if _, ok := baseKeys[ev.Key()]; ok {
			c.Unchanged++
		} else {
			c.Added = append(c.Added, ev)
		}
	}
	for _, ev := range baseEvents {
		if _, ok := otherKeys[ev.Key()]; !ok {
			c.Removed = append(c.Removed, ev)
		}
	}
	return c, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
