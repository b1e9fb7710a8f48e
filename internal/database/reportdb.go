package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/mentionscan/internal/model"
)

// ReportDB provides SQLite-based storage for mention reports and
// scheduler state.
//
// Design decision: We use a single database file for reports, subject
// rows, and schedule state rather than separate files. The scheduler
// marks a window fired right after the report run it started, history
// queries join subject rows to report metadata, and backup stays a
// single-file copy.
type ReportDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ReportDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ReportDB at the specified path.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*ReportDB, error) {
	dbPath := filepath.Join(dbDir, "mentionscan.db")

	// Check if we should create the database or require it to exist
	if !opts.CreateIfNotExists {
		// Check if database file exists
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		// Ensure directory exists
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Build connection string
	// We use modernc.org/sqlite which uses a different connection string format.
	// When CreateIfNotExists is false, we use mode=rw to prevent creating new files.
	// When CreateIfNotExists is true, we use mode=rwc to allow creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	// SQLite doesn't benefit from multiple connections for writes,
	// but multiple readers can improve performance
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &ReportDB{
		db:     db,
		dbPath: dbPath,
	}

	// Enable WAL mode if requested
	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	// Create tables
	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Close closes the database connection.
func (rdb *ReportDB) Close() error {
	return rdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (rdb *ReportDB) createTables() error {
	schema := `
	-- Reports store complete report runs as JSON plus queryable columns
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		range_start DATETIME NOT NULL,
		range_end DATETIME NOT NULL,
		timezone TEXT,
		generated_at DATETIME NOT NULL,
		total INTEGER NOT NULL,
		resolved_count INTEGER NOT NULL,
		unavailable_count INTEGER NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_kind ON reports(kind);
	CREATE INDEX IF NOT EXISTS idx_reports_generated ON reports(generated_at);

	-- Subject counts store one row per roster subject per report
	CREATE TABLE IF NOT EXISTS subject_counts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id TEXT NOT NULL,
		handle TEXT NOT NULL,
		display_name TEXT,
		term TEXT NOT NULL,
		value INTEGER NOT NULL,
		unavailable INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_subject_counts_report ON subject_counts(report_id);
	CREATE INDEX IF NOT EXISTS idx_subject_counts_handle ON subject_counts(handle);

	-- Schedule state records the last fired window per trigger
	CREATE TABLE IF NOT EXISTS schedule_state (
		trigger_name TEXT PRIMARY KEY,
		window_key TEXT NOT NULL,
		fired_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveReport saves a finalized report and its per-subject rows.
// The report row and subject rows are written in one transaction so a
// report never appears without its subject history.
func (rdb *ReportDB) SaveReport(ctx context.Context, report *model.MentionReport) error {
	// Serialize report to JSON
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	reportQuery := `
	INSERT INTO reports (id, kind, range_start, range_end, timezone, generated_at, total, resolved_count, unavailable_count, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, reportQuery,
		report.ID,
		string(report.Kind),
		formatTimestamp(report.Range.Start),
		formatTimestamp(report.Range.End),
		report.Timezone,
		formatTimestamp(report.GeneratedAt),
		report.Total,
		report.ResolvedCount,
		report.UnavailableCount,
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	rowQuery := `
	INSERT INTO subject_counts (report_id, handle, display_name, term, value, unavailable, source, attempts, reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, sc := range report.Results {
		_, err := tx.ExecContext(ctx, rowQuery,
			report.ID,
			sc.Handle,
			sc.DisplayName,
			sc.Term,
			sc.Count.Value,
			sc.Count.Unavailable,
			string(sc.Count.Source),
			sc.Count.Attempts,
			sc.Count.Reason,
		)
		if err != nil {
			return fmt.Errorf("failed to insert subject count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}

	return nil
}

// GetReport retrieves a report by its ID. Returns nil when no report
// with that ID exists.
func (rdb *ReportDB) GetReport(ctx context.Context, id string) (*model.MentionReport, error) {
	query := `
	SELECT report_json FROM reports
	WHERE id = ?
	`

	var reportJSON string
	err := rdb.db.QueryRowContext(ctx, query, id).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report model.MentionReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// LatestReport retrieves the most recent report of the given kind.
// Returns nil when no report of that kind has been stored.
func (rdb *ReportDB) LatestReport(ctx context.Context, kind model.ReportKind) (*model.MentionReport, error) {
	query := `
	SELECT report_json FROM reports
	WHERE kind = ?
	ORDER BY generated_at DESC
	LIMIT 1
	`

	var reportJSON string
	err := rdb.db.QueryRowContext(ctx, query, string(kind)).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest report: %w", err)
	}

	var report model.MentionReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// ReportMetadata contains summary information about a stored report.
// This is used for displaying report history without loading full reports.
type ReportMetadata struct {
	// ID is the unique identifier of the report.
	ID string

	// Kind is the calendar cadence of the report.
	Kind model.ReportKind

	// RangeStart and RangeEnd bound the interval the report covers, in UTC.
	RangeStart time.Time
	RangeEnd   time.Time

	// GeneratedAt is when the report run completed, in UTC.
	GeneratedAt time.Time

	// Total is the sum of resolved counts in the report.
	Total int

	// ResolvedCount is the number of subjects with a usable count.
	ResolvedCount int

	// UnavailableCount is the number of subjects that could not be resolved.
	UnavailableCount int
}

// ReportHistory retrieves stored report metadata, newest first.
// An empty kind matches all kinds. A limit of zero returns everything.
func (rdb *ReportDB) ReportHistory(ctx context.Context, kind model.ReportKind, limit int) ([]ReportMetadata, error) {
	query := `
	SELECT id, kind, range_start, range_end, generated_at, total, resolved_count, unavailable_count
	FROM reports
	WHERE 1=1
	`
	args := make([]interface{}, 0)

	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}

	query += " ORDER BY generated_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query report history: %w", err)
	}
	defer rows.Close()

	var results []ReportMetadata
	for rows.Next() {
		var meta ReportMetadata
		var kindStr string
		var rangeStart, rangeEnd, generatedAt string

		err := rows.Scan(
			&meta.ID,
			&kindStr,
			&rangeStart,
			&rangeEnd,
			&generatedAt,
			&meta.Total,
			&meta.ResolvedCount,
			&meta.UnavailableCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report metadata: %w", err)
		}

		meta.Kind = model.ReportKind(kindStr)
		meta.RangeStart = parseTimestamp(rangeStart)
		meta.RangeEnd = parseTimestamp(rangeEnd)
		meta.GeneratedAt = parseTimestamp(generatedAt)
		results = append(results, meta)
	}

	return results, rows.Err()
}

// SubjectMention is one subject's count inside one stored report.
type SubjectMention struct {
	// ReportID identifies the report the row belongs to.
	ReportID string

	// Kind is the cadence of that report.
	Kind model.ReportKind

	// RangeStart and RangeEnd bound the interval the count covers, in UTC.
	RangeStart time.Time
	RangeEnd   time.Time

	// GeneratedAt is when that report run completed, in UTC.
	GeneratedAt time.Time

	// Count is the stored resolution result.
	Count model.Count
}

// SubjectHistory retrieves one subject's counts across stored reports,
// newest first. A limit of zero returns everything.
func (rdb *ReportDB) SubjectHistory(ctx context.Context, handle string, limit int) ([]SubjectMention, error) {
	query := `
	SELECT sc.report_id, r.kind, r.range_start, r.range_end, r.generated_at,
	       sc.value, sc.unavailable, sc.source, sc.attempts, sc.reason
	FROM subject_counts sc
	JOIN reports r ON r.id = sc.report_id
	WHERE sc.handle = ?
	ORDER BY r.generated_at DESC
	`
	args := []interface{}{handle}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subject history: %w", err)
	}
	defer rows.Close()

	var results []SubjectMention
	for rows.Next() {
		var mention SubjectMention
		var kindStr string
		var rangeStart, rangeEnd, generatedAt string
		var source string

		err := rows.Scan(
			&mention.ReportID,
			&kindStr,
			&rangeStart,
			&rangeEnd,
			&generatedAt,
			&mention.Count.Value,
			&mention.Count.Unavailable,
			&source,
			&mention.Count.Attempts,
			&mention.Count.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subject mention: %w", err)
		}

		mention.Kind = model.ReportKind(kindStr)
		mention.RangeStart = parseTimestamp(rangeStart)
		mention.RangeEnd = parseTimestamp(rangeEnd)
		mention.GeneratedAt = parseTimestamp(generatedAt)
		mention.Count.Source = model.CountSource(source)
		results = append(results, mention)
	}

	return results, rows.Err()
}

// LastFired returns the window key most recently recorded for the named
// trigger. An empty key means the trigger has never fired.
func (rdb *ReportDB) LastFired(ctx context.Context, name string) (string, error) {
	query := `
	SELECT window_key FROM schedule_state
	WHERE trigger_name = ?
	`

	var key string
	err := rdb.db.QueryRowContext(ctx, query, name).Scan(&key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read schedule state: %w", err)
	}

	return key, nil
}

// MarkFired records the window key as fired for the named trigger.
// Uses UPSERT so each trigger keeps exactly one row.
func (rdb *ReportDB) MarkFired(ctx context.Context, name, key string) error {
	query := `
	INSERT INTO schedule_state (trigger_name, window_key)
	VALUES (?, ?)
	ON CONFLICT(trigger_name) DO UPDATE SET
		window_key = excluded.window_key,
		fired_at = CURRENT_TIMESTAMP
	`

	_, err := rdb.db.ExecContext(ctx, query, name, key)
	if err != nil {
		return fmt.Errorf("failed to mark window fired: %w", err)
	}

	return nil
}

// formatTimestamp stores times as RFC3339 in UTC so lexical column
// order matches chronological order.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339,              // Storage format used by this package
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC()
		}
	}
	// Return zero time if no format matches
	// This is a fallback to avoid breaking functionality for edge cases
	return time.Time{}
}
