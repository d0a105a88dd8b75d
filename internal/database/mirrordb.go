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

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitemirror/internal/model"
)

// FileName is the name of the history database inside the data directory.
const FileName = "sitemirror.db"

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("mirror run not found")

// MirrorDB stores the history of mirror runs.
//
// Design decision: One database file holds every site. The run row keeps
// the full Result as JSON so a stored run can be replayed into any report
// writer, while the pages and errors tables exist for filtered queries.
type MirrorDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures MirrorDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a MirrorDB inside dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*MirrorDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	// busy_timeout lets a CLI run and a serving control panel share the file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}
	dsn += "&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	mdb := &MirrorDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := mdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return mdb, nil
}

// Close closes the database connection.
func (mdb *MirrorDB) Close() error {
	return mdb.db.Close()
}

// Path returns the database file path.
func (mdb *MirrorDB) Path() string {
	return mdb.dbPath
}

func (mdb *MirrorDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		base_url TEXT NOT NULL,
		domain TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		phase TEXT NOT NULL,
		stopped INTEGER NOT NULL DEFAULT 0,
		page_count INTEGER NOT NULL DEFAULT 0,
		asset_count INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		result_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_domain ON runs(domain);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);

	CREATE TABLE IF NOT EXISTS errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		type TEXT NOT NULL,
		message TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_errors_run ON errors(run_id);
	CREATE INDEX IF NOT EXISTS idx_errors_type ON errors(type);
	`

	_, err := mdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID        int64
	BaseURL   string
	Domain    string
	OutputDir string
	Phase     model.Phase
	Stopped   bool
	Pages     int
	Assets    int
	Errors    int
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
}

// SaveRun stores a finished run and returns its ID.
// The run, its pages and its errors are written in one transaction.
func (mdb *MirrorDB) SaveRun(ctx context.Context, res *model.Result) (int64, error) {
	if res == nil {
		return 0, errors.New("cannot save nil result")
	}

	resultJSON, err := json.Marshal(res)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize result: %w", err)
	}

	tx, err := mdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO runs (base_url, domain, output_dir, phase, stopped, page_count, asset_count,
		error_count, started_at, ended_at, duration_ms, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		res.BaseURL,
		res.Domain,
		res.OutputDir,
		string(res.Phase),
		res.Stopped,
		res.PageCount(),
		res.AssetCount(),
		res.ErrorCount(),
		formatTimestamp(res.StartedAt),
		formatTimestamp(res.EndedAt),
		res.Duration.Milliseconds(),
		string(resultJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	for _, page := range res.Pages {
		if _, err := tx.ExecContext(ctx, "INSERT INTO pages (run_id, url) VALUES (?, ?)", id, page); err != nil {
			return 0, fmt.Errorf("failed to insert page: %w", err)
		}
	}

	for _, e := range res.Errors {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO errors (run_id, url, type, message) VALUES (?, ?, ?, ?)",
			id, e.URL, string(e.Type), e.Error,
		); err != nil {
			return 0, fmt.Errorf("failed to insert error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// ListRuns returns stored runs, newest first.
// An empty domain lists every site; limit <= 0 means no limit.
func (mdb *MirrorDB) ListRuns(ctx context.Context, domain string, limit int) ([]RunSummary, error) {
	query := `
	SELECT id, base_url, domain, output_dir, phase, stopped, page_count, asset_count,
		error_count, started_at, ended_at, duration_ms
	FROM runs
	WHERE (? = '' OR domain = ?)
	ORDER BY id DESC
	`
	args := []any{domain, domain}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := mdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			run                RunSummary
			phase              string
			startedAt, endedAt string
			durationMS         int64
		)
		if err := rows.Scan(
			&run.ID, &run.BaseURL, &run.Domain, &run.OutputDir, &phase, &run.Stopped,
			&run.Pages, &run.Assets, &run.Errors, &startedAt, &endedAt, &durationMS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Phase = model.Phase(phase)
		run.StartedAt = parseTimestamp(startedAt)
		run.EndedAt = parseTimestamp(endedAt)
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRun returns the full stored Result of a run.
// Returns ErrRunNotFound if no run has the given ID.
func (mdb *MirrorDB) GetRun(ctx context.Context, id int64) (*model.Result, error) {
	var resultJSON string
	err := mdb.db.QueryRowContext(ctx, "SELECT result_json FROM runs WHERE id = ?", id).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var res model.Result
	if err := json.Unmarshal([]byte(resultJSON), &res); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}
	return &res, nil
}

// RunErrors returns the failures recorded for a run, optionally filtered by type.
// An empty errType returns every failure.
func (mdb *MirrorDB) RunErrors(ctx context.Context, id int64, errType model.ErrorType) ([]model.ErrorRecord, error) {
	query := `
	SELECT url, type, message FROM errors
	WHERE run_id = ? AND (? = '' OR type = ?)
	ORDER BY id
	`
	rows, err := mdb.db.QueryContext(ctx, query, id, string(errType), string(errType))
	if err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}
	defer rows.Close()

	var records []model.ErrorRecord
	for rows.Next() {
		var (
			rec model.ErrorRecord
			typ string
		)
		if err := rows.Scan(&rec.URL, &typ, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan error: %w", err)
		}
		rec.Type = model.ErrorType(typ)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// HasPage reports whether any stored run of domain mirrored pageURL.
func (mdb *MirrorDB) HasPage(ctx context.Context, domain, pageURL string) (bool, error) {
	query := `
	SELECT COUNT(*) FROM pages
	JOIN runs ON runs.id = pages.run_id
	WHERE runs.domain = ? AND pages.url = ?
	`
	var count int
	if err := mdb.db.QueryRowContext(ctx, query, domain, pageURL).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to query pages: %w", err)
	}
	return count > 0, nil
}

// ListDomains returns every domain with at least one stored run.
func (mdb *MirrorDB) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := mdb.db.QueryContext(ctx, "SELECT DISTINCT domain FROM runs ORDER BY domain")
	if err != nil {
		return nil, fmt.Errorf("failed to query domains: %w", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, domain)
	}

	return domains, rows.Err()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
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

// parseTimestamp tries each known format and returns zero time if none match.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
