// Package storage persists skipped pairs, the last set of duplicate pairs and
// scan history in a SQLite database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mediadupes/internal/models"
	"mediadupes/internal/skip"
)

// KeySkippedPairs is the table holding skipped pair keys
const KeySkippedPairs = "skipped_pairs"

// Storage handles persistence of skipped pairs, duplicate pairs and scans
type Storage struct {
	db     *sql.DB
	dbPath string
}

var _ skip.Store = (*Storage)(nil)

// NewStorage opens (and creates if needed) the database at dbPath
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps writes serialized
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Current schema version
const schemaVersion = 2

// migrations defines all schema migrations
// Each migration should be idempotent (safe to run multiple times)
var migrations = []struct {
	version     int
	description string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Record variant and threshold of each scan",
		up: `
			ALTER TABLE scan_history ADD COLUMN variant TEXT DEFAULT '';
			ALTER TABLE scan_history ADD COLUMN threshold REAL DEFAULT 0;
		`,
	},
}

// init creates the database schema
func (s *Storage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS ` + KeySkippedPairs + ` (
		pair_key TEXT PRIMARY KEY,
		id_a TEXT NOT NULL,
		id_b TEXT NOT NULL,
		skipped_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS duplicate_pairs (
		pair_key TEXT PRIMARY KEY,
		id_a TEXT NOT NULL,
		id_b TEXT NOT NULL,
		similarity REAL NOT NULL,
		method TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_duplicate_pairs_similarity ON duplicate_pairs(similarity);

	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		folder TEXT NOT NULL,
		scanned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		total_images INTEGER NOT NULL,
		excluded INTEGER NOT NULL,
		total_pairs INTEGER NOT NULL
	);
	`

	if _, err = s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// migrate runs pending schema migrations
func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion || m.up == "" {
			continue
		}

		// Column might already exist if a previous run died mid-migration
		if m.version == 2 && s.columnExists("scan_history", "variant") {
			s.setSchemaVersion(m.version)
			continue
		}

		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}

		s.setSchemaVersion(m.version)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// setSchemaVersion records a migration as applied
func (s *Storage) setSchemaVersion(version int) {
	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
}

// columnExists checks if a column exists in a table
func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file location
func (s *Storage) Path() string {
	return s.dbPath
}

// Load returns every skipped pair
func (s *Storage) Load(ctx context.Context) (skip.Set, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pair_key FROM `+KeySkippedPairs)
	if err != nil {
		return nil, fmt.Errorf("failed to query skipped pairs: %w", err)
	}
	defer rows.Close()

	set := skip.NewSet()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		set[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read skipped pairs: %w", err)
	}
	return set, nil
}

// Skip records the unordered pair (a, b). Recording a pair twice is a no-op.
func (s *Storage) Skip(ctx context.Context, a, b string) error {
	if b < a {
		a, b = b, a
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO `+KeySkippedPairs+` (pair_key, id_a, id_b)
		VALUES (?, ?, ?)
	`, models.PairKey(a, b), a, b)
	if err != nil {
		return fmt.Errorf("failed to skip pair: %w", err)
	}
	return nil
}

// Clear removes every skipped pair
func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+KeySkippedPairs); err != nil {
		return fmt.Errorf("failed to clear skipped pairs: %w", err)
	}
	return nil
}

// SavePairs replaces the stored duplicate pairs with pairs
func (s *Storage) SavePairs(ctx context.Context, pairs []models.DuplicatePair) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM duplicate_pairs"); err != nil {
		return fmt.Errorf("failed to reset pairs: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO duplicate_pairs (pair_key, id_a, id_b, similarity, method)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range pairs {
		if _, err := stmt.ExecContext(ctx, p.Key(), p.IDA, p.IDB, p.Similarity, string(p.Method)); err != nil {
			return fmt.Errorf("failed to insert pair %s: %w", p.Key(), err)
		}
	}

	return tx.Commit()
}

// GetPairs returns stored pairs by descending similarity, leaving out pairs
// skipped since they were saved
func (s *Storage) GetPairs(ctx context.Context) ([]models.DuplicatePair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id_a, id_b, similarity, method
		FROM duplicate_pairs
		WHERE pair_key NOT IN (SELECT pair_key FROM `+KeySkippedPairs+`)
		ORDER BY similarity DESC, pair_key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pairs: %w", err)
	}
	defer rows.Close()

	var pairs []models.DuplicatePair
	for rows.Next() {
		var p models.DuplicatePair
		var method string
		if err := rows.Scan(&p.IDA, &p.IDB, &p.Similarity, &method); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		p.Method = models.Method(method)
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// RecordScan records a scan in history
func (s *Storage) RecordScan(ctx context.Context, rec models.ScanRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_history (folder, total_images, excluded, total_pairs, variant, threshold)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Folder, rec.TotalImages, rec.Excluded, rec.TotalPairs, rec.Variant, rec.Threshold)
	if err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}
	return nil
}

// GetScanHistory returns up to limit scans, newest first
func (s *Storage) GetScanHistory(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, folder, scanned_at, total_images, excluded, total_pairs, variant, threshold
		FROM scan_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan history: %w", err)
	}
	defer rows.Close()

	var history []models.ScanRecord
	for rows.Next() {
		var rec models.ScanRecord
		var scannedAt string
		err := rows.Scan(&rec.ID, &rec.Folder, &scannedAt, &rec.TotalImages,
			&rec.Excluded, &rec.TotalPairs, &rec.Variant, &rec.Threshold)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec.ScannedAt = parseTime(scannedAt)
		history = append(history, rec)
	}
	return history, rows.Err()
}

// parseTime reads a SQLite CURRENT_TIMESTAMP value
func parseTime(v string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
