// Package store persists Patterns, Candidates, DebugPatterns, votes, and
// lifecycle counters in SQLite, enforcing the uniqueness and concurrency
// invariants of spec.md §4.2 and §5. Grounded on the teacher's
// store.LocalStore: a single-writer/many-reader SQLite handle with WAL
// journaling, opened once per process.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/remembrance-oracle/oracle-core/internal/lineage"
	"github.com/remembrance-oracle/oracle-core/internal/logging"
)

// Store is the Pattern & Candidate Store (component B). A single *Store is
// meant to be shared by every component in a process; its internal mutex
// gives the single-writer/many-readers discipline spec.md §5 requires.
type Store struct {
	db         *sql.DB
	mu         sync.RWMutex
	path       string
	vectorExt  bool
	requireVec bool
	lineage    *lineage.Arena
}

// Open creates (or reopens) a SQLite-backed Store rooted at dbPath. When
// requireVec is true and the sqlite-vec extension cannot be loaded, Open
// fails fast rather than silently degrading semantic search to brute
// force, matching the teacher's requireVec knob.
func Open(dbPath string, requireVec bool) (*Store, error) {
	timer := logging.StartTimer("store.Open")
	defer timer.Stop()

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.Get(logging.CategoryStore).Warn("pragma failed %q: %v", pragma, err)
		}
	}

	s := &Store{db: db, path: dbPath, requireVec: requireVec, lineage: lineage.New()}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}

	s.vectorExt = s.detectVecExtension()
	if requireVec && !s.vectorExt {
		db.Close()
		return nil, fmt.Errorf("store: sqlite-vec extension required but not available (build with -tags sqlite_vec,cgo)")
	}
	if s.vectorExt {
		if _, err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_patterns USING vec0(pattern_id TEXT PRIMARY KEY, embedding float[768])`); err != nil {
			logging.Get(logging.CategoryStore).Warn("vec_patterns virtual table creation failed, disabling ANN search: %v", err)
			s.vectorExt = false
		}
	}
	if s.vectorExt {
		logging.Get(logging.CategoryStore).Info("sqlite-vec extension detected, ANN search enabled")
	} else {
		logging.Get(logging.CategoryStore).Warn("sqlite-vec extension unavailable, semantic search falls back to brute-force cosine")
	}

	if err := s.rebuildLineage(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: rebuild lineage arena: %w", err)
	}
	if err := s.autoDeduplicateOnStartup(); err != nil {
		logging.Get(logging.CategoryStore).Warn("startup dedup had issues: %v", err)
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// VectorSearchAvailable reports whether the sqlite-vec extension loaded.
func (s *Store) VectorSearchAvailable() bool { return s.vectorExt }

// DB exposes the underlying *sql.DB for components (e.g. search) that need
// read-only ad-hoc queries beyond the Store's own operation set.
func (s *Store) DB() *sql.DB { return s.db }

// Lineage exposes the append-only parent/child arena (REDESIGN FLAGS:
// "Arena for Pattern graphs").
func (s *Store) Lineage() *lineage.Arena { return s.lineage }

func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS patterns (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			name_lower TEXT NOT NULL,
			code TEXT NOT NULL,
			language TEXT NOT NULL,
			description TEXT,
			tags TEXT,
			test_code TEXT,
			pattern_type TEXT,
			complexity TEXT,
			coherency_total REAL,
			coherency_breakdown TEXT,
			usage_count INTEGER DEFAULT 0,
			success_count INTEGER DEFAULT 0,
			bug_reports INTEGER DEFAULT 0,
			healing_rate REAL DEFAULT 0,
			upvotes INTEGER DEFAULT 0,
			downvotes INTEGER DEFAULT 0,
			vote_score REAL DEFAULT 0,
			parent_pattern TEXT,
			generation_method TEXT,
			covenant_sealed INTEGER DEFAULT 1,
			author TEXT,
			min_hash TEXT,
			extensions TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			last_used_at DATETIME
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_patterns_name_lang ON patterns(name_lower, language)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_language ON patterns(language)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_updated ON patterns(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_coherency ON patterns(coherency_total)`,

		`CREATE TABLE IF NOT EXISTS candidates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			name_lower TEXT NOT NULL,
			code TEXT NOT NULL,
			language TEXT NOT NULL,
			description TEXT,
			tags TEXT,
			test_code TEXT,
			pattern_type TEXT,
			complexity TEXT,
			coherency_total REAL,
			coherency_breakdown TEXT,
			usage_count INTEGER DEFAULT 0,
			success_count INTEGER DEFAULT 0,
			bug_reports INTEGER DEFAULT 0,
			healing_rate REAL DEFAULT 0,
			upvotes INTEGER DEFAULT 0,
			downvotes INTEGER DEFAULT 0,
			vote_score REAL DEFAULT 0,
			parent_pattern TEXT,
			generation_method TEXT,
			covenant_sealed INTEGER DEFAULT 1,
			author TEXT,
			min_hash TEXT,
			extensions TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			last_used_at DATETIME
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_candidates_name_lang ON candidates(name_lower, language)`,

		`CREATE TABLE IF NOT EXISTS debug_patterns (
			id TEXT PRIMARY KEY,
			error_class TEXT NOT NULL,
			error_category TEXT,
			fix_code TEXT NOT NULL,
			language TEXT NOT NULL,
			times_applied INTEGER DEFAULT 0,
			times_resolved INTEGER DEFAULT 0,
			confidence REAL DEFAULT 0,
			extensions TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_debug_patterns_class_lang ON debug_patterns(error_class, language)`,

		`CREATE TABLE IF NOT EXISTS voters (
			id TEXT PRIMARY KEY,
			reputation REAL DEFAULT 1.0,
			weight REAL DEFAULT 1.0,
			total_votes INTEGER DEFAULT 0,
			accurate_votes INTEGER DEFAULT 0,
			contributions INTEGER DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS vote_ledger (
			pattern_id TEXT NOT NULL,
			voter_id TEXT NOT NULL,
			direction INTEGER NOT NULL,
			weight REAL NOT NULL,
			timestamp DATETIME NOT NULL,
			PRIMARY KEY (pattern_id, voter_id)
		)`,

		`CREATE TABLE IF NOT EXISTS lifecycle_counters (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			feedbacks INTEGER DEFAULT 0,
			submissions INTEGER DEFAULT 0,
			registrations INTEGER DEFAULT 0,
			heals INTEGER DEFAULT 0,
			rejections INTEGER DEFAULT 0,
			cycles INTEGER DEFAULT 0
		)`,
		`INSERT OR IGNORE INTO lifecycle_counters (id) VALUES (1)`,

		`CREATE TABLE IF NOT EXISTS idempotency_log (
			event_id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			processed_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS vectors (
			pattern_id TEXT PRIMARY KEY,
			embedding TEXT NOT NULL,
			dims INTEGER NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}

	return runMigrations(s.db)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
