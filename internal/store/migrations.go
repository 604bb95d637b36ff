package store

import "database/sql"

// migration is one idempotent schema step, applied in order after the base
// CREATE TABLE statements. Grounded on the teacher's RunMigrations
// approach: each step is recorded by name in schema_migrations and skipped
// once applied.
type migration struct {
	name string
	stmt string
}

var migrations = []migration{
	{
		name: "patterns_min_hash_index",
		stmt: `CREATE INDEX IF NOT EXISTS idx_patterns_min_hash ON patterns(min_hash)`,
	},
	{
		name: "candidates_min_hash_index",
		stmt: `CREATE INDEX IF NOT EXISTS idx_candidates_min_hash ON candidates(min_hash)`,
	},
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at DATETIME DEFAULT CURRENT_TIMESTAMP)`); err != nil {
		return err
	}
	for _, m := range migrations {
		var exists int
		row := db.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, m.name)
		if err := row.Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			continue
		}
		if _, err := db.Exec(m.stmt); err != nil {
			return err
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (name) VALUES (?)`, m.name); err != nil {
			return err
		}
	}
	return nil
}
