package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/remembrance-oracle/oracle-core/internal/types"
)

const debugPatternSelect = `SELECT
	id, error_class, error_category, fix_code, language,
	times_applied, times_resolved, confidence, extensions, created_at, updated_at
FROM debug_patterns`

// InsertDebugPattern stores a fix for an (errorClass, language) pair,
// merging into the existing fix (if any) rather than creating a
// duplicate, mirroring the Pattern store's I2 uniqueness discipline.
func (s *Store) InsertDebugPattern(d types.DebugPattern) (types.DebugPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	extJSON, err := json.Marshal(d.Extensions)
	if err != nil {
		return types.DebugPattern{}, err
	}

	_, err = s.db.Exec(`
		INSERT INTO debug_patterns (
			id, error_class, error_category, fix_code, language,
			times_applied, times_resolved, confidence, extensions, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(error_class, language) DO UPDATE SET
			error_category=excluded.error_category, fix_code=excluded.fix_code,
			confidence=excluded.confidence, extensions=excluded.extensions, updated_at=excluded.updated_at
	`, d.ID, d.ErrorClass, d.ErrorCategory, d.FixCode, string(d.Language),
		d.TimesApplied, d.TimesResolved, d.Confidence, string(extJSON), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return types.DebugPattern{}, err
	}

	return s.findDebugPatternLocked(d.ErrorClass, d.Language)
}

// FindDebugPattern looks up the fix registered for (errorClass, language).
func (s *Store) FindDebugPattern(errorClass string, language types.Language) (types.DebugPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findDebugPatternLocked(errorClass, language)
}

func (s *Store) findDebugPatternLocked(errorClass string, language types.Language) (types.DebugPattern, error) {
	row := s.db.QueryRow(debugPatternSelect+` WHERE error_class = ? AND language = ?`, errorClass, string(language))
	return scanDebugPatternRow(row)
}

func scanDebugPatternRow(row *sql.Row) (types.DebugPattern, error) {
	var d types.DebugPattern
	var extJSON sql.NullString
	err := row.Scan(&d.ID, &d.ErrorClass, &d.ErrorCategory, &d.FixCode, &d.Language,
		&d.TimesApplied, &d.TimesResolved, &d.Confidence, &extJSON, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.DebugPattern{}, types.ErrNotFound
		}
		return types.DebugPattern{}, err
	}
	unmarshalOptional(extJSON, &d.Extensions)
	return d, nil
}

// RecordApplication bumps timesApplied, and timesResolved when resolved
// is true, recomputing confidence as resolved/applied.
func (s *Store) RecordApplication(id string, resolved bool) (types.DebugPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(debugPatternSelect+` WHERE id = ?`, id)
	d, err := scanDebugPatternRow(row)
	if err != nil {
		return types.DebugPattern{}, err
	}

	d.TimesApplied++
	if resolved {
		d.TimesResolved++
	}
	if d.TimesApplied > 0 {
		d.Confidence = float64(d.TimesResolved) / float64(d.TimesApplied)
	}
	d.UpdatedAt = time.Now().UTC()

	_, err = s.db.Exec(`UPDATE debug_patterns SET times_applied = ?, times_resolved = ?, confidence = ?, updated_at = ? WHERE id = ?`,
		d.TimesApplied, d.TimesResolved, d.Confidence, d.UpdatedAt, d.ID)
	return d, err
}
