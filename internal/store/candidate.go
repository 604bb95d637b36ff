package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/remembrance-oracle/oracle-core/internal/types"
)

const candidateSelect = `SELECT
	id, name, code, language, description, tags, test_code, pattern_type, complexity,
	coherency_total, coherency_breakdown, usage_count, success_count, bug_reports, healing_rate,
	upvotes, downvotes, vote_score, parent_pattern, generation_method, covenant_sealed, author,
	min_hash, extensions, created_at, updated_at, last_used_at
FROM candidates`

// InsertCandidate stores c in the Candidate collection. Re-inserting a
// candidate with the same ID overwrites it. The collection enforces the
// same (name, language) uniqueness as patterns, but does not merge: a
// second candidate with an existing (name, language) under a different ID
// is rejected by the unique index and the error is returned.
func (s *Store) InsertCandidate(c types.Candidate) (types.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	if err := s.writeCandidateLocked(c); err != nil {
		return types.Candidate{}, err
	}
	return c, nil
}

func (s *Store) writeCandidateLocked(c types.Candidate) error {
	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return err
	}
	breakdownJSON, err := json.Marshal(c.CoherencyScore.Breakdown)
	if err != nil {
		return err
	}
	extJSON, err := json.Marshal(c.Extensions)
	if err != nil {
		return err
	}
	minHashJSON, err := json.Marshal(c.MinHashSignature)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO candidates (
			id, name, name_lower, code, language, description, tags, test_code,
			pattern_type, complexity, coherency_total, coherency_breakdown,
			usage_count, success_count, bug_reports, healing_rate,
			upvotes, downvotes, vote_score, parent_pattern, generation_method,
			covenant_sealed, author, min_hash, extensions, created_at, updated_at, last_used_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, name_lower=excluded.name_lower, code=excluded.code,
			language=excluded.language, description=excluded.description, tags=excluded.tags,
			test_code=excluded.test_code, pattern_type=excluded.pattern_type,
			complexity=excluded.complexity, coherency_total=excluded.coherency_total,
			coherency_breakdown=excluded.coherency_breakdown, usage_count=excluded.usage_count,
			success_count=excluded.success_count, bug_reports=excluded.bug_reports,
			healing_rate=excluded.healing_rate, upvotes=excluded.upvotes,
			downvotes=excluded.downvotes, vote_score=excluded.vote_score,
			parent_pattern=excluded.parent_pattern, generation_method=excluded.generation_method,
			covenant_sealed=excluded.covenant_sealed, author=excluded.author,
			min_hash=excluded.min_hash, extensions=excluded.extensions,
			updated_at=excluded.updated_at, last_used_at=excluded.last_used_at
	`,
		c.ID, c.Name, strings.ToLower(c.Name), c.Code, string(c.Language), c.Description,
		string(tagsJSON), c.TestCode, string(c.PatternType), string(c.Complexity),
		c.CoherencyScore.Total, string(breakdownJSON),
		c.Reliability.UsageCount, c.Reliability.SuccessCount, c.Reliability.BugReports, c.Reliability.HealingRate,
		c.Votes.Upvotes, c.Votes.Downvotes, c.Votes.Score, c.ParentPattern, string(c.GenerationMethod),
		boolToInt(c.CovenantSealed), c.Author, string(minHashJSON), string(extJSON),
		c.CreatedAt, c.UpdatedAt, nullTime(c.LastUsedAt),
	)
	return err
}

// GetCandidate fetches a Candidate by id.
func (s *Store) GetCandidate(id string) (types.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.scanPatternRow(s.db.QueryRow(candidateSelect+` WHERE id = ?`, id))
	return types.Candidate(p), err
}

// AllCandidates returns every Candidate.
func (s *Store) AllCandidates() ([]types.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(candidateSelect)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Candidate
	for rows.Next() {
		p, err := scanPatternRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, types.Candidate(p))
	}
	return out, rows.Err()
}

// DeleteCandidate removes a Candidate by id.
func (s *Store) DeleteCandidate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM candidates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// Promote moves a Candidate into the proven Pattern collection atomically
// (spec.md I6: a pattern is never simultaneously a candidate and proven).
// It runs the delete-then-insert inside a single SQL transaction so a
// crash mid-promotion can never leave the candidate in both tables, or
// in neither.
func (s *Store) Promote(candidateID string) (types.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(candidateSelect+` WHERE id = ?`, candidateID)
	c, err := s.scanPatternRow(row)
	if err != nil {
		return types.Pattern{}, err
	}
	p := types.Candidate(c).ToPattern()

	tx, err := s.db.Begin()
	if err != nil {
		return types.Pattern{}, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM candidates WHERE id = ?`, candidateID); err != nil {
		return types.Pattern{}, err
	}

	tagsJSON, _ := json.Marshal(p.Tags)
	breakdownJSON, _ := json.Marshal(p.CoherencyScore.Breakdown)
	extJSON, _ := json.Marshal(p.Extensions)
	minHashJSON, _ := json.Marshal(p.MinHashSignature)
	p.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(`
		INSERT INTO patterns (
			id, name, name_lower, code, language, description, tags, test_code,
			pattern_type, complexity, coherency_total, coherency_breakdown,
			usage_count, success_count, bug_reports, healing_rate,
			upvotes, downvotes, vote_score, parent_pattern, generation_method,
			covenant_sealed, author, min_hash, extensions, created_at, updated_at, last_used_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET updated_at=excluded.updated_at`,
		p.ID, p.Name, strings.ToLower(p.Name), p.Code, string(p.Language), p.Description,
		string(tagsJSON), p.TestCode, string(p.PatternType), string(p.Complexity),
		p.CoherencyScore.Total, string(breakdownJSON),
		p.Reliability.UsageCount, p.Reliability.SuccessCount, p.Reliability.BugReports, p.Reliability.HealingRate,
		p.Votes.Upvotes, p.Votes.Downvotes, p.Votes.Score, p.ParentPattern, string(p.GenerationMethod),
		boolToInt(p.CovenantSealed), p.Author, string(minHashJSON), string(extJSON),
		p.CreatedAt, p.UpdatedAt, nullTime(p.LastUsedAt),
	)
	if err != nil {
		return types.Pattern{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.Pattern{}, err
	}

	if _, err := s.lineage.Add(p.ID, p.ParentPattern, string(p.GenerationMethod)); err != nil {
		return p, fmt.Errorf("promote succeeded but lineage add failed: %w", err)
	}
	return p, nil
}
