package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/remembrance-oracle/oracle-core/internal/logging"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

// InsertResult reports the outcome of Insert: either a fresh row or a
// merge into an existing survivor (spec.md I2).
type InsertResult struct {
	Pattern types.Pattern
	Merged  bool
}

// Insert stores p, enforcing invariant I2 ((name, language) uniqueness,
// case-insensitive) via merge-on-conflict: the higher-coherency side wins
// code/tests, tags union, counts sum. strictInsert, when true, returns
// types.ErrDuplicate instead of merging — used by federation accept paths
// that want to treat a duplicate as rejection rather than a silent merge.
func (s *Store) Insert(p types.Pattern, strictInsert bool) (InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	existing, err := s.getByNameLocked(p.Name, p.Language)
	if err != nil && err != sql.ErrNoRows {
		return InsertResult{}, fmt.Errorf("store: lookup existing: %w", err)
	}
	if err == nil {
		if strictInsert {
			return InsertResult{}, types.ErrDuplicate
		}
		merged := mergePatterns(existing, p)
		if err := s.writePatternLocked(merged); err != nil {
			return InsertResult{}, err
		}
		logging.Get(logging.CategoryStore).Debug("merged pattern %q into survivor %s", p.Name, merged.ID)
		return InsertResult{Pattern: merged, Merged: true}, nil
	}

	if p.ParentPattern != "" {
		if s.lineage.WouldCycle(p.ID, p.ParentPattern) {
			return InsertResult{}, fmt.Errorf("store: parent %s would create a lineage cycle: %w", p.ParentPattern, types.ErrValidationRejected)
		}
	}

	if err := s.writePatternLocked(p); err != nil {
		return InsertResult{}, err
	}
	if _, err := s.lineage.Add(p.ID, p.ParentPattern, string(p.GenerationMethod)); err != nil {
		logging.Get(logging.CategoryStore).Warn("lineage add failed for %s: %v", p.ID, err)
	}
	return InsertResult{Pattern: p}, nil
}

// mergePatterns implements the §4.2 merge rule: union tags, keep the
// higher coherency side's code/test/classification, sum reliability
// counts, keep the earliest createdAt.
func mergePatterns(existing, incoming types.Pattern) types.Pattern {
	survivor := existing
	if incoming.CoherencyScore.Total > existing.CoherencyScore.Total {
		survivor.Code = incoming.Code
		survivor.TestCode = incoming.TestCode
		survivor.CoherencyScore = incoming.CoherencyScore
		survivor.PatternType = incoming.PatternType
		survivor.Complexity = incoming.Complexity
		survivor.CovenantSealed = incoming.CovenantSealed
		survivor.MinHashSignature = incoming.MinHashSignature
	}
	survivor.Tags = unionStrings(existing.Tags, incoming.Tags)
	survivor.Reliability.UsageCount += incoming.Reliability.UsageCount
	survivor.Reliability.SuccessCount += incoming.Reliability.SuccessCount
	survivor.Reliability.BugReports += incoming.Reliability.BugReports
	survivor.Votes.Upvotes += incoming.Votes.Upvotes
	survivor.Votes.Downvotes += incoming.Votes.Downvotes
	survivor.Votes.Score += incoming.Votes.Score
	survivor.UpdatedAt = time.Now().UTC()
	if existing.CreatedAt.After(incoming.CreatedAt) && !incoming.CreatedAt.IsZero() {
		survivor.CreatedAt = incoming.CreatedAt
	}
	return survivor
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, tag := range append(append([]string{}, a...), b...) {
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func (s *Store) writePatternLocked(p types.Pattern) error {
	tagsJSON, err := json.Marshal(p.Tags)
	if err != nil {
		return err
	}
	breakdownJSON, err := json.Marshal(p.CoherencyScore.Breakdown)
	if err != nil {
		return err
	}
	extJSON, err := json.Marshal(p.Extensions)
	if err != nil {
		return err
	}
	minHashJSON, err := json.Marshal(p.MinHashSignature)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO patterns (
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
		p.ID, p.Name, strings.ToLower(p.Name), p.Code, string(p.Language), p.Description,
		string(tagsJSON), p.TestCode, string(p.PatternType), string(p.Complexity),
		p.CoherencyScore.Total, string(breakdownJSON),
		p.Reliability.UsageCount, p.Reliability.SuccessCount, p.Reliability.BugReports, p.Reliability.HealingRate,
		p.Votes.Upvotes, p.Votes.Downvotes, p.Votes.Score, p.ParentPattern, string(p.GenerationMethod),
		boolToInt(p.CovenantSealed), p.Author, string(minHashJSON), string(extJSON),
		p.CreatedAt, p.UpdatedAt, nullTime(p.LastUsedAt),
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// Get fetches a Pattern by id.
func (s *Store) Get(id string) (types.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanPatternRow(s.db.QueryRow(patternSelect+` WHERE id = ?`, id))
}

// GetByName fetches a Pattern by case-insensitive name and language.
func (s *Store) GetByName(name string, language types.Language) (types.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getByNameLocked(name, language)
}

func (s *Store) getByNameLocked(name string, language types.Language) (types.Pattern, error) {
	return s.scanPatternRow(s.db.QueryRow(patternSelect+` WHERE name_lower = ? AND language = ?`, strings.ToLower(name), string(language)))
}

const patternSelect = `SELECT
	id, name, code, language, description, tags, test_code, pattern_type, complexity,
	coherency_total, coherency_breakdown, usage_count, success_count, bug_reports, healing_rate,
	upvotes, downvotes, vote_score, parent_pattern, generation_method, covenant_sealed, author,
	min_hash, extensions, created_at, updated_at, last_used_at
FROM patterns`

func (s *Store) scanPatternRow(row *sql.Row) (types.Pattern, error) {
	var p types.Pattern
	var tagsJSON, breakdownJSON, extJSON, minHashJSON sql.NullString
	var lastUsed sql.NullTime
	var sealed int
	err := row.Scan(
		&p.ID, &p.Name, &p.Code, &p.Language, &p.Description, &tagsJSON, &p.TestCode,
		&p.PatternType, &p.Complexity, &p.CoherencyScore.Total, &breakdownJSON,
		&p.Reliability.UsageCount, &p.Reliability.SuccessCount, &p.Reliability.BugReports, &p.Reliability.HealingRate,
		&p.Votes.Upvotes, &p.Votes.Downvotes, &p.Votes.Score, &p.ParentPattern, &p.GenerationMethod,
		&sealed, &p.Author, &minHashJSON, &extJSON, &p.CreatedAt, &p.UpdatedAt, &lastUsed,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.Pattern{}, types.ErrNotFound
		}
		return types.Pattern{}, err
	}
	p.CovenantSealed = sealed != 0
	if lastUsed.Valid {
		p.LastUsedAt = lastUsed.Time
	}
	unmarshalOptional(tagsJSON, &p.Tags)
	unmarshalOptional(breakdownJSON, &p.CoherencyScore.Breakdown)
	unmarshalOptional(extJSON, &p.Extensions)
	unmarshalOptional(minHashJSON, &p.MinHashSignature)
	return p, nil
}

func unmarshalOptional(ns sql.NullString, dst interface{}) {
	if !ns.Valid || ns.String == "" {
		return
	}
	_ = json.Unmarshal([]byte(ns.String), dst)
}

// IterFilter narrows Iter's results. Zero value matches everything.
type IterFilter struct {
	Language     types.Language
	MinCoherency float64
	AnyTag       []string
	Method       types.GenerationMethod
	Author       string
	StaleBefore  time.Time // LastUsedAt before this (zero = no filter)
}

// Iter returns every Pattern matching filter. Read-only; takes the shared
// lock, so it runs alongside other readers, waits for any in-progress
// write, and never sees a half-applied merge (spec.md §4.2).
func (s *Store) Iter(filter IterFilter) ([]types.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(patternSelectMulti+` WHERE coherency_total >= ?`, filter.MinCoherency)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Pattern
	for rows.Next() {
		p, err := scanPatternRows(rows)
		if err != nil {
			return nil, err
		}
		if !patternMatches(p, filter) {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const patternSelectMulti = patternSelect

func scanPatternRows(rows *sql.Rows) (types.Pattern, error) {
	var p types.Pattern
	var tagsJSON, breakdownJSON, extJSON, minHashJSON sql.NullString
	var lastUsed sql.NullTime
	var sealed int
	err := rows.Scan(
		&p.ID, &p.Name, &p.Code, &p.Language, &p.Description, &tagsJSON, &p.TestCode,
		&p.PatternType, &p.Complexity, &p.CoherencyScore.Total, &breakdownJSON,
		&p.Reliability.UsageCount, &p.Reliability.SuccessCount, &p.Reliability.BugReports, &p.Reliability.HealingRate,
		&p.Votes.Upvotes, &p.Votes.Downvotes, &p.Votes.Score, &p.ParentPattern, &p.GenerationMethod,
		&sealed, &p.Author, &minHashJSON, &extJSON, &p.CreatedAt, &p.UpdatedAt, &lastUsed,
	)
	if err != nil {
		return types.Pattern{}, err
	}
	p.CovenantSealed = sealed != 0
	if lastUsed.Valid {
		p.LastUsedAt = lastUsed.Time
	}
	unmarshalOptional(tagsJSON, &p.Tags)
	unmarshalOptional(breakdownJSON, &p.CoherencyScore.Breakdown)
	unmarshalOptional(extJSON, &p.Extensions)
	unmarshalOptional(minHashJSON, &p.MinHashSignature)
	return p, nil
}

func patternMatches(p types.Pattern, filter IterFilter) bool {
	if filter.Language != "" && p.Language != filter.Language {
		return false
	}
	if filter.Method != "" && p.GenerationMethod != filter.Method {
		return false
	}
	if filter.Author != "" && p.Author != filter.Author {
		return false
	}
	if len(filter.AnyTag) > 0 && !hasAnyTag(p.Tags, filter.AnyTag) {
		return false
	}
	if !filter.StaleBefore.IsZero() && p.LastUsedAt.After(filter.StaleBefore) {
		return false
	}
	return true
}

func hasAnyTag(tags, want []string) bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

// All returns every proven Pattern (IterFilter{} with MinCoherency 0).
func (s *Store) All() ([]types.Pattern, error) {
	return s.Iter(IterFilter{})
}

// PatternDelta is a partial, atomic field update applied by Update.
type PatternDelta struct {
	CoherencyScore *types.CoherencyScore
	Code           *string
	TestCode       *string
	Tags           *[]string
	Reliability    *types.Reliability
	Votes          *types.Votes
	LastUsedAt     *time.Time
	Extensions     map[string]string
}

// Update applies delta to the Pattern identified by id atomically.
func (s *Store) Update(id string, delta PatternDelta) (types.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(patternSelect+` WHERE id = ?`, id)
	p, err := s.scanPatternRow(row)
	if err != nil {
		return types.Pattern{}, err
	}

	if delta.CoherencyScore != nil {
		p.CoherencyScore = *delta.CoherencyScore
	}
	if delta.Code != nil {
		p.Code = *delta.Code
	}
	if delta.TestCode != nil {
		p.TestCode = *delta.TestCode
	}
	if delta.Tags != nil {
		p.Tags = *delta.Tags
	}
	if delta.Reliability != nil {
		p.Reliability = *delta.Reliability
	}
	if delta.Votes != nil {
		p.Votes = *delta.Votes
	}
	if delta.LastUsedAt != nil {
		p.LastUsedAt = *delta.LastUsedAt
	}
	for k, v := range delta.Extensions {
		if p.Extensions == nil {
			p.Extensions = make(map[string]string)
		}
		p.Extensions[k] = v
	}
	p.UpdatedAt = time.Now().UTC()

	if err := s.writePatternLocked(p); err != nil {
		return types.Pattern{}, err
	}
	return p, nil
}

// Delete removes a Pattern by id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM patterns WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// DeleteByAuthor removes every Pattern authored by author, used for
// CCPA-style deletion requests (spec.md §3 "Lifecycle").
func (s *Store) DeleteByAuthor(author string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM patterns WHERE author = ?`, author)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Snapshot returns a point-in-time copy of every Pattern for read-heavy
// operations (sync, analytics) without blocking the writer any longer than
// a single shared-lock acquisition.
func (s *Store) Snapshot() ([]types.Pattern, error) {
	return s.All()
}

// Stats summarizes the proven collection.
type Stats struct {
	Total         int
	AvgCoherency  float64
	ByLanguage    map[types.Language]int
	ByPatternType map[types.PatternType]int
}

// Stats computes totals, average coherency, and by-language/by-type
// histograms over the proven collection.
func (s *Store) Stats() (Stats, error) {
	patterns, err := s.All()
	if err != nil {
		return Stats{}, err
	}
	out := Stats{ByLanguage: map[types.Language]int{}, ByPatternType: map[types.PatternType]int{}}
	var sum float64
	for _, p := range patterns {
		out.Total++
		sum += p.CoherencyScore.Total
		out.ByLanguage[p.Language]++
		out.ByPatternType[p.PatternType]++
	}
	if out.Total > 0 {
		out.AvgCoherency = sum / float64(out.Total)
	}
	return out, nil
}

func (s *Store) rebuildLineage() error {
	patterns, err := s.All()
	if err != nil {
		return err
	}
	// Insert roots first so child Add calls can resolve their parent.
	remaining := make([]types.Pattern, 0, len(patterns))
	byID := make(map[string]types.Pattern, len(patterns))
	for _, p := range patterns {
		byID[p.ID] = p
		remaining = append(remaining, p)
	}
	added := make(map[string]bool, len(patterns))
	for progress := true; progress && len(added) < len(remaining); {
		progress = false
		for _, p := range remaining {
			if added[p.ID] {
				continue
			}
			if p.ParentPattern != "" && !added[p.ParentPattern] {
				if _, ok := byID[p.ParentPattern]; ok {
					continue // wait for parent
				}
			}
			if _, err := s.lineage.Add(p.ID, p.ParentPattern, string(p.GenerationMethod)); err != nil {
				// Parent genuinely missing from the store (deleted); add as root.
				s.lineage.Add(p.ID, "", string(p.GenerationMethod))
			}
			added[p.ID] = true
			progress = true
		}
	}
	return nil
}
