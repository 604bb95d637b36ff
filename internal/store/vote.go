package store

import (
	"database/sql"
	"time"

	"github.com/remembrance-oracle/oracle-core/internal/types"
)

// Direction is a vote's polarity.
type Direction int

const (
	DirectionDown Direction = -1
	DirectionUp   Direction = 1
)

// Vote records voterID's direction on patternID, weighted by the voter's
// current reputation-derived weight (spec.md §4.7), then folds it into
// the pattern's Votes aggregate. A voter may change their vote on the
// same pattern; the ledger's (pattern_id, voter_id) primary key makes
// that an upsert rather than a duplicate entry.
func (s *Store) Vote(patternID, voterID string, direction Direction) (types.Votes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	voter, err := s.getOrCreateVoterLocked(voterID)
	if err != nil {
		return types.Votes{}, err
	}

	var prevDirection sql.NullInt64
	row := s.db.QueryRow(`SELECT direction FROM vote_ledger WHERE pattern_id = ? AND voter_id = ?`, patternID, voterID)
	_ = row.Scan(&prevDirection)

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO vote_ledger (pattern_id, voter_id, direction, weight, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pattern_id, voter_id) DO UPDATE SET
			direction=excluded.direction, weight=excluded.weight, timestamp=excluded.timestamp
	`, patternID, voterID, int(direction), voter.Weight, now)
	if err != nil {
		return types.Votes{}, err
	}

	p, err := s.scanPatternRow(s.db.QueryRow(patternSelect+` WHERE id = ?`, patternID))
	if err != nil {
		return types.Votes{}, err
	}

	if prevDirection.Valid {
		undoVote(&p.Votes, Direction(prevDirection.Int64), voter.Weight)
	}
	applyVote(&p.Votes, direction, voter.Weight)
	p.UpdatedAt = now

	if err := s.writePatternLocked(p); err != nil {
		return types.Votes{}, err
	}

	if _, err := s.db.Exec(`UPDATE voters SET total_votes = total_votes + 1 WHERE id = ?`, voterID); err != nil {
		return types.Votes{}, err
	}

	return p.Votes, nil
}

func applyVote(v *types.Votes, d Direction, weight float64) {
	if d == DirectionUp {
		v.Upvotes++
	} else {
		v.Downvotes++
	}
	v.Score += float64(d) * weight
}

func undoVote(v *types.Votes, d Direction, weight float64) {
	if d == DirectionUp {
		v.Upvotes--
	} else {
		v.Downvotes--
	}
	v.Score -= float64(d) * weight
}

func (s *Store) getOrCreateVoterLocked(voterID string) (types.Voter, error) {
	row := s.db.QueryRow(`SELECT id, reputation, weight, total_votes, accurate_votes, contributions FROM voters WHERE id = ?`, voterID)
	var v types.Voter
	err := row.Scan(&v.ID, &v.Reputation, &v.Weight, &v.TotalVotes, &v.AccurateVotes, &v.Contributions)
	if err == nil {
		return v, nil
	}
	if err != sql.ErrNoRows {
		return types.Voter{}, err
	}

	v = types.Voter{ID: voterID, Reputation: 1.0, Weight: types.ReputationToWeight(1.0)}
	_, err = s.db.Exec(`INSERT INTO voters (id, reputation, weight) VALUES (?, ?, ?)`, v.ID, v.Reputation, v.Weight)
	return v, err
}

// AdjustReputation changes voterID's reputation by delta (e.g. +0.1 when
// one of their votes agrees with an eventual PULL/EVOLVE outcome,
// negative when it doesn't) and recomputes their vote weight from it.
func (s *Store) AdjustReputation(voterID string, delta float64) (types.Voter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.getOrCreateVoterLocked(voterID)
	if err != nil {
		return types.Voter{}, err
	}
	v.Reputation += delta
	if v.Reputation < 0 {
		v.Reputation = 0
	}
	v.Weight = types.ReputationToWeight(v.Reputation)
	if delta > 0 {
		v.AccurateVotes++
	}

	_, err = s.db.Exec(`UPDATE voters SET reputation = ?, weight = ?, accurate_votes = ? WHERE id = ?`,
		v.Reputation, v.Weight, v.AccurateVotes, v.ID)
	return v, err
}

// Voter fetches a voter's reputation record, creating a default one
// (reputation 1.0) on first sight.
func (s *Store) Voter(voterID string) (types.Voter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateVoterLocked(voterID)
}

// PatternVote is one voter's recorded direction on a pattern, used to
// correlate later reliability changes back to the voters who predicted
// them (spec.md §4.7 "accurate_votes incremented... reputation bump
// follows").
type PatternVote struct {
	VoterID   string
	Direction Direction
	Timestamp time.Time
}

// VotesForPattern lists every recorded vote on patternID.
func (s *Store) VotesForPattern(patternID string) ([]PatternVote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT voter_id, direction, timestamp FROM vote_ledger WHERE pattern_id = ?`, patternID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PatternVote
	for rows.Next() {
		var pv PatternVote
		var dir int
		if err := rows.Scan(&pv.VoterID, &dir, &pv.Timestamp); err != nil {
			return nil, err
		}
		pv.Direction = Direction(dir)
		out = append(out, pv)
	}
	return out, rows.Err()
}
