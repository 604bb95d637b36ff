package store

import (
	"database/sql"
	"encoding/json"
)

// UpsertVector stores (or replaces) the embedding vector for patternID.
func (s *Store) UpsertVector(patternID string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO vectors (pattern_id, embedding, dims) VALUES (?, ?, ?)
		ON CONFLICT(pattern_id) DO UPDATE SET embedding=excluded.embedding, dims=excluded.dims
	`, patternID, string(data), len(vector))
	return err
}

// Vector fetches the embedding vector stored for patternID, if any.
func (s *Store) Vector(patternID string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	row := s.db.QueryRow(`SELECT embedding FROM vectors WHERE pattern_id = ?`, patternID)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var vector []float32
	if err := json.Unmarshal([]byte(data), &vector); err != nil {
		return nil, err
	}
	return vector, nil
}

// AllVectors returns every stored pattern_id -> embedding vector pair,
// used by the Search Engine's brute-force semantic fallback when the
// sqlite-vec extension is unavailable.
func (s *Store) AllVectors() (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT pattern_id, embedding FROM vectors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var vector []float32
		if err := json.Unmarshal([]byte(data), &vector); err != nil {
			return nil, err
		}
		out[id] = vector
	}
	return out, rows.Err()
}

// NearestVectors runs an ANN query via the sqlite-vec vec0 virtual table
// when available, returning pattern IDs ordered nearest-first. Callers
// should check Store.VectorSearchAvailable() first and fall back to
// AllVectors + embedding.FindTopK when it's false.
func (s *Store) NearestVectors(queryJSON string, k int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT pattern_id FROM vec_patterns
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance ASC
	`, queryJSON, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
