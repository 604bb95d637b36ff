package store

import "time"

// idempotencyLogCap is the bounded LRU size for processed federation
// event IDs (spec.md §5: "drop-oldest at 10,000 entries").
const idempotencyLogCap = 10000

// AlreadyProcessed reports whether eventID has already been recorded via
// MarkProcessed, so federation Submit/Push handlers can no-op a replayed
// event instead of double-applying it.
func (s *Store) AlreadyProcessed(eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	row := s.db.QueryRow(`SELECT COUNT(1) FROM idempotency_log WHERE event_id = ?`, eventID)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkProcessed records eventID as handled and, if the log has grown
// past idempotencyLogCap, drops the oldest entries to keep it bounded.
func (s *Store) MarkProcessed(eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO idempotency_log (event_id, event_type, processed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET processed_at=excluded.processed_at`,
		eventID, eventType, time.Now().UTC())
	if err != nil {
		return err
	}

	var total int
	row := s.db.QueryRow(`SELECT COUNT(1) FROM idempotency_log`)
	if err := row.Scan(&total); err != nil {
		return err
	}
	if total <= idempotencyLogCap {
		return nil
	}

	excess := total - idempotencyLogCap
	_, err = s.db.Exec(`
		DELETE FROM idempotency_log WHERE event_id IN (
			SELECT event_id FROM idempotency_log ORDER BY processed_at ASC LIMIT ?
		)`, excess)
	return err
}
