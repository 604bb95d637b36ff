package store

import "github.com/remembrance-oracle/oracle-core/internal/types"

// CounterKind names one of the six lifecycle event counters (spec.md
// §4.6) that trigger background improve/optimize/evolve cycles.
type CounterKind string

const (
	CounterFeedbacks     CounterKind = "feedbacks"
	CounterSubmissions   CounterKind = "submissions"
	CounterRegistrations CounterKind = "registrations"
	CounterHeals         CounterKind = "heals"
	CounterRejections    CounterKind = "rejections"
	CounterCycles        CounterKind = "cycles"
)

var counterColumn = map[CounterKind]string{
	CounterFeedbacks:     "feedbacks",
	CounterSubmissions:   "submissions",
	CounterRegistrations: "registrations",
	CounterHeals:         "heals",
	CounterRejections:    "rejections",
	CounterCycles:        "cycles",
}

// IncrementCounter atomically bumps one lifecycle counter and returns the
// full counter snapshot afterward, so callers can check trigger
// thresholds without a second round trip.
func (s *Store) IncrementCounter(kind CounterKind) (types.LifecycleCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	column, ok := counterColumn[kind]
	if !ok {
		return types.LifecycleCounters{}, unknownCounterError(kind)
	}
	if _, err := s.db.Exec(`UPDATE lifecycle_counters SET ` + column + ` = ` + column + ` + 1 WHERE id = 1`); err != nil {
		return types.LifecycleCounters{}, err
	}
	return s.countersLocked()
}

// Counters returns the current lifecycle counter snapshot.
func (s *Store) Counters() (types.LifecycleCounters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countersLocked()
}

func (s *Store) countersLocked() (types.LifecycleCounters, error) {
	var c types.LifecycleCounters
	row := s.db.QueryRow(`SELECT feedbacks, submissions, registrations, heals, rejections, cycles FROM lifecycle_counters WHERE id = 1`)
	err := row.Scan(&c.Feedbacks, &c.Submissions, &c.Registrations, &c.Heals, &c.Rejections, &c.Cycles)
	return c, err
}

// ResetCounters zeroes the given counters, or, when none are given,
// every lifecycle counter except cycles; called after a cycle
// consumes them (spec.md §4.6: triggers fire once per accumulation, not
// once per event past the threshold).
func (s *Store) ResetCounters(kinds ...CounterKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(kinds) == 0 {
		_, err := s.db.Exec(`UPDATE lifecycle_counters SET feedbacks=0, submissions=0, registrations=0, heals=0, rejections=0 WHERE id = 1`)
		return err
	}
	for _, k := range kinds {
		column, ok := counterColumn[k]
		if !ok {
			return unknownCounterError(k)
		}
		if _, err := s.db.Exec(`UPDATE lifecycle_counters SET ` + column + ` = 0 WHERE id = 1`); err != nil {
			return err
		}
	}
	return nil
}

type unknownCounterError CounterKind

func (e unknownCounterError) Error() string {
	return "store: unknown lifecycle counter kind: " + string(e)
}
