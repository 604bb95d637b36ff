package federation

import "github.com/remembrance-oracle/oracle-core/internal/store"

// ReconcileReputation implements spec.md §4.7's reputation update: each
// accurate vote adds 0.1*min(1, |direction*deltaReliability|); rejected
// patterns subtract 0.05 from the submitting voter (handled separately
// by RejectSubmission). Called after a pattern's success ratio changes
// (e.g. from a Lifecycle evolve pass or new usage feedback) with the
// ratio's delta so every voter on that pattern gets credited or left
// alone based on whether their vote direction matched the change.
func ReconcileReputation(s *store.Store, patternID string, deltaReliability float64) error {
	votes, err := s.VotesForPattern(patternID)
	if err != nil {
		return err
	}
	for _, v := range votes {
		agree := float64(v.Direction) * deltaReliability
		if agree <= 0 {
			continue
		}
		magnitude := agree
		if magnitude > 1 {
			magnitude = 1
		}
		if _, err := s.AdjustReputation(v.VoterID, 0.1*magnitude); err != nil {
			return err
		}
	}
	return nil
}

// RejectSubmission subtracts 0.05 reputation from a voter/submitter whose
// pattern was rejected by the acceptance gate.
func RejectSubmission(s *store.Store, submitterID string) error {
	_, err := s.AdjustReputation(submitterID, -0.05)
	return err
}
