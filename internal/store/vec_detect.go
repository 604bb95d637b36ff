package store

// detectVecExtension probes for the sqlite-vec virtual table module by
// attempting to create (and immediately drop) a throwaway vec0 table,
// exactly the teacher's detection trick: if the module isn't registered,
// CREATE VIRTUAL TABLE fails with a clear "no such module" error.
func (s *Store) detectVecExtension() bool {
	_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS _vec_probe USING vec0(embedding float[4])`)
	if err != nil {
		return false
	}
	_, _ = s.db.Exec(`DROP TABLE IF EXISTS _vec_probe`)
	return true
}
