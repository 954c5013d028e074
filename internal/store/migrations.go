package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Video sessions - one row per start/stop cycle
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			stopped_at DATETIME,
			counts TEXT NOT NULL DEFAULT '{}',
			total INTEGER NOT NULL DEFAULT 0
		)`,

		// Classifier predictions for text and voice inputs
		`CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL CHECK(kind IN ('mental_health', 'text_emotion', 'voice_emotion')),
			input TEXT NOT NULL DEFAULT '',
			label TEXT NOT NULL,
			confidence REAL NOT NULL,
			probabilities TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_kind ON predictions(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
