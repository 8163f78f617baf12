package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per camera or browser session
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL CHECK(source IN ('browser', 'camera', 'replay')),
			target TEXT NOT NULL DEFAULT '',
			window_size INTEGER NOT NULL,
			frames INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME
		)`,

		// Predictions table - one row per submitted window
		`CREATE TABLE IF NOT EXISTS predictions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			sequence INTEGER NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			labels TEXT NOT NULL DEFAULT '[]',
			confidence REAL,
			outcome TEXT NOT NULL CHECK(outcome IN ('ok', 'transport', 'rejected', 'malformed', 'other')),
			detail TEXT NOT NULL DEFAULT '',
			matched INTEGER NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_predictions_session_id ON predictions(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
