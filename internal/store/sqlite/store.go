// Package sqlite is the durable store for candles, signals, positions, and
// training runs. It is the single mirror of orchestrator state — nothing
// writes to it except through the orchestrator's own code paths.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to the database file, e.g. "data/trading_bot.db"
}

// Store wraps a SQLite handle opened in WAL mode.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens (or creates) the database, enables WAL mode, and applies the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer discipline
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol     TEXT    NOT NULL,
			timestamp  INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (symbol, timestamp)
		);

		CREATE TABLE IF NOT EXISTS trading_signals (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol        TEXT    NOT NULL,
			signal_type   TEXT    NOT NULL,
			confidence    REAL    NOT NULL,
			price         REAL    NOT NULL,
			model_version TEXT,
			created_at    INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
		CREATE INDEX IF NOT EXISTS idx_signals_symbol ON trading_signals(symbol);
		CREATE INDEX IF NOT EXISTS idx_signals_created ON trading_signals(created_at);

		CREATE TABLE IF NOT EXISTS positions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol        TEXT    NOT NULL,
			side          TEXT    NOT NULL,
			quantity      REAL    NOT NULL,
			entry_price   REAL    NOT NULL,
			current_price REAL,
			confidence    REAL,
			initial_sl    REAL,
			current_sl    REAL,
			tp1_price     REAL,
			tp2_price     REAL,
			tp3_price     REAL,
			tp1_hit       INTEGER NOT NULL DEFAULT 0,
			tp2_hit       INTEGER NOT NULL DEFAULT 0,
			tp3_hit       INTEGER NOT NULL DEFAULT 0,
			status        TEXT    NOT NULL DEFAULT 'OPEN',
			pnl           REAL    NOT NULL DEFAULT 0,
			opened_at     INTEGER NOT NULL,
			closed_at     INTEGER,
			close_reason  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol, status);

		CREATE TABLE IF NOT EXISTS training_runs (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at        INTEGER NOT NULL,
			completed_at      INTEGER,
			status            TEXT    NOT NULL DEFAULT 'RUNNING',
			model_version     TEXT,
			accuracy          REAL,
			feature_count     INTEGER,
			training_samples  INTEGER,
			selected_features TEXT
		);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
