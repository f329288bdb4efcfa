package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"line-relay/internal/domain"
)

// SQLiteLog is the durable-log policy on a local SQLite file, used by the
// development server and the operator CLI.
type SQLiteLog struct {
	db    *sql.DB
	limit int
}

// OpenSQLiteLog opens (or creates) the database at path and ensures the schema.
func OpenSQLiteLog(path string, limit int) (*SQLiteLog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("repository: create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: ping sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			user_message TEXT NOT NULL DEFAULT '',
			ai_message TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_history_user_ts ON history(user_id, timestamp);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: init sqlite schema: %w", err)
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &SQLiteLog{db: db, limit: limit}, nil
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

func (l *SQLiteLog) Policy() domain.HistoryPolicy {
	return domain.PolicyDurableLog
}

// History returns the most recent exchanges newest first, like the DynamoDB log.
func (l *SQLiteLog) History(ctx context.Context, userID string) (domain.History, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT user_id, timestamp, user_message, ai_message FROM history
		 WHERE user_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		userID, l.limit,
	)
	if err != nil {
		return domain.History{}, fmt.Errorf("repository: History query: %w", err)
	}
	defer rows.Close()

	var exchanges []domain.Exchange
	for rows.Next() {
		var ex domain.Exchange
		if err := rows.Scan(&ex.UserID, &ex.Timestamp, &ex.UserMessage, &ex.AIMessage); err != nil {
			return domain.History{}, fmt.Errorf("repository: History scan: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	if err := rows.Err(); err != nil {
		return domain.History{}, fmt.Errorf("repository: History rows: %w", err)
	}
	return domain.History{Policy: domain.PolicyDurableLog, Exchanges: exchanges}, nil
}

func (l *SQLiteLog) Persist(ctx context.Context, userID string, _ domain.History, ex domain.Exchange) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("repository: Persist: userId is required")
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO history (user_id, timestamp, user_message, ai_message) VALUES (?, ?, ?, ?)`,
		userID, ex.Timestamp, ex.UserMessage, ex.AIMessage,
	)
	if err != nil {
		return fmt.Errorf("repository: Persist: %w", err)
	}
	return nil
}

func (l *SQLiteLog) Clear(ctx context.Context, userID string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM history WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("repository: Clear: %w", err)
	}
	return nil
}
