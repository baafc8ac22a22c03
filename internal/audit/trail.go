// Package audit persists a trail of redaction events to PostgreSQL.
// Events carry the token and its category, never the original value.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/logger"
)

// Config contains audit database configuration
type Config struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DSN             string        `yaml:"dsn" mapstructure:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// Event is one recorded redaction.
type Event struct {
	ID        int64     `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	Token     string    `db:"token" json:"token"`
	Category  string    `db:"category" json:"category"`
	Method    string    `db:"method" json:"method"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Trail writes redaction events to the audit table. A nil Trail is
// valid and drops everything, so callers need no enabled checks.
type Trail struct {
	db     *sqlx.DB
	logger *logger.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS redaction_events (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	token TEXT NOT NULL,
	category TEXT NOT NULL,
	method TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_redaction_events_session ON redaction_events (session_id, created_at);`

// NewTrail connects to the audit database and ensures the schema.
func NewTrail(cfg Config, log *logger.Logger) (*Trail, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit database ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure audit schema: %w", err)
	}

	log.Info("Audit trail initialized", zap.String("dsn", maskDSN(cfg.DSN)))
	return &Trail{db: db, logger: log}, nil
}

// Record stores one redaction event.
func (t *Trail) Record(ctx context.Context, event Event) error {
	if t == nil {
		return nil
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO redaction_events (session_id, token, category, method, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := t.db.ExecContext(ctx, query,
		event.SessionID, event.Token, event.Category, event.Method, event.CreatedAt); err != nil {
		t.logger.Error("Failed to record audit event",
			zap.Error(err),
			zap.String("session_id", event.SessionID),
			zap.String("category", event.Category),
		)
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// Recent returns the latest events for a session, newest first.
func (t *Trail) Recent(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if t == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	var events []Event
	query := `
		SELECT id, session_id, token, category, method, created_at
		FROM redaction_events
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	if err := t.db.SelectContext(ctx, &events, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	return events, nil
}

// Purge deletes all events for a session. Used when a session resets.
func (t *Trail) Purge(ctx context.Context, sessionID string) error {
	if t == nil {
		return nil
	}
	if _, err := t.db.ExecContext(ctx, `DELETE FROM redaction_events WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to purge audit events: %w", err)
	}
	return nil
}

// Close closes the database connection
func (t *Trail) Close() error {
	if t == nil || t.db == nil {
		return nil
	}
	return t.db.Close()
}

// maskDSN masks the password portion of a connection string for logging
func maskDSN(dsn string) string {
	if !strings.Contains(dsn, "@") {
		return dsn
	}
	parts := strings.SplitN(dsn, "@", 2)
	if i := strings.LastIndex(parts[0], ":"); i > strings.Index(parts[0], "//") {
		parts[0] = parts[0][:i+1] + "***"
	}
	return parts[0] + "@" + parts[1]
}
