// Package store provides the SQLite-backed flow store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/replyflow/replyflow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a durable flow store backed by a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path to the database file; the directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("SQLite store ready", "dir", dir)
	return &SQLiteStore{db: db}, nil
}

// SaveFlow upserts a flow record by id. The partial unique index on active
// conversations rejects a second active flow for the same conversation.
func (s *SQLiteStore) SaveFlow(f models.ConversationFlow) error {
	contextJSON, historyJSON, err := marshalFlowJSON(f)
	if err != nil {
		slog.Error("SQLiteStore SaveFlow marshal failed", "error", err, "flowID", f.ID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO flows (`+flowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_step_id = excluded.current_step_id,
			context = excluded.context,
			history = excluded.history,
			status = excluded.status,
			last_activity_at = excluded.last_activity_at,
			completed_at = excluded.completed_at`,
		f.ID, f.ConversationID, f.CustomerID, f.CompanyID, f.ScenarioID, f.CurrentStepID,
		contextJSON, historyJSON, string(f.Status), f.StartedAt, f.LastActivityAt, nullableTime(f.CompletedAt),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveFlow failed", "error", err, "flowID", f.ID, "conversationID", f.ConversationID)
		return fmt.Errorf("failed to save flow %s: %w", f.ID, err)
	}
	slog.Debug("SQLiteStore SaveFlow succeeded", "flowID", f.ID, "status", f.Status)
	return nil
}

// GetActiveFlow returns the active flow for a conversation.
func (s *SQLiteStore) GetActiveFlow(conversationID string) (*models.ConversationFlow, error) {
	row := s.db.QueryRow(`SELECT `+flowColumns+` FROM flows WHERE conversation_id = ? AND status = ?`,
		conversationID, string(models.FlowStatusActive))
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, models.ErrFlowNotFound)
	}
	if err != nil {
		slog.Error("SQLiteStore GetActiveFlow failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query active flow: %w", err)
	}
	return &f, nil
}

// GetFlow returns a flow by id regardless of status.
func (s *SQLiteStore) GetFlow(id string) (*models.ConversationFlow, error) {
	row := s.db.QueryRow(`SELECT `+flowColumns+` FROM flows WHERE id = ?`, id)
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("flow %s: %w", id, models.ErrFlowNotFound)
	}
	if err != nil {
		slog.Error("SQLiteStore GetFlow failed", "error", err, "flowID", id)
		return nil, fmt.Errorf("failed to query flow: %w", err)
	}
	return &f, nil
}

// ListStaleFlows returns active flows whose last activity predates before.
func (s *SQLiteStore) ListStaleFlows(before time.Time) ([]models.ConversationFlow, error) {
	rows, err := s.db.Query(`SELECT `+flowColumns+` FROM flows WHERE status = ? AND last_activity_at < ?`,
		string(models.FlowStatusActive), before)
	if err != nil {
		slog.Error("SQLiteStore ListStaleFlows query failed", "error", err)
		return nil, fmt.Errorf("failed to query stale flows: %w", err)
	}
	defer rows.Close()

	var out []models.ConversationFlow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			slog.Error("SQLiteStore ListStaleFlows scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan flow row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flow rows: %w", err)
	}
	slog.Debug("SQLiteStore ListStaleFlows succeeded", "count", len(out))
	return out, nil
}

// RecordUsage counts one scenario start in the UTC calendar-day bucket.
func (s *SQLiteStore) RecordUsage(scenarioID, customerID string, when time.Time) error {
	_, err := s.db.Exec(`INSERT INTO scenario_usage (scenario_id, customer_id, used_on, uses)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(scenario_id, customer_id, used_on) DO UPDATE SET uses = uses + 1`,
		scenarioID, customerID, usageDay(when))
	if err != nil {
		slog.Error("SQLiteStore RecordUsage failed", "error", err, "scenarioID", scenarioID, "customerID", customerID)
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// CountUsageToday returns the usage count for now's UTC calendar day.
func (s *SQLiteStore) CountUsageToday(scenarioID, customerID string, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT uses FROM scenario_usage WHERE scenario_id = ? AND customer_id = ? AND used_on = ?`,
		scenarioID, customerID, usageDay(now)).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		slog.Error("SQLiteStore CountUsageToday failed", "error", err, "scenarioID", scenarioID, "customerID", customerID)
		return 0, fmt.Errorf("failed to query usage: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
