// Package store provides the PostgreSQL-backed flow store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/replyflow/replyflow/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a durable flow store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// SaveFlow upserts a flow record by id.
func (s *PostgresStore) SaveFlow(f models.ConversationFlow) error {
	contextJSON, historyJSON, err := marshalFlowJSON(f)
	if err != nil {
		slog.Error("PostgresStore SaveFlow marshal failed", "error", err, "flowID", f.ID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO flows (`+flowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT(id) DO UPDATE SET
			current_step_id = EXCLUDED.current_step_id,
			context = EXCLUDED.context,
			history = EXCLUDED.history,
			status = EXCLUDED.status,
			last_activity_at = EXCLUDED.last_activity_at,
			completed_at = EXCLUDED.completed_at`,
		f.ID, f.ConversationID, f.CustomerID, f.CompanyID, f.ScenarioID, f.CurrentStepID,
		contextJSON, historyJSON, string(f.Status), f.StartedAt, f.LastActivityAt, nullableTime(f.CompletedAt),
	)
	if err != nil {
		slog.Error("PostgresStore SaveFlow failed", "error", err, "flowID", f.ID, "conversationID", f.ConversationID)
		return fmt.Errorf("failed to save flow %s: %w", f.ID, err)
	}
	slog.Debug("PostgresStore SaveFlow succeeded", "flowID", f.ID, "status", f.Status)
	return nil
}

// GetActiveFlow returns the active flow for a conversation.
func (s *PostgresStore) GetActiveFlow(conversationID string) (*models.ConversationFlow, error) {
	row := s.db.QueryRow(`SELECT `+flowColumns+` FROM flows WHERE conversation_id = $1 AND status = $2`,
		conversationID, string(models.FlowStatusActive))
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, models.ErrFlowNotFound)
	}
	if err != nil {
		slog.Error("PostgresStore GetActiveFlow failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query active flow: %w", err)
	}
	return &f, nil
}

// GetFlow returns a flow by id regardless of status.
func (s *PostgresStore) GetFlow(id string) (*models.ConversationFlow, error) {
	row := s.db.QueryRow(`SELECT `+flowColumns+` FROM flows WHERE id = $1`, id)
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("flow %s: %w", id, models.ErrFlowNotFound)
	}
	if err != nil {
		slog.Error("PostgresStore GetFlow failed", "error", err, "flowID", id)
		return nil, fmt.Errorf("failed to query flow: %w", err)
	}
	return &f, nil
}

// ListStaleFlows returns active flows whose last activity predates before.
func (s *PostgresStore) ListStaleFlows(before time.Time) ([]models.ConversationFlow, error) {
	rows, err := s.db.Query(`SELECT `+flowColumns+` FROM flows WHERE status = $1 AND last_activity_at < $2`,
		string(models.FlowStatusActive), before)
	if err != nil {
		slog.Error("PostgresStore ListStaleFlows query failed", "error", err)
		return nil, fmt.Errorf("failed to query stale flows: %w", err)
	}
	defer rows.Close()

	var out []models.ConversationFlow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			slog.Error("PostgresStore ListStaleFlows scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan flow row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flow rows: %w", err)
	}
	return out, nil
}

// RecordUsage counts one scenario start in the UTC calendar-day bucket.
func (s *PostgresStore) RecordUsage(scenarioID, customerID string, when time.Time) error {
	_, err := s.db.Exec(`INSERT INTO scenario_usage (scenario_id, customer_id, used_on, uses)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT(scenario_id, customer_id, used_on) DO UPDATE SET uses = scenario_usage.uses + 1`,
		scenarioID, customerID, usageDay(when))
	if err != nil {
		slog.Error("PostgresStore RecordUsage failed", "error", err, "scenarioID", scenarioID, "customerID", customerID)
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// CountUsageToday returns the usage count for now's UTC calendar day.
func (s *PostgresStore) CountUsageToday(scenarioID, customerID string, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT uses FROM scenario_usage WHERE scenario_id = $1 AND customer_id = $2 AND used_on = $3`,
		scenarioID, customerID, usageDay(now)).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		slog.Error("PostgresStore CountUsageToday failed", "error", err, "scenarioID", scenarioID, "customerID", customerID)
		return 0, fmt.Errorf("failed to query usage: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
