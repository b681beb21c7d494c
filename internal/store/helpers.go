package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/replyflow/replyflow/internal/models"
)

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const flowColumns = `id, conversation_id, customer_id, company_id, scenario_id, current_step_id,
	context, history, status, started_at, last_activity_at, completed_at`

// marshalFlowJSON serializes the context and history columns.
func marshalFlowJSON(f models.ConversationFlow) (contextJSON, historyJSON string, err error) {
	ctx := f.Context
	if ctx == nil {
		ctx = map[string]any{}
	}
	ctxBytes, err := json.Marshal(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal flow context: %w", err)
	}
	hist := f.History
	if hist == nil {
		hist = []models.HistoryEntry{}
	}
	histBytes, err := json.Marshal(hist)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal flow history: %w", err)
	}
	return string(ctxBytes), string(histBytes), nil
}

// scanFlow scans one flow row, deserializing the JSON columns.
func scanFlow(row rowScanner) (models.ConversationFlow, error) {
	var f models.ConversationFlow
	var contextJSON, historyJSON string
	var status string
	var completedAt sql.NullTime
	err := row.Scan(
		&f.ID, &f.ConversationID, &f.CustomerID, &f.CompanyID, &f.ScenarioID, &f.CurrentStepID,
		&contextJSON, &historyJSON, &status, &f.StartedAt, &f.LastActivityAt, &completedAt,
	)
	if err != nil {
		return f, err
	}
	f.Status = models.FlowStatus(status)
	if completedAt.Valid {
		f.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal([]byte(contextJSON), &f.Context); err != nil {
		return f, fmt.Errorf("failed to unmarshal flow context: %w", err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &f.History); err != nil {
		return f, fmt.Errorf("failed to unmarshal flow history: %w", err)
	}
	return f, nil
}
