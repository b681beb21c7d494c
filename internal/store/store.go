// Package store provides storage backends for ReplyFlow conversation flows.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backends for durable flow records. The flow orchestrator is the
// single writer; the store only has to keep the at-most-one-active-flow
// invariant, which the SQL backends enforce with a partial unique index.
package store

import (
	"time"

	"github.com/replyflow/replyflow/internal/models"
)

// Store is the flow store interface consumed by the orchestrator and sweep.
type Store interface {
	// SaveFlow inserts or updates a flow record by id.
	SaveFlow(flow models.ConversationFlow) error
	// GetActiveFlow returns the active flow for a conversation, or
	// models.ErrFlowNotFound when none exists. Non-active flows are invisible
	// here, which is how external cancellation surfaces to the orchestrator.
	GetActiveFlow(conversationID string) (*models.ConversationFlow, error)
	// GetFlow returns a flow by id regardless of status.
	GetFlow(id string) (*models.ConversationFlow, error)
	// ListStaleFlows returns active flows with no activity since before.
	ListStaleFlows(before time.Time) ([]models.ConversationFlow, error)
	// RecordUsage counts one scenario start for a customer. The counting
	// window is the UTC calendar day.
	RecordUsage(scenarioID, customerID string, when time.Time) error
	// CountUsageToday returns the customer's usage count for a scenario on
	// now's UTC calendar day.
	CountUsageToday(scenarioID, customerID string, now time.Time) (int, error)
	// Close releases the underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// usageDay formats the UTC calendar-day bucket for usage counting.
func usageDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
