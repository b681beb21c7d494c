package engine

import (
	"context"
	"time"

	"github.com/replyflow/replyflow/internal/actions"
	"github.com/replyflow/replyflow/internal/store"
)

// StoreFacts implements trigger.Facts from the flow store's usage counters
// and the commerce provider's order data.
type StoreFacts struct {
	Store    store.Store
	Commerce actions.CommerceProvider
	Now      func() time.Time
}

// NewStoreFacts creates the default customer facts provider.
func NewStoreFacts(st store.Store, commerce actions.CommerceProvider) *StoreFacts {
	return &StoreFacts{Store: st, Commerce: commerce, Now: time.Now}
}

// HasOrderHistory reports whether the customer has at least one prior order.
func (f *StoreFacts) HasOrderHistory(ctx context.Context, customerID string) (bool, error) {
	orders, err := f.Commerce.OrdersForCustomer(ctx, customerID)
	if err != nil {
		return false, err
	}
	return len(orders) > 0, nil
}

// UsageCountToday returns the scenario's usage count for the customer on the
// current UTC calendar day.
func (f *StoreFacts) UsageCountToday(ctx context.Context, scenarioID, customerID string) (int, error) {
	return f.Store.CountUsageToday(scenarioID, customerID, f.Now())
}
