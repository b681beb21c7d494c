// Package actions provides the built-in commerce action handlers.
package actions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Action names understood by the built-in commerce handlers.
const (
	ActionFetchOrders    = "fetch_orders"
	ActionSearchProducts = "search_products"
	ActionCreateTicket   = "create_ticket"
)

// Order is a customer order as seen by the flow engine.
type Order struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Total  float64 `json:"total"`
}

// Product is a catalog entry returned by product search.
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Ticket is a support ticket created on behalf of a conversation.
type Ticket struct {
	ConversationID string `json:"conversationId"`
	CustomerID     string `json:"customerId"`
	Kind           string `json:"kind"`
	Summary        string `json:"summary"`
}

// CommerceProvider is the order/product/ticket boundary the built-in handlers
// call into. Production wires the platform's commerce service here; tests and
// dev mode use StaticCommerce.
type CommerceProvider interface {
	OrdersForCustomer(ctx context.Context, customerID string) ([]Order, error)
	SearchProducts(ctx context.Context, query string) ([]Product, error)
	CreateTicket(ctx context.Context, t Ticket) (string, error)
}

// RegisterCommerceActions registers the built-in handlers against a registry.
func RegisterCommerceActions(reg *Registry, commerce CommerceProvider) {
	reg.Register(ActionFetchOrders, fetchOrdersHandler(commerce))
	reg.Register(ActionSearchProducts, searchProductsHandler(commerce))
	reg.Register(ActionCreateTicket, createTicketHandler(commerce))
}

// fetchOrdersHandler looks up the customer's orders. The customer id comes
// from the flow context, which the orchestrator seeds on flow start.
func fetchOrdersHandler(commerce CommerceProvider) Handler {
	return func(ctx context.Context, params map[string]any, flowContext map[string]any) (map[string]any, error) {
		customerID, _ := flowContext["customerId"].(string)
		if customerID == "" {
			return nil, fmt.Errorf("no customerId in flow context")
		}
		orders, err := commerce.OrdersForCustomer(ctx, customerID)
		if err != nil {
			return nil, err
		}
		summaries := make([]string, len(orders))
		for i, o := range orders {
			summaries[i] = fmt.Sprintf("%s (%s)", o.ID, o.Status)
		}
		return map[string]any{
			"orders":     orders,
			"orderCount": len(orders),
			// Pre-rendered line for {{orderSummary}} templates.
			"orderSummary": strings.Join(summaries, ", "),
		}, nil
	}
}

// searchProductsHandler searches the catalog. The query comes from the step
// params, with {{query}} context lookup as the fallback so a preceding
// question step can feed it.
func searchProductsHandler(commerce CommerceProvider) Handler {
	return func(ctx context.Context, params map[string]any, flowContext map[string]any) (map[string]any, error) {
		query, _ := params["query"].(string)
		if query == "" {
			query, _ = flowContext["query"].(string)
		}
		if query == "" {
			return nil, fmt.Errorf("no search query in params or context")
		}
		products, err := commerce.SearchProducts(ctx, query)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(products))
		for i, p := range products {
			names[i] = p.Name
		}
		return map[string]any{
			"products":    products,
			"resultCount": len(products),
			"resultNames": strings.Join(names, ", "),
		}, nil
	}
}

// createTicketHandler opens a support ticket for the conversation.
func createTicketHandler(commerce CommerceProvider) Handler {
	return func(ctx context.Context, params map[string]any, flowContext map[string]any) (map[string]any, error) {
		kind, _ := params["kind"].(string)
		if kind == "" {
			kind = "general"
		}
		summary, _ := params["summary"].(string)
		conversationID, _ := flowContext["conversationId"].(string)
		customerID, _ := flowContext["customerId"].(string)

		id, err := commerce.CreateTicket(ctx, Ticket{
			ConversationID: conversationID,
			CustomerID:     customerID,
			Kind:           kind,
			Summary:        summary,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"ticketId": id}, nil
	}
}

// StaticCommerce is an in-memory CommerceProvider for tests and dev mode.
type StaticCommerce struct {
	mu      sync.Mutex
	Orders  map[string][]Order
	Catalog []Product
	tickets int
}

// NewStaticCommerce creates an empty static commerce provider.
func NewStaticCommerce() *StaticCommerce {
	return &StaticCommerce{Orders: make(map[string][]Order)}
}

// OrdersForCustomer returns the seeded orders for a customer.
func (s *StaticCommerce) OrdersForCustomer(ctx context.Context, customerID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Orders[customerID], nil
}

// SearchProducts returns catalog entries whose name contains the query,
// case-insensitively.
func (s *StaticCommerce) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(query)
	var out []Product
	for _, p := range s.Catalog {
		if strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
		}
	}
	return out, nil
}

// CreateTicket assigns a sequential ticket id.
func (s *StaticCommerce) CreateTicket(ctx context.Context, t Ticket) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets++
	return fmt.Sprintf("TCK-%d-%d", time.Now().Year(), s.tickets), nil
}
