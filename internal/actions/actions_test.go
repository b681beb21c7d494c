package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/replyflow/replyflow/internal/models"
)

func commerceRegistry(t *testing.T) (*Registry, *StaticCommerce) {
	t.Helper()
	commerce := NewStaticCommerce()
	reg := NewRegistry()
	RegisterCommerceActions(reg, commerce)
	return reg, commerce
}

func TestInvokeUnknownAction(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Invoke(context.Background(), "launch_rocket", nil, nil)
	if !errors.Is(err, models.ErrActionNotSupported) {
		t.Fatalf("expected ErrActionNotSupported, got %v", err)
	}
}

func TestInvokeWrapsHandlerFailures(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("downstream unavailable")
	reg.Register("flaky", func(ctx context.Context, params, flowContext map[string]any) (map[string]any, error) {
		return nil, boom
	})

	_, err := reg.Invoke(context.Background(), "flaky", nil, nil)
	var execErr *models.ActionExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ActionExecutionError, got %v", err)
	}
	if execErr.Action != "flaky" || !errors.Is(err, boom) {
		t.Errorf("error should carry action name and wrap the cause: %v", err)
	}
}

func TestNamesAreSorted(t *testing.T) {
	reg, _ := commerceRegistry(t)
	names := reg.Names()
	want := []string{ActionCreateTicket, ActionFetchOrders, ActionSearchProducts}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestFetchOrders(t *testing.T) {
	reg, commerce := commerceRegistry(t)
	commerce.Orders["c1"] = []Order{
		{ID: "ORD-1", Status: "shipped", Total: 42.50},
		{ID: "ORD-2", Status: "processing", Total: 10},
	}

	result, err := reg.Invoke(context.Background(), ActionFetchOrders, nil, map[string]any{"customerId": "c1"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result["orderCount"] != 2 {
		t.Errorf("expected orderCount 2, got %v", result["orderCount"])
	}
	if result["orderSummary"] != "ORD-1 (shipped), ORD-2 (processing)" {
		t.Errorf("unexpected orderSummary: %v", result["orderSummary"])
	}
}

func TestFetchOrdersWithoutCustomerID(t *testing.T) {
	reg, _ := commerceRegistry(t)
	_, err := reg.Invoke(context.Background(), ActionFetchOrders, nil, map[string]any{})
	var execErr *models.ActionExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ActionExecutionError, got %v", err)
	}
}

func TestSearchProductsPrefersParamsOverContext(t *testing.T) {
	reg, commerce := commerceRegistry(t)
	commerce.Catalog = []Product{
		{ID: "p1", Name: "Blue Mug", Price: 9.99},
		{ID: "p2", Name: "Red Mug", Price: 9.99},
		{ID: "p3", Name: "Poster", Price: 4.99},
	}

	result, err := reg.Invoke(context.Background(), ActionSearchProducts,
		map[string]any{"query": "mug"}, map[string]any{"query": "poster"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result["resultCount"] != 2 {
		t.Errorf("expected 2 mugs, got %v", result["resultCount"])
	}
}

func TestCreateTicket(t *testing.T) {
	reg, _ := commerceRegistry(t)
	flowCtx := map[string]any{"conversationId": "conv-1", "customerId": "c1"}
	result, err := reg.Invoke(context.Background(), ActionCreateTicket, map[string]any{"kind": "return"}, flowCtx)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if id, _ := result["ticketId"].(string); id == "" {
		t.Errorf("expected a ticket id, got %v", result["ticketId"])
	}
}
