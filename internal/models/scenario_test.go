package models

import (
	"errors"
	"testing"
)

func validScenario() *Scenario {
	return &Scenario{
		ID:        "order-status",
		Name:      "Order status",
		CompanyID: "acme",
		Priority:  PriorityHigh,
		Active:    true,
		Trigger:   Trigger{Keywords: []string{"order", "where is"}},
		Steps: []Step{
			{ID: "greet", Type: StepTypeMessage, Content: "Hi there!"},
			{ID: "fetch", Type: StepTypeAction, Action: "fetch_orders"},
			{ID: "check", Type: StepTypeCondition, Predicate: "hasOrders", TrueStep: "show", FalseStep: "none"},
			{ID: "show", Type: StepTypeMessage, Content: "You have {{orderCount}} orders.", Next: ""},
			{ID: "none", Type: StepTypeMessage, Content: "No orders yet."},
		},
		Fallback: Fallback{Message: "Let me get a human."},
	}
}

func TestScenarioValidate(t *testing.T) {
	sc := validScenario()
	sc.NormalizeSteps()
	if err := sc.Validate(map[string]bool{"fetch_orders": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScenarioValidateRejectsUnknownBranchTarget(t *testing.T) {
	sc := validScenario()
	sc.Steps[2].TrueStep = "missing"
	err := sc.Validate(nil)
	var defErr *ScenarioDefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected ScenarioDefinitionError, got %v", err)
	}
}

func TestScenarioValidateRejectsDuplicateStepIDs(t *testing.T) {
	sc := validScenario()
	sc.Steps[1].ID = "greet"
	if err := sc.Validate(nil); err == nil {
		t.Error("expected duplicate step id to be rejected")
	}
}

func TestScenarioValidateRejectsUnknownAction(t *testing.T) {
	sc := validScenario()
	err := sc.Validate(map[string]bool{"search_products": true})
	if err == nil {
		t.Fatal("expected unknown action to be rejected")
	}
}

func TestScenarioValidateRejectsBadPriority(t *testing.T) {
	sc := validScenario()
	sc.Priority = "critical"
	if err := sc.Validate(nil); err == nil {
		t.Error("expected invalid priority to be rejected")
	}
}

func TestNormalizeStepsFillsSequentialNext(t *testing.T) {
	sc := validScenario()
	sc.NormalizeSteps()
	if got := sc.Steps[0].Next; got != "fetch" {
		t.Errorf("expected greet to advance to fetch, got %q", got)
	}
	if got := sc.Steps[1].Next; got != "check" {
		t.Errorf("expected fetch to advance to check, got %q", got)
	}
	// Branching steps keep their explicit targets.
	if sc.Steps[2].Next != "" {
		t.Errorf("condition step should not get a sequential next, got %q", sc.Steps[2].Next)
	}
	// The last step ends the flow.
	if sc.Steps[4].Next != "" {
		t.Errorf("last step should end the flow, got next %q", sc.Steps[4].Next)
	}
}

func TestPriorityWeightOrdering(t *testing.T) {
	order := []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}
	for i := 1; i < len(order); i++ {
		if order[i-1].Weight() <= order[i].Weight() {
			t.Errorf("expected %s to outweigh %s", order[i-1], order[i])
		}
	}
	if Priority("bogus").Weight() != 0 {
		t.Error("unknown priority should weigh zero")
	}
}

func TestStepByID(t *testing.T) {
	sc := validScenario()
	if st := sc.StepByID("check"); st == nil || st.Type != StepTypeCondition {
		t.Fatalf("expected condition step, got %+v", st)
	}
	if st := sc.StepByID("nope"); st != nil {
		t.Errorf("expected nil for unknown id, got %+v", st)
	}
}
