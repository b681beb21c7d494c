// Package scenario provides the scenario registry for ReplyFlow.
//
// The registry stores immutable scenario definitions, validates them eagerly
// at registration time, and owns the compiled condition predicates used by the
// step executor. It is read-only at execution time; registration is an
// administrative path.
package scenario

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/replyflow/replyflow/internal/models"
)

// Built-in condition predicates available to every scenario. Scenario-level
// predicates with the same name take precedence.
var builtinPredicates = map[string]string{
	"hasOrders":         `(orderCount ?? 0) > 0`,
	"hasResults":        `(resultCount ?? 0) > 0`,
	"hasTicket":         `(ticketId ?? "") != ""`,
	"positiveSentiment": `(sentiment ?? "") == "positive"`,
	"negativeSentiment": `(sentiment ?? "") == "negative"`,
}

// Registry stores scenario definitions in insertion order. Insertion order is
// the trigger matcher's tiebreak for equal priorities, so it is preserved
// deliberately.
type Registry struct {
	mu           sync.RWMutex
	scenarios    map[string]*models.Scenario
	order        []string
	compiled     map[string]map[string]*vm.Program
	builtins     map[string]*vm.Program
	knownActions map[string]bool
}

// NewRegistry creates a registry. knownActions lists the action names the
// Action Provider supports; action steps referencing anything else are
// rejected at registration. A nil slice disables the capability check.
func NewRegistry(knownActions []string) (*Registry, error) {
	slog.Debug("Creating scenario registry", "knownActions", len(knownActions))
	r := &Registry{
		scenarios: make(map[string]*models.Scenario),
		compiled:  make(map[string]map[string]*vm.Program),
		builtins:  make(map[string]*vm.Program),
	}
	if knownActions != nil {
		r.knownActions = make(map[string]bool, len(knownActions))
		for _, name := range knownActions {
			r.knownActions[name] = true
		}
	}
	for name, src := range builtinPredicates {
		prog, err := compilePredicate(src)
		if err != nil {
			return nil, fmt.Errorf("failed to compile builtin predicate %s: %w", name, err)
		}
		r.builtins[name] = prog
	}
	return r, nil
}

// Register validates and stores a scenario. Validation failures are returned
// as ScenarioDefinitionError and block registration; nothing is stored on
// error. Re-registering an existing id is rejected: scenarios are immutable.
func (r *Registry) Register(sc *models.Scenario) error {
	slog.Debug("Registry Register", "scenarioID", sc.ID, "companyID", sc.CompanyID)

	sc.NormalizeSteps()
	if err := sc.Validate(r.knownActions); err != nil {
		slog.Error("Registry Register validation failed", "error", err, "scenarioID", sc.ID)
		return err
	}

	compiled := make(map[string]*vm.Program, len(sc.Predicates))
	for name, src := range sc.Predicates {
		prog, err := compilePredicate(src)
		if err != nil {
			slog.Error("Registry Register predicate compile failed", "error", err, "scenarioID", sc.ID, "predicate", name)
			return &models.ScenarioDefinitionError{
				ScenarioID: sc.ID,
				Reason:     fmt.Sprintf("predicate %s does not compile: %v", name, err),
			}
		}
		compiled[name] = prog
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.scenarios[sc.ID]; exists {
		return &models.ScenarioDefinitionError{ScenarioID: sc.ID, Reason: "scenario id already registered"}
	}
	r.scenarios[sc.ID] = sc
	r.order = append(r.order, sc.ID)
	r.compiled[sc.ID] = compiled

	slog.Info("Registry Register succeeded", "scenarioID", sc.ID, "steps", len(sc.Steps), "priority", sc.Priority)
	return nil
}

// Get returns the scenario with the given id.
func (r *Registry) Get(id string) (*models.Scenario, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc, ok := r.scenarios[id]
	if !ok {
		return nil, fmt.Errorf("scenario %s: %w", id, models.ErrScenarioNotFound)
	}
	return sc, nil
}

// ListActive returns the active scenarios for a company, ordered by priority
// weight descending with registration order breaking ties. Multiple scenarios
// may match the same message, so this ordering decides which one wins.
func (r *Registry) ListActive(companyID string) []*models.Scenario {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Scenario
	for _, id := range r.order {
		sc := r.scenarios[id]
		if sc.Active && sc.CompanyID == companyID {
			out = append(out, sc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Weight() > out[j].Priority.Weight()
	})
	return out
}

// EvaluateCondition evaluates a named predicate for a scenario over a flow
// context. Unknown predicate names and evaluation failures return false, not
// an error, so partially configured scenarios degrade instead of crashing a
// conversation.
func (r *Registry) EvaluateCondition(scenarioID, name string, context map[string]any) bool {
	r.mu.RLock()
	prog, ok := r.compiled[scenarioID][name]
	if !ok {
		prog, ok = r.builtins[name]
	}
	r.mu.RUnlock()
	if !ok {
		slog.Warn("Registry EvaluateCondition unknown predicate", "scenarioID", scenarioID, "predicate", name)
		return false
	}

	env := context
	if env == nil {
		env = map[string]any{}
	}
	result, err := expr.Run(prog, env)
	if err != nil {
		slog.Warn("Registry EvaluateCondition failed", "error", err, "scenarioID", scenarioID, "predicate", name)
		return false
	}
	b, ok := result.(bool)
	if !ok {
		slog.Warn("Registry EvaluateCondition non-boolean result", "scenarioID", scenarioID, "predicate", name)
		return false
	}
	return b
}

func compilePredicate(src string) (*vm.Program, error) {
	return expr.Compile(src,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
}
