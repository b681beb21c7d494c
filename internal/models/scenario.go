// Package models defines scenario and step definitions for ReplyFlow.
package models

// StepType identifies the kind of a scenario step node.
type StepType string

const (
	// StepTypeMessage emits content and advances without waiting for input.
	StepTypeMessage StepType = "message"
	// StepTypeQuestion emits content, suspends for the next inbound message,
	// and binds the reply into the flow context.
	StepTypeQuestion StepType = "question"
	// StepTypeAction invokes an action handler and merges its result into the
	// flow context. Actions never produce visible output and never suspend.
	StepTypeAction StepType = "action"
	// StepTypeCondition evaluates a named predicate over the flow context and
	// branches.
	StepTypeCondition StepType = "condition"
	// StepTypeEscalate emits a message and hands the conversation to a human
	// queue. Terminal from the engine's perspective.
	StepTypeEscalate StepType = "escalate"
	// StepTypeRoute emits options, suspends, and on reply either starts a
	// different scenario or resolves the reserved escalation token.
	StepTypeRoute StepType = "route"
)

// EscalationToken is the reserved route target that resolves to a human
// handoff instead of another scenario.
const EscalationToken = "__escalate__"

// Validation constants for scenario authoring.
const (
	// MaxStepsPerScenario bounds the size of a single scenario's step graph.
	MaxStepsPerScenario = 100
	// MaxKeywordsPerTrigger bounds the keyword set of a trigger.
	MaxKeywordsPerTrigger = 50
)

// Step is one node of a scenario's directed step graph. The populated fields
// depend on Type; Validate enforces the per-type requirements. Next is the
// explicit successor for non-branching steps; an empty Next on a message,
// question, or action step ends the flow.
type Step struct {
	ID      string   `json:"id" yaml:"id"`
	Type    StepType `json:"type" yaml:"type"`
	Content string   `json:"content,omitempty" yaml:"content,omitempty"`
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
	DelayMs int      `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`
	Next    string   `json:"next,omitempty" yaml:"next,omitempty"`

	// question
	BindTo string `json:"bindTo,omitempty" yaml:"bindTo,omitempty"`

	// action
	Action string         `json:"action,omitempty" yaml:"action,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// condition
	Predicate string `json:"predicate,omitempty" yaml:"predicate,omitempty"`
	TrueStep  string `json:"trueStep,omitempty" yaml:"trueStep,omitempty"`
	FalseStep string `json:"falseStep,omitempty" yaml:"falseStep,omitempty"`

	// escalate
	Department string   `json:"department,omitempty" yaml:"department,omitempty"`
	Priority   Priority `json:"priority,omitempty" yaml:"priority,omitempty"`

	// route: user choice -> target scenario id or EscalationToken
	Routes map[string]string `json:"routes,omitempty" yaml:"routes,omitempty"`
}

// Trigger holds the optional matching predicates of a scenario. A zero field
// means "don't constrain on this dimension".
type Trigger struct {
	Keywords  []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Intent    string   `json:"intent,omitempty" yaml:"intent,omitempty"`
	Sentiment string   `json:"sentiment,omitempty" yaml:"sentiment,omitempty"`
}

// Conditions holds the optional gating conditions of a scenario.
type Conditions struct {
	WorkingHoursOnly        bool `json:"workingHoursOnly,omitempty" yaml:"workingHoursOnly,omitempty"`
	RequiresCustomerHistory bool `json:"requiresCustomerHistory,omitempty" yaml:"requiresCustomerHistory,omitempty"`
	MaxDailyUsesPerCustomer int  `json:"maxDailyUsesPerCustomer,omitempty" yaml:"maxDailyUsesPerCustomer,omitempty"`
}

// Fallback is the scenario's policy when execution cannot continue: an
// unrecognized route choice, a failed action, or a staleness timeout.
type Fallback struct {
	EscalateToHuman bool   `json:"escalateToHuman,omitempty" yaml:"escalateToHuman,omitempty"`
	Message         string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Scenario is an authored, immutable automation definition. Execution never
// mutates a scenario; all mutable state lives on the ConversationFlow.
type Scenario struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	CompanyID string   `json:"companyId" yaml:"companyId"`
	Priority  Priority `json:"priority" yaml:"priority"`
	Active    bool     `json:"active" yaml:"active"`

	Trigger    Trigger    `json:"trigger" yaml:"trigger"`
	Conditions Conditions `json:"conditions" yaml:"conditions"`
	Steps      []Step     `json:"steps" yaml:"steps"`
	Fallback   Fallback   `json:"fallback" yaml:"fallback"`

	// Predicates maps names used by condition steps to boolean expressions
	// evaluated over the flow context. Compiled at registration time.
	Predicates map[string]string `json:"predicates,omitempty" yaml:"predicates,omitempty"`
}

// StepByID returns the step with the given id, or nil.
func (s *Scenario) StepByID(id string) *Step {
	for i := range s.Steps {
		if s.Steps[i].ID == id {
			return &s.Steps[i]
		}
	}
	return nil
}

// EntryStepID returns the id of the scenario's entry step.
func (s *Scenario) EntryStepID() string {
	if len(s.Steps) == 0 {
		return ""
	}
	return s.Steps[0].ID
}

// NormalizeSteps fills in the implicit sequential Next pointer for
// non-branching steps that omit it, using step array order. The last step's
// Next stays empty, which ends the flow. Branching and terminal steps are
// left untouched.
func (s *Scenario) NormalizeSteps() {
	for i := range s.Steps {
		st := &s.Steps[i]
		switch st.Type {
		case StepTypeMessage, StepTypeQuestion, StepTypeAction:
			if st.Next == "" && i+1 < len(s.Steps) {
				st.Next = s.Steps[i+1].ID
			}
		}
	}
}

// Validate checks the scenario definition. knownActions is the set of action
// names the Action Provider supports; a nil map skips the capability check.
// Route targets name other scenarios and are resolved lazily at execution
// time, so only the reserved token and non-emptiness are checked here.
func (s *Scenario) Validate(knownActions map[string]bool) error {
	fail := func(reason string) error {
		return &ScenarioDefinitionError{ScenarioID: s.ID, Reason: reason}
	}
	if s.ID == "" {
		return fail("id is required")
	}
	if s.Name == "" {
		return fail("name is required")
	}
	if s.CompanyID == "" {
		return fail("companyId is required")
	}
	if !IsValidPriority(s.Priority) {
		return fail("priority must be one of low, medium, high, urgent")
	}
	if len(s.Steps) == 0 {
		return fail("at least one step is required")
	}
	if len(s.Steps) > MaxStepsPerScenario {
		return fail("too many steps")
	}
	if len(s.Trigger.Keywords) > MaxKeywordsPerTrigger {
		return fail("too many trigger keywords")
	}
	if s.Conditions.MaxDailyUsesPerCustomer < 0 {
		return fail("maxDailyUsesPerCustomer must not be negative")
	}

	ids := make(map[string]bool, len(s.Steps))
	for i := range s.Steps {
		st := &s.Steps[i]
		if st.ID == "" {
			return fail("every step needs an id")
		}
		if ids[st.ID] {
			return fail("duplicate step id " + st.ID)
		}
		ids[st.ID] = true
	}

	for i := range s.Steps {
		st := &s.Steps[i]
		if err := s.validateStep(st, ids, knownActions); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scenario) validateStep(st *Step, ids map[string]bool, knownActions map[string]bool) error {
	fail := func(reason string) error {
		return &ScenarioDefinitionError{ScenarioID: s.ID, Reason: "step " + st.ID + ": " + reason}
	}
	ref := func(field, target string) error {
		if target != "" && !ids[target] {
			return fail(field + " references unknown step " + target)
		}
		return nil
	}

	switch st.Type {
	case StepTypeMessage:
		if st.Content == "" {
			return fail("message step needs content")
		}
		return ref("next", st.Next)
	case StepTypeQuestion:
		if st.Content == "" {
			return fail("question step needs content")
		}
		if st.BindTo == "" {
			return fail("question step needs bindTo")
		}
		return ref("next", st.Next)
	case StepTypeAction:
		if st.Action == "" {
			return fail("action step needs an action name")
		}
		if knownActions != nil && !knownActions[st.Action] {
			return fail("action " + st.Action + " is not supported by the action provider")
		}
		return ref("next", st.Next)
	case StepTypeCondition:
		if st.Predicate == "" {
			return fail("condition step needs a predicate name")
		}
		if st.TrueStep == "" || st.FalseStep == "" {
			return fail("condition step needs trueStep and falseStep")
		}
		if err := ref("trueStep", st.TrueStep); err != nil {
			return err
		}
		return ref("falseStep", st.FalseStep)
	case StepTypeEscalate:
		if st.Department == "" {
			return fail("escalate step needs a department")
		}
		if st.Priority != "" && !IsValidPriority(st.Priority) {
			return fail("escalate step priority is invalid")
		}
		return nil
	case StepTypeRoute:
		if st.Content == "" {
			return fail("route step needs content")
		}
		if len(st.Routes) == 0 {
			return fail("route step needs at least one route")
		}
		for choice, target := range st.Routes {
			if choice == "" {
				return fail("route choice must not be empty")
			}
			if target == "" {
				return fail("route target for choice " + choice + " must not be empty")
			}
		}
		return nil
	}
	return fail("unknown step type " + string(st.Type))
}
