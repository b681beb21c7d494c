package scenario

import (
	"os"
	"path/filepath"
	"testing"
)

const scenarioYAML = `
id: returns
name: Return requests
companyId: acme
priority: high
active: true
trigger:
  keywords: ["return", "refund"]
  sentiment: negative
conditions:
  requiresCustomerHistory: true
steps:
  - id: ack
    type: message
    content: "Sorry to hear that. Let's sort out your return."
  - id: which
    type: question
    content: "Which order would you like to return?"
    bindTo: orderRef
  - id: ticket
    type: action
    action: create_ticket
    params:
      kind: return
  - id: done
    type: message
    content: "Ticket {{ticketId}} created for order {{orderRef}}."
fallback:
  escalateToHuman: true
  message: "I couldn't set that up, connecting you to an agent."
`

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "returns.yaml"), []byte(scenarioYAML), 0644); err != nil {
		t.Fatalf("failed to write scenario file: %v", err)
	}
	// Non-YAML files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0644); err != nil {
		t.Fatalf("failed to write readme: %v", err)
	}

	reg := newTestRegistry(t)
	count, err := LoadDir(dir, reg)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 scenario loaded, got %d", count)
	}

	sc, err := reg.Get("returns")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sc.Priority != "high" || !sc.Conditions.RequiresCustomerHistory {
		t.Errorf("scenario fields not parsed: %+v", sc)
	}
	if got := sc.Steps[0].Next; got != "which" {
		t.Errorf("expected sequential next to be filled at registration, got %q", got)
	}
	if sc.Steps[1].BindTo != "orderRef" {
		t.Errorf("question bindTo not parsed: %+v", sc.Steps[1])
	}
}

func TestLoadDirRejectsInvalidScenario(t *testing.T) {
	dir := t.TempDir()
	bad := "id: broken\nname: Broken\ncompanyId: acme\npriority: high\nsteps: []\n"
	if err := os.WriteFile(filepath.Join(dir, "broken.yml"), []byte(bad), 0644); err != nil {
		t.Fatalf("failed to write scenario file: %v", err)
	}
	if _, err := LoadDir(dir, newTestRegistry(t)); err == nil {
		t.Fatal("expected invalid scenario to abort loading")
	}
}
