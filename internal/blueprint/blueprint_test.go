package blueprint

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/architectagent/architect/internal/plan"
	"github.com/architectagent/architect/internal/session"
)

func checkpoint() session.Checkpoint {
	return session.Checkpoint{
		RunID:        "run-1",
		Requirements: "Ticketing platform for concerts.\nMust scale to a million users on a tight budget.",
		Status:       session.StatusPartialFailure,
		Nodes: []plan.Node{
			{
				ID: "architecture-pattern", Kind: plan.KindDecision, Status: plan.StatusResolved,
				Payload: json.RawMessage(`{"title":"Modular monolith","decision":"Start with a modular monolith","rationale":"Small team","alternatives":["Microservices"],"consequences":["Simple deploys"]}`),
			},
			{
				ID: "core-components", Kind: plan.KindComponent, Status: plan.StatusResolved,
				Payload: json.RawMessage(`{"components":[{"name":"Ticket API","responsibility":"Sell | reserve tickets","technologies":["Go","PostgreSQL"],"depends_on":["Payment Gateway"]},{"name":"Payment Gateway","responsibility":"Charge cards"}]}`),
			},
			{
				ID: "service-interfaces", Kind: plan.KindInterface, Status: plan.StatusResolved,
				Payload: json.RawMessage(`{"interfaces":[{"name":"Orders","protocol":"REST","provider":"Ticket API","consumers":["Web"],"operations":["POST /orders"]}]}`),
			},
			{ID: "deployment", Kind: plan.KindDecision, Status: plan.StatusFailed, Terminal: true, LastError: "backend unavailable"},
			{ID: "broken", Kind: plan.KindComponent, Status: plan.StatusResolved, Payload: json.RawMessage(`{"components":"oops"}`)},
		},
	}
}

func TestBuild(t *testing.T) {
	doc := Build(checkpoint())

	if doc.Title != "Ticketing platform for concerts" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.Resolved != 4 || doc.NodeCount != 5 {
		t.Errorf("resolved %d of %d", doc.Resolved, doc.NodeCount)
	}
	if len(doc.Decisions) != 1 || doc.Decisions[0].Number != 1 || doc.Decisions[0].NodeID != "architecture-pattern" {
		t.Errorf("Decisions = %+v", doc.Decisions)
	}
	if len(doc.Components) != 2 || len(doc.Interfaces) != 1 {
		t.Errorf("components %d, interfaces %d", len(doc.Components), len(doc.Interfaces))
	}
	if diff := cmp.Diff([]string{"deployment (failed: backend unavailable)"}, doc.Unresolved); diff != "" {
		t.Errorf("Unresolved (-want +got):\n%s", diff)
	}
	if len(doc.Malformed) != 1 || !strings.HasPrefix(doc.Malformed[0], "broken:") {
		t.Errorf("Malformed = %v", doc.Malformed)
	}

	wantDiagram := "flowchart LR\n" +
		"    Ticket_API[\"Ticket API\"]\n" +
		"    Payment_Gateway[\"Payment Gateway\"]\n" +
		"    Ticket_API --> Payment_Gateway\n"
	if diff := cmp.Diff(wantDiagram, doc.Diagram); diff != "" {
		t.Errorf("Diagram (-want +got):\n%s", diff)
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(checkpoint())

	for _, want := range []string{
		"# Ticketing platform for concerts\n",
		"## Executive Summary",
		"scale_vs_cost",
		"```mermaid\nflowchart LR\n",
		"### ADR-001: Modular monolith",
		"**Decision:** Start with a modular monolith",
		"- Microservices",
		`Sell \| reserve tickets`,
		"### Orders (REST)",
		"Provided by Ticket API, used by Web.",
		"- `POST /orders`",
		"## Open Items",
		"Unresolved: deployment",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown missing %q", want)
		}
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "Architecture Blueprint"},
		{"  A chat app.  ", "A chat app"},
		{strings.Repeat("x", 100), strings.Repeat("x", 77) + "..."},
	}
	for _, tt := range tests {
		if got := title(tt.in); got != tt.want {
			t.Errorf("title(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
