package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/architectagent/architect/internal/knowledge"
	"github.com/architectagent/architect/internal/plan"
)

func decisionNode(id string, hints ...plan.Hint) plan.Node {
	return plan.Node{
		ID:          id,
		Kind:        plan.KindDecision,
		Title:       "Pick " + id,
		Instruction: "Decide " + id + ".",
		Hints:       hints,
	}
}

func resolvedDep(id, payload string) plan.Node {
	return plan.Node{ID: id, Kind: plan.KindDecision, Title: id, Status: plan.StatusResolved, Payload: json.RawMessage(payload)}
}

func TestBuildSections(t *testing.T) {
	b := NewBuilder(0)
	analysis := knowledge.Analyze("Payments platform on a tight budget that must scale to a million users")

	got := b.Build(Input{
		Requirements: "Payments platform on a tight budget that must scale to a million users",
		Node:         decisionNode("architecture-pattern", plan.HintPatterns, plan.HintConflicts),
		Dependencies: []plan.Node{
			resolvedDep("zeta", `{"title":"z"}`),
			resolvedDep("alpha", `{"title":"a"}`),
		},
		Analysis: &analysis,
		Feedback: "missing required field \"decision\"",
	})

	for _, want := range []string{
		"# Task: Pick architecture-pattern",
		"Decide architecture-pattern.",
		"# Design request",
		"million users",
		"Pattern ranking",
		"scale_vs_cost",
		"# Resolved dependencies",
		`{"title":"a"}`,
		"# Previous attempt failed",
		`missing required field "decision"`,
		`"decision": "what was decided"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q", want)
		}
	}

	if strings.Index(got, "(alpha,") > strings.Index(got, "(zeta,") {
		t.Error("dependencies are not ordered by id")
	}
}

func TestBuildSkipsKnowledgeWithoutHints(t *testing.T) {
	analysis := knowledge.Analyze("A recipe site")
	got := NewBuilder(0).Build(Input{
		Requirements: "A recipe site",
		Node:         decisionNode("data-storage"),
		Analysis:     &analysis,
	})
	if strings.Contains(got, "Architecture knowledge") {
		t.Errorf("unhinted node received knowledge:\n%s", got)
	}
	if strings.Contains(got, "Previous attempt failed") {
		t.Error("feedback section rendered without feedback")
	}
}

func TestBuildShapes(t *testing.T) {
	tests := []struct {
		kind plan.Kind
		want string
	}{
		{plan.KindDecision, `"decision"`},
		{plan.KindComponent, `"components"`},
		{plan.KindInterface, `"operations"`},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got := NewBuilder(0).Build(Input{Node: plan.Node{ID: "n", Kind: tt.kind}})
			if !strings.Contains(got, tt.want) {
				t.Errorf("context for %s lacks %s", tt.kind, tt.want)
			}
		})
	}
}

func TestBuildRespectsBudget(t *testing.T) {
	long := strings.Repeat("The system must handle ticket sales for large concerts. ", 400)
	var deps []plan.Node
	for i := range 8 {
		deps = append(deps, resolvedDep(fmt.Sprintf("dep-%d", i), fmt.Sprintf(`{"title":"%s"}`, strings.Repeat("x", 3000))))
	}
	analysis := knowledge.Analyze(long)

	for _, limit := range []int{800, 2000, 6000, 20000} {
		t.Run(fmt.Sprint(limit), func(t *testing.T) {
			got := NewBuilder(limit).Build(Input{
				Requirements: long,
				Node:         decisionNode("architecture-pattern", plan.HintPatterns),
				Dependencies: deps,
				Analysis:     &analysis,
				Feedback:     "response was not valid JSON",
			})
			if len(got) > limit {
				t.Errorf("context is %d chars, budget %d", len(got), limit)
			}
			if !strings.Contains(got, "# Output format") && limit >= 2000 {
				t.Error("output format section was dropped")
			}
			if !utf8.ValidString(got) {
				t.Error("truncation split a rune")
			}
		})
	}
}

func TestBuildKeepsFixedSectionsWhole(t *testing.T) {
	feedback := "payload rejected: " + strings.Repeat("missing required field \"decision\"; ", 20)
	got := NewBuilder(200).Build(Input{
		Requirements: strings.Repeat("Sell concert tickets. ", 50),
		Node:         decisionNode("architecture-pattern"),
		Dependencies: []plan.Node{resolvedDep("requirements", `{"title":"t","decision":"d"}`)},
		Feedback:     feedback,
	})

	if !strings.Contains(got, feedback) {
		t.Error("feedback was cut")
	}
	if !strings.HasSuffix(got, Shape(plan.KindDecision)+"\n") {
		t.Errorf("output format was cut:\n%s", got)
	}
	if strings.Contains(got, "# Design request") || strings.Contains(got, "# Resolved dependencies") {
		t.Error("variable sections should be dropped when the fixed ones fill the budget")
	}
	if strings.Contains(got, truncatedMarker) {
		t.Error("fixed sections were truncated")
	}
}

func TestBuildDeterministic(t *testing.T) {
	in := Input{
		Requirements: "Chat app",
		Node:         decisionNode("n"),
		Dependencies: []plan.Node{resolvedDep("b", `{}`), resolvedDep("a", `{}`)},
	}
	b := NewBuilder(0)
	if b.Build(in) != b.Build(in) {
		t.Error("Build() is not deterministic")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{strings.Repeat("a", 40), 20, "aaaaaaaa" + truncatedMarker},
		{"abc", 2, ""},
		{strings.Repeat("é", 20), 15, "é" + truncatedMarker},
	}
	for _, tt := range tests {
		if got := truncate(tt.s, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}
