// Package prompt assembles the bounded context sent with each reasoning call.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/architectagent/architect/internal/knowledge"
	"github.com/architectagent/architect/internal/plan"
)

// DefaultMaxChars bounds the context when no budget is configured.
const DefaultMaxChars = 24000

const truncatedMarker = "\n[truncated]"

const systemPrompt = `You are a senior software architect producing one part of an architecture blueprint.
Ground every answer in the design request and in the decisions already made.
Reply with a single JSON object that matches the requested shape. Do not add prose outside the JSON.`

var shapes = map[plan.Kind]string{
	plan.KindDecision: `{
  "title": "short decision title",
  "decision": "what was decided",
  "rationale": "why",
  "alternatives": ["options considered and rejected"],
  "consequences": ["positive and negative consequences"]
}
"title" and "decision" are required.`,
	plan.KindComponent: `{
  "components": [
    {
      "name": "component name",
      "responsibility": "single responsibility",
      "technologies": ["chosen technologies"],
      "depends_on": ["names of other components"]
    }
  ]
}
At least one component is required; each needs "name" and "responsibility".`,
	plan.KindInterface: `{
  "interfaces": [
    {
      "name": "interface name",
      "protocol": "REST, gRPC, events, ...",
      "provider": "component exposing it",
      "consumers": ["components using it"],
      "operations": ["operation signatures"]
    }
  ]
}
At least one interface is required; each needs "name", "protocol" and a non-empty "operations" list.`,
}

// Shape returns the JSON shape a node kind must produce.
func Shape(k plan.Kind) string { return shapes[k] }

// Input is everything known when a node's step starts.
type Input struct {
	Requirements string
	Node         plan.Node
	Dependencies []plan.Node         // Resolved dependency nodes
	Analysis     *knowledge.Analysis // Optional, used for hinted nodes
	Feedback     string              // Why the previous step failed
}

// Builder renders Inputs into prompts no longer than MaxChars, unless the
// task, output format and feedback alone exceed it.
type Builder struct {
	MaxChars int
}

// NewBuilder creates a Builder; maxChars <= 0 selects DefaultMaxChars.
func NewBuilder(maxChars int) *Builder {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Builder{MaxChars: maxChars}
}

// System returns the system prompt.
func (b *Builder) System() string { return systemPrompt }

// Build returns the context for in. The task, output shape and failure
// feedback are always kept whole; requirements, knowledge and dependency
// payloads share the remaining budget and are truncated to fit.
func (b *Builder) Build(in Input) string {
	var head strings.Builder
	fmt.Fprintf(&head, "# Task: %s\n", title(in.Node))
	fmt.Fprintf(&head, "Kind: %s\n", in.Node.Kind)
	if in.Node.Instruction != "" {
		fmt.Fprintf(&head, "%s\n", strings.TrimSpace(in.Node.Instruction))
	}

	var tail strings.Builder
	if in.Feedback != "" {
		fmt.Fprintf(&tail, "\n# Previous attempt failed\n%s\nCorrect this in your answer.\n", in.Feedback)
	}
	fmt.Fprintf(&tail, "\n# Output format\n%s\n", Shape(in.Node.Kind))

	budget := b.MaxChars - head.Len() - tail.Len()
	if budget < 0 {
		budget = 0
	}

	knowledgeText := knowledgeSection(in)
	deps := dependencySections(in.Dependencies)

	// Requirements get up to half, knowledge a quarter, dependencies the rest
	// plus whatever the first two leave unused.
	reqSection := section("Design request", in.Requirements, budget/2)
	rest := budget - len(reqSection)
	knowSection := ""
	if knowledgeText != "" {
		knowSection = section("Architecture knowledge", knowledgeText, min(rest/2, budget/4))
		rest -= len(knowSection)
	}
	depSection := ""
	if len(deps) > 0 {
		depSection = fitDependencies(deps, rest)
	}

	var out strings.Builder
	out.Grow(b.MaxChars)
	out.WriteString(head.String())
	out.WriteString(reqSection)
	out.WriteString(knowSection)
	out.WriteString(depSection)
	out.WriteString(tail.String())
	return out.String()
}

func title(n plan.Node) string {
	if n.Title != "" {
		return n.Title
	}
	return n.ID
}

func knowledgeSection(in Input) string {
	if in.Analysis == nil {
		return ""
	}
	var sb strings.Builder
	if in.Node.HasHint(plan.HintPatterns) {
		sb.WriteString(in.Analysis.PatternBrief())
	}
	if in.Node.HasHint(plan.HintConflicts) {
		sb.WriteString("Detected conflicts:\n")
		sb.WriteString(in.Analysis.ConflictBrief())
	}
	return sb.String()
}

type depText struct {
	header string
	body   string
}

func dependencySections(deps []plan.Node) []depText {
	sorted := append([]plan.Node(nil), deps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	out := make([]depText, 0, len(sorted))
	for _, d := range sorted {
		out = append(out, depText{
			header: fmt.Sprintf("## %s (%s, %s)\n", title(d), d.ID, d.Kind),
			body:   string(d.Payload),
		})
	}
	return out
}

// fitDependencies shares budget evenly between dependency payloads, handing
// space unused by short payloads to the remaining ones.
func fitDependencies(deps []depText, budget int) string {
	const heading = "\n# Resolved dependencies\n"
	if budget <= len(heading) {
		return ""
	}
	budget -= len(heading)

	var sb strings.Builder
	sb.WriteString(heading)
	for i, d := range deps {
		share := budget / (len(deps) - i)
		entry := d.header + truncate(d.body, max(share-len(d.header)-1, 0)) + "\n"
		if len(entry) > share {
			continue
		}
		sb.WriteString(entry)
		budget -= len(entry)
	}
	return sb.String()
}

func section(name, body string, limit int) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	header := fmt.Sprintf("\n# %s\n", name)
	if limit <= len(header)+1 {
		return ""
	}
	return header + truncate(body, limit-len(header)-1) + "\n"
}

// truncate cuts s to at most n bytes on a rune boundary, marking the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= len(truncatedMarker) {
		return ""
	}
	cut := n - len(truncatedMarker)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedMarker
}
