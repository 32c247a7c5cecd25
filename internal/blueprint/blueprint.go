// Package blueprint renders a run's resolved plan as a Markdown architecture
// document.
package blueprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/architectagent/architect/internal/knowledge"
	"github.com/architectagent/architect/internal/plan"
	"github.com/architectagent/architect/internal/session"
)

// Document is the structured form of a blueprint.
type Document struct {
	RunID      string
	Title      string
	Status     session.Status
	Summary    string
	Analysis   knowledge.Analysis
	Decisions  []ADR
	Components []plan.ComponentSpec
	Interfaces []plan.InterfaceSpec
	Diagram    string   // Mermaid flowchart of the components
	Unresolved []string // Nodes without a payload, with their reason
	Malformed  []string // Resolved nodes whose payload could not be decoded
	NodeCount  int
	Resolved   int
}

// ADR is one architecture decision record.
type ADR struct {
	Number int
	NodeID string
	plan.DecisionPayload
}

// Build assembles the document from a checkpoint. Unfinished runs produce a
// partial blueprint listing what is missing.
func Build(cp session.Checkpoint) Document {
	doc := Document{
		RunID:     cp.RunID,
		Title:     title(cp.Requirements),
		Status:    cp.Status,
		Summary:   strings.TrimSpace(cp.Requirements),
		Analysis:  knowledge.Analyze(cp.Requirements),
		NodeCount: len(cp.Nodes),
	}

	for _, n := range cp.Nodes {
		if n.Status != plan.StatusResolved {
			reason := string(n.Status)
			if n.LastError != "" {
				reason += ": " + n.LastError
			}
			doc.Unresolved = append(doc.Unresolved, fmt.Sprintf("%s (%s)", n.ID, reason))
			continue
		}
		doc.Resolved++

		var err error
		switch n.Kind {
		case plan.KindDecision:
			var p plan.DecisionPayload
			if err = json.Unmarshal(n.Payload, &p); err == nil {
				doc.Decisions = append(doc.Decisions, ADR{Number: len(doc.Decisions) + 1, NodeID: n.ID, DecisionPayload: p})
			}
		case plan.KindComponent:
			var p plan.ComponentPayload
			if err = json.Unmarshal(n.Payload, &p); err == nil {
				doc.Components = append(doc.Components, p.Components...)
			}
		case plan.KindInterface:
			var p plan.InterfacePayload
			if err = json.Unmarshal(n.Payload, &p); err == nil {
				doc.Interfaces = append(doc.Interfaces, p.Interfaces...)
			}
		}
		if err != nil {
			doc.Malformed = append(doc.Malformed, fmt.Sprintf("%s: %v", n.ID, err))
		}
	}
	doc.Diagram = diagram(doc.Components)
	return doc
}

// title derives a short heading from the first line of the request.
func title(requirements string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(requirements), "\n")
	line = strings.TrimRight(line, ".")
	if line == "" {
		return "Architecture Blueprint"
	}
	if r := []rune(line); len(r) > 80 {
		line = string(r[:77]) + "..."
	}
	return line
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]+`)

func mermaidID(name string) string {
	id := strings.Trim(nonIdent.ReplaceAllString(name, "_"), "_")
	if id == "" {
		return "component"
	}
	return id
}

func diagram(components []plan.ComponentSpec) string {
	if len(components) == 0 {
		return ""
	}
	known := make(map[string]string, len(components))
	for _, c := range components {
		known[c.Name] = mermaidID(c.Name)
	}

	var sb strings.Builder
	sb.WriteString("flowchart LR\n")
	for _, c := range components {
		fmt.Fprintf(&sb, "    %s[%q]\n", known[c.Name], c.Name)
	}
	for _, c := range components {
		for _, dep := range c.DependsOn {
			if to, ok := known[dep]; ok {
				fmt.Fprintf(&sb, "    %s --> %s\n", known[c.Name], to)
			}
		}
	}
	return sb.String()
}

// Write renders doc as Markdown.
func (doc Document) Write(w io.Writer) error {
	var b bytes.Buffer

	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	fmt.Fprintf(&b, "_Run %s, status %s, %d of %d plan nodes resolved._\n\n", doc.RunID, doc.Status, doc.Resolved, doc.NodeCount)

	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "%s\n\n", doc.Summary)
	if len(doc.Analysis.Recommendations) > 0 {
		fmt.Fprintf(&b, "Decision profile: **%s**. Best matching patterns:\n\n", doc.Analysis.Profile)
		for _, sp := range doc.Analysis.Recommendations {
			fmt.Fprintf(&b, "- %s (%.0f, %s)\n", sp.Name, sp.Score, sp.Rating())
		}
		b.WriteString("\n")
	}
	if len(doc.Analysis.Conflicts) > 0 {
		b.WriteString("Trade-offs to watch:\n\n")
		for _, c := range doc.Analysis.Conflicts {
			fmt.Fprintf(&b, "- **%s**: %s\n", c.Name, c.Explanation)
		}
		b.WriteString("\n")
	}

	if doc.Diagram != "" {
		fmt.Fprintf(&b, "## Architecture Diagram\n\n```mermaid\n%s```\n\n", doc.Diagram)
	}

	if len(doc.Decisions) > 0 {
		b.WriteString("## Architecture Decision Records\n\n")
		for _, adr := range doc.Decisions {
			fmt.Fprintf(&b, "### ADR-%03d: %s\n\n", adr.Number, adr.Title)
			b.WriteString("**Status:** Accepted\n\n")
			fmt.Fprintf(&b, "**Decision:** %s\n\n", adr.Decision)
			if adr.Rationale != "" {
				fmt.Fprintf(&b, "**Rationale:** %s\n\n", adr.Rationale)
			}
			list(&b, "Alternatives considered", adr.Alternatives)
			list(&b, "Consequences", adr.Consequences)
		}
	}

	if len(doc.Components) > 0 {
		b.WriteString("## Components\n\n")
		b.WriteString("| Component | Responsibility | Technologies | Depends on |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, c := range doc.Components {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(c.Name), cell(c.Responsibility),
				cell(strings.Join(c.Technologies, ", ")), cell(strings.Join(c.DependsOn, ", ")))
		}
		b.WriteString("\n")
	}

	if len(doc.Interfaces) > 0 {
		b.WriteString("## Interfaces\n\n")
		for _, in := range doc.Interfaces {
			fmt.Fprintf(&b, "### %s (%s)\n\n", in.Name, in.Protocol)
			if in.Provider != "" {
				fmt.Fprintf(&b, "Provided by %s", in.Provider)
				if len(in.Consumers) > 0 {
					fmt.Fprintf(&b, ", used by %s", strings.Join(in.Consumers, ", "))
				}
				b.WriteString(".\n\n")
			}
			for _, op := range in.Operations {
				fmt.Fprintf(&b, "- `%s`\n", op)
			}
			b.WriteString("\n")
		}
	}

	if len(doc.Unresolved) > 0 || len(doc.Malformed) > 0 {
		b.WriteString("## Open Items\n\n")
		for _, u := range doc.Unresolved {
			fmt.Fprintf(&b, "- Unresolved: %s\n", u)
		}
		for _, m := range doc.Malformed {
			fmt.Fprintf(&b, "- Unreadable payload: %s\n", m)
		}
		b.WriteString("\n")
	}

	_, err := w.Write(b.Bytes())
	return err
}

// Markdown renders the blueprint of cp.
func Markdown(cp session.Checkpoint) string {
	var sb strings.Builder
	_ = Build(cp).Write(&sb)
	return sb.String()
}

func list(b *bytes.Buffer, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s:**\n\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}
