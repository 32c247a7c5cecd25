package scheduler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/architectagent/architect/internal/plan"
)

// PayloadError reports a structured response that does not match the shape
// its node kind requires. It is fed back into the next step's context.
type PayloadError struct {
	Kind   plan.Kind
	Reason string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Kind, e.Reason)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// ValidatePayload checks raw against the payload shape of kind.
func ValidatePayload(kind plan.Kind, raw json.RawMessage) error {
	invalid := func(format string, args ...any) error {
		return &PayloadError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return invalid("empty response")
	}

	switch kind {
	case plan.KindDecision:
		var p plan.DecisionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return invalid("%v", err)
		}
		if blank(p.Title) {
			return invalid(`missing required field "title"`)
		}
		if blank(p.Decision) {
			return invalid(`missing required field "decision"`)
		}

	case plan.KindComponent:
		var p plan.ComponentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return invalid("%v", err)
		}
		if len(p.Components) == 0 {
			return invalid(`"components" must list at least one component`)
		}
		for i, c := range p.Components {
			if blank(c.Name) {
				return invalid(`components[%d]: missing required field "name"`, i)
			}
			if blank(c.Responsibility) {
				return invalid(`component %q: missing required field "responsibility"`, c.Name)
			}
		}

	case plan.KindInterface:
		var p plan.InterfacePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return invalid("%v", err)
		}
		if len(p.Interfaces) == 0 {
			return invalid(`"interfaces" must list at least one interface`)
		}
		for i, in := range p.Interfaces {
			if blank(in.Name) {
				return invalid(`interfaces[%d]: missing required field "name"`, i)
			}
			if blank(in.Protocol) {
				return invalid(`interface %q: missing required field "protocol"`, in.Name)
			}
			if len(in.Operations) == 0 {
				return invalid(`interface %q: "operations" must not be empty`, in.Name)
			}
		}

	default:
		return invalid("unknown node kind")
	}
	return nil
}
