package knowledge

import (
	"fmt"
	"strings"
)

// Conflict is a detected tension between requirements and constraints.
type Conflict struct {
	Name        string   `json:"name"`
	Explanation string   `json:"explanation"`
	Compromises []string `json:"compromises"`
}

type conflictRule struct {
	Conflict
	check func(text string, constraints []Constraint) bool
}

func mentions(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func hasPressing(constraints []Constraint, t ConstraintType) bool {
	for _, c := range constraints {
		if c.Type == t && c.Severity.pressing() {
			return true
		}
	}
	return false
}

var conflictRules = []conflictRule{
	{
		Conflict: Conflict{
			Name:        "scale_vs_cost",
			Explanation: "High scale requirements conflict with a tight budget.",
			Compromises: []string{
				"Start with a simple architecture and plan the migration path",
				"Choose managed services that scale incrementally",
				"Define growth stages with a budget for each",
			},
		},
		check: func(text string, cs []Constraint) bool {
			return mentions(text, "scale", "million") && hasPressing(cs, ConstraintBudget)
		},
	},
	{
		Conflict: Conflict{
			Name:        "speed_vs_security",
			Explanation: "Security and compliance requirements conflict with an aggressive timeline.",
			Compromises: []string{
				"Launch an MVP with baseline security and add layers gradually",
				"Use managed platforms with built-in compliance",
				"Reduce scope to the essential features",
			},
		},
		check: func(text string, cs []Constraint) bool {
			return hasPressing(cs, ConstraintTimeline) && mentions(text, "compliance", "security", "gdpr", "pci", "hipaa")
		},
	},
	{
		Conflict: Conflict{
			Name:        "reliability_vs_cost",
			Explanation: "High availability requirements need significant investment.",
			Compromises: []string{
				"Start with a lower SLA and upgrade gradually",
				"Use managed services instead of self-hosting",
				"Set different SLA tiers for different components",
			},
		},
		check: func(text string, cs []Constraint) bool {
			return mentions(text, "uptime", "99.9", "availability") && hasPressing(cs, ConstraintBudget)
		},
	},
}

// DetectConflicts applies the conflict rules to requirements text.
func DetectConflicts(requirements string, constraints []Constraint) []Conflict {
	text := strings.ToLower(requirements)
	var out []Conflict
	for _, r := range conflictRules {
		if r.check(text, constraints) {
			out = append(out, r.Conflict)
		}
	}
	return out
}

// Analysis is what the knowledge base derives from a design request.
type Analysis struct {
	Constraints     []Constraint    `json:"constraints"`
	Profile         Profile         `json:"profile"`
	Ranking         []ScoredPattern `json:"ranking"`
	Recommendations []ScoredPattern `json:"recommendations"`
	Conflicts       []Conflict      `json:"conflicts"`
}

type constraintRule struct {
	kind     ConstraintType
	words    []string
	high     []string
	critical []string
	desc     string
}

var constraintRules = []constraintRule{
	{
		kind:  ConstraintBudget,
		words: []string{"budget", "cheap", "low cost", "low-cost", "cost-effective", "limited funds", "bootstrapped"},
		high:  []string{"tight", "limited", "small budget", "low budget", "cheap", "bootstrapped"},
		desc:  "budget limits infrastructure spend",
	},
	{
		kind:  ConstraintTimeline,
		words: []string{"deadline", "asap", "quickly", "mvp", "time to market", "weeks", "launch soon"},
		high:  []string{"asap", "weeks", "tight", "urgent", "mvp"},
		desc:  "delivery timeline is short",
	},
	{
		kind:  ConstraintTeam,
		words: []string{"small team", "solo", "junior", "one developer", "two developers", "few developers"},
		high:  []string{"solo", "one developer", "junior"},
		desc:  "team size or experience is limited",
	},
	{
		kind:     ConstraintCompliance,
		words:    []string{"gdpr", "hipaa", "pci", "soc 2", "soc2", "compliance", "regulat"},
		high:     []string{"gdpr", "soc 2", "soc2", "regulat"},
		critical: []string{"hipaa", "pci"},
		desc:     "regulatory compliance is required",
	},
}

// InferConstraints derives constraints from requirements text by keyword.
func InferConstraints(requirements string) []Constraint {
	text := strings.ToLower(requirements)
	var out []Constraint
	for _, r := range constraintRules {
		if !mentions(text, r.words...) {
			continue
		}
		sev := SeverityMedium
		switch {
		case mentions(text, r.critical...):
			sev = SeverityCritical
		case mentions(text, r.high...):
			sev = SeverityHigh
		}
		out = append(out, Constraint{Type: r.kind, Description: r.desc, Severity: sev})
	}
	return out
}

// InferProfile picks the weighting preset that best matches the request.
func InferProfile(requirements string, constraints []Constraint) Profile {
	text := strings.ToLower(requirements)
	for _, c := range constraints {
		if c.Type == ConstraintCompliance && c.Severity.pressing() {
			return ProfileSecurityFirst
		}
	}
	switch {
	case mentions(text, "security", "secure", "encryption"):
		return ProfileSecurityFirst
	case mentions(text, "million", "global", "high traffic", "scale"):
		return ProfileScaleFirst
	case hasPressing(constraints, ConstraintBudget):
		return ProfileCostFirst
	case hasPressing(constraints, ConstraintTimeline):
		return ProfileMVPFast
	}
	return ProfileBalanced
}

// Analyze runs the full knowledge pipeline over a design request.
func Analyze(requirements string) Analysis {
	constraints := InferConstraints(requirements)
	profile := InferProfile(requirements, constraints)
	weights := ProfileWeights(profile)
	return Analysis{
		Constraints:     constraints,
		Profile:         profile,
		Ranking:         Rank(weights, constraints),
		Recommendations: Recommend(weights, constraints, 3),
		Conflicts:       DetectConflicts(requirements, constraints),
	}
}

// PatternBrief renders the ranked patterns for a prompt.
func (a Analysis) PatternBrief() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Decision profile: %s\n", a.Profile)
	for _, c := range a.Constraints {
		fmt.Fprintf(&sb, "Constraint [%s, %s]: %s\n", c.Type, c.Severity, c.Description)
	}
	sb.WriteString("Pattern ranking (0-100):\n")
	for _, sp := range a.Ranking {
		p, _ := Lookup(sp.Key)
		fmt.Fprintf(&sb, "- %s: %.0f (%s; strongest %s, weakest %s). %s\n",
			sp.Name, sp.Score, sp.Rating(), sp.Strongest(), sp.Weakest(), p.Description)
	}
	return sb.String()
}

// ConflictBrief renders the detected conflicts for a prompt.
func (a Analysis) ConflictBrief() string {
	if len(a.Conflicts) == 0 {
		return "No rule-based conflicts detected.\n"
	}
	var sb strings.Builder
	for _, c := range a.Conflicts {
		fmt.Fprintf(&sb, "- %s: %s\n", c.Name, c.Explanation)
		for _, comp := range c.Compromises {
			fmt.Fprintf(&sb, "  * %s\n", comp)
		}
	}
	return sb.String()
}
