package knowledge

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Score thresholds.
const (
	MinViableScore = 40
	ScoreExcellent = 80
	ScoreGood      = 60
)

// ConstraintType classifies a project constraint.
type ConstraintType string

const (
	ConstraintBudget     ConstraintType = "budget"
	ConstraintTimeline   ConstraintType = "timeline"
	ConstraintTeam       ConstraintType = "team"
	ConstraintCompliance ConstraintType = "compliance"
)

// Severity scales a constraint's impact.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

func (s Severity) multiplier() float64 {
	switch s {
	case SeverityCritical:
		return 1.5
	case SeverityHigh:
		return 1.2
	case SeverityLow:
		return 0.7
	}
	return 1.0
}

func (s Severity) pressing() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Constraint is a limitation the architecture must respect.
type Constraint struct {
	Type        ConstraintType `json:"type"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
}

// constraintImpacts are score adjustments per constraint type and pattern.
var constraintImpacts = map[ConstraintType]map[string]float64{
	ConstraintBudget: {
		"microservices": -30, "cqrs": -25, "event_driven": -20,
		"serverless": -10, "modular_monolith": -5,
	},
	ConstraintTimeline: {
		"microservices": -35, "cqrs": -30, "event_driven": -20,
		"modular_monolith": -10, "serverless": -5,
	},
	ConstraintTeam: {
		"microservices": -25, "cqrs": -30, "event_driven": -20,
		"modular_monolith": -10, "serverless": -15,
	},
	ConstraintCompliance: {
		"serverless": -20, "microservices": -10, "event_driven": -5, "cqrs": 5,
	},
}

// Weights map criteria to their relative importance; they sum to 1.
type Weights map[Criterion]float64

// Profile is a named weighting preset.
type Profile string

const (
	ProfileBalanced      Profile = "balanced"
	ProfileMVPFast       Profile = "mvp_fast"
	ProfileCostFirst     Profile = "cost_first"
	ProfileScaleFirst    Profile = "scale_first"
	ProfileSecurityFirst Profile = "security_first"
)

// ProfileWeights returns the weights for a profile; unknown profiles are
// balanced.
func ProfileWeights(p Profile) Weights {
	switch p {
	case ProfileMVPFast:
		return Weights{TimeToMarket: 0.4, Cost: 0.25, Scale: 0.1, Reliability: 0.15, Security: 0.1}
	case ProfileCostFirst:
		return Weights{TimeToMarket: 0.15, Cost: 0.4, Scale: 0.15, Reliability: 0.15, Security: 0.15}
	case ProfileScaleFirst:
		return Weights{TimeToMarket: 0.1, Cost: 0.15, Scale: 0.4, Reliability: 0.2, Security: 0.15}
	case ProfileSecurityFirst:
		return Weights{TimeToMarket: 0.1, Cost: 0.1, Scale: 0.15, Reliability: 0.25, Security: 0.4}
	}
	return Weights{TimeToMarket: 0.2, Cost: 0.2, Scale: 0.2, Reliability: 0.2, Security: 0.2}
}

// ScoredPattern is a pattern's position in the decision matrix.
type ScoredPattern struct {
	Key         string                `json:"key"`
	Name        string                `json:"name"`
	Score       float64               `json:"score"`
	BaseScore   float64               `json:"base_score"`
	Breakdown   map[Criterion]float64 `json:"breakdown"`
	Adjustments map[string]float64    `json:"adjustments,omitempty"`
	Viable      bool                  `json:"viable"`
}

// Rating describes a score in words.
func (s ScoredPattern) Rating() string {
	switch {
	case s.Score >= ScoreExcellent:
		return "excellent"
	case s.Score >= ScoreGood:
		return "good"
	case s.Score >= MinViableScore:
		return "acceptable"
	}
	return "not recommended"
}

// Strongest returns the criterion contributing most to the base score.
func (s ScoredPattern) Strongest() Criterion {
	return s.extreme(func(a, b float64) bool { return a > b })
}

// Weakest returns the criterion contributing least to the base score.
func (s ScoredPattern) Weakest() Criterion {
	return s.extreme(func(a, b float64) bool { return a < b })
}

func (s ScoredPattern) extreme(better func(a, b float64) bool) Criterion {
	var best Criterion
	for _, c := range Criteria {
		v, ok := s.Breakdown[c]
		if !ok {
			continue
		}
		if best == "" || better(v, s.Breakdown[best]) {
			best = c
		}
	}
	return best
}

// ScorePattern computes the weighted score of p, adjusted by constraints.
func ScorePattern(p Pattern, weights Weights, constraints []Constraint) ScoredPattern {
	sp := ScoredPattern{
		Key:         p.Key,
		Name:        p.Name,
		Breakdown:   make(map[Criterion]float64, len(weights)),
		Adjustments: make(map[string]float64),
	}

	for _, c := range Criteria {
		w, ok := weights[c]
		if !ok {
			continue
		}
		score, ok := p.Scores[c]
		if !ok {
			score = 50
		}
		sp.Breakdown[c] = float64(score) * w
		sp.BaseScore += sp.Breakdown[c]
	}

	total := sp.BaseScore
	for _, con := range constraints {
		impact := constraintImpacts[con.Type][p.Key] * con.Severity.multiplier()
		if impact == 0 {
			continue
		}
		sp.Adjustments[constraintLabel(con)] += impact
		total += impact
	}

	sp.Score = round2(math.Max(0, total))
	sp.BaseScore = round2(sp.BaseScore)
	sp.Viable = sp.Score >= MinViableScore
	return sp
}

func constraintLabel(c Constraint) string {
	desc := c.Description
	if len(desc) > 30 {
		desc = desc[:30]
	}
	return fmt.Sprintf("%s:%s", c.Type, strings.TrimSpace(desc))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Rank scores every catalog pattern, highest first. Ties keep catalog order.
func Rank(weights Weights, constraints []Constraint) []ScoredPattern {
	out := make([]ScoredPattern, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, ScorePattern(p, weights, constraints))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Recommend returns up to n viable patterns, highest first.
func Recommend(weights Weights, constraints []Constraint, n int) []ScoredPattern {
	var viable []ScoredPattern
	for _, sp := range Rank(weights, constraints) {
		if sp.Viable {
			viable = append(viable, sp)
		}
		if len(viable) == n {
			break
		}
	}
	return viable
}
