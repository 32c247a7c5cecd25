package plan

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed templates/architecture.yaml
var defaultTemplate []byte

// Template describes the nodes a run starts with.
type Template struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description,omitempty"`
	Nodes       []TemplateNode `yaml:"nodes" json:"nodes"`
}

// TemplateNode is the YAML (or JSON) form of a plan node.
type TemplateNode struct {
	ID          string   `yaml:"id" json:"id"`
	Kind        Kind     `yaml:"kind" json:"kind"`
	Title       string   `yaml:"title" json:"title"`
	Instruction string   `yaml:"instruction" json:"instruction,omitempty"`
	DependsOn   []string `yaml:"depends_on" json:"depends_on,omitempty"`
	Hints       []Hint   `yaml:"hints" json:"hints,omitempty"`
}

// DefaultTemplate returns the built-in architecture plan.
func DefaultTemplate() (*Template, error) {
	return ParseTemplate(defaultTemplate)
}

// LoadTemplate reads a plan template from a YAML file. An empty path selects
// the built-in template.
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return DefaultTemplate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan template: %w", err)
	}
	tmpl, err := ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("plan template %s: %w", path, err)
	}
	return tmpl, nil
}

// ParseTemplate decodes and validates a YAML plan template.
func ParseTemplate(data []byte) (*Template, error) {
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parse plan template: %w", err)
	}
	if len(tmpl.Nodes) == 0 {
		return nil, &ValidationError{Reason: "template has no nodes"}
	}
	// Building once validates ids, kinds and acyclicity
	if _, err := tmpl.Build(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// Build creates a fresh graph with every template node pending.
func (t *Template) Build() (*Graph, error) {
	nodes := make([]Node, 0, len(t.Nodes))
	for _, tn := range t.Nodes {
		nodes = append(nodes, Node{
			ID:          tn.ID,
			Kind:        tn.Kind,
			Title:       tn.Title,
			Instruction: tn.Instruction,
			DependsOn:   tn.DependsOn,
			Hints:       tn.Hints,
			Status:      StatusPending,
		})
	}
	return FromNodes(nodes)
}
