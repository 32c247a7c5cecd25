package plan

// Payload shapes committed by resolved nodes, one per Kind.

// DecisionPayload is the payload of a KindDecision node.
type DecisionPayload struct {
	Title        string   `json:"title"`
	Decision     string   `json:"decision"`
	Rationale    string   `json:"rationale,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Consequences []string `json:"consequences,omitempty"`
}

// ComponentSpec describes one component of a KindComponent payload.
type ComponentSpec struct {
	Name           string   `json:"name"`
	Responsibility string   `json:"responsibility"`
	Technologies   []string `json:"technologies,omitempty"`
	DependsOn      []string `json:"depends_on,omitempty"`
}

// ComponentPayload is the payload of a KindComponent node.
type ComponentPayload struct {
	Components []ComponentSpec `json:"components"`
}

// InterfaceSpec describes one interface of a KindInterface payload.
type InterfaceSpec struct {
	Name       string   `json:"name"`
	Protocol   string   `json:"protocol"`
	Provider   string   `json:"provider,omitempty"`
	Consumers  []string `json:"consumers,omitempty"`
	Operations []string `json:"operations"`
}

// InterfacePayload is the payload of a KindInterface node.
type InterfacePayload struct {
	Interfaces []InterfaceSpec `json:"interfaces"`
}
