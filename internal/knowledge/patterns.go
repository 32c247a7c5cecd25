// Package knowledge is the built-in architecture knowledge base: a pattern
// catalog, a weighted decision matrix and rule-based conflict detection.
package knowledge

import "strings"

// Criterion is a quality attribute patterns are scored on, 0 to 100.
type Criterion string

const (
	TimeToMarket Criterion = "time_to_market"
	Cost         Criterion = "cost"
	Scale        Criterion = "scale"
	Reliability  Criterion = "reliability"
	Security     Criterion = "security"
)

// Criteria lists every criterion in display order.
var Criteria = []Criterion{TimeToMarket, Cost, Scale, Reliability, Security}

// Pattern describes one architecture pattern.
type Pattern struct {
	Key          string              `json:"key"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	BestFor      []string            `json:"best_for"`
	Pros         []string            `json:"pros"`
	Cons         []string            `json:"cons"`
	Scores       map[Criterion]int   `json:"scores"`
	Technologies map[string][]string `json:"technologies"`
}

var catalog = []Pattern{
	{
		Key:         "monolith",
		Name:        "Monolith",
		Description: "Single deployable unit containing all application logic.",
		BestFor:     []string{"Small to medium applications", "Early-stage startups and MVPs", "Teams under 10 developers", "Simple business domains"},
		Pros:        []string{"Simple development and deployment", "Easy debugging and testing", "Lower operational overhead", "No network latency between components", "Faster time to market"},
		Cons:        []string{"Harder to scale specific components", "Technology lock-in", "Longer build times as the app grows", "Single point of failure", "Team coupling at scale"},
		Scores:      map[Criterion]int{TimeToMarket: 95, Cost: 90, Scale: 30, Reliability: 50, Security: 60},
		Technologies: map[string][]string{
			"backend":    {"Python/Django", "Node.js/Express", "Ruby on Rails", "Laravel"},
			"database":   {"PostgreSQL", "MySQL", "SQLite"},
			"deployment": {"Render", "Heroku", "Railway", "DigitalOcean App Platform"},
		},
	},
	{
		Key:         "modular_monolith",
		Name:        "Modular Monolith",
		Description: "Single deployment with well-defined internal module boundaries.",
		BestFor:     []string{"Medium applications planning for growth", "Teams of 10 to 30 developers", "Complex domains needing structure", "Preparing for future microservices"},
		Pros:        []string{"Simplicity with structure", "Clear module boundaries", "Easier transition to microservices later", "Good for medium-sized teams", "Keeps deployment simple"},
		Cons:        []string{"Requires discipline to maintain boundaries", "Still a single deployment unit", "Can devolve into a regular monolith", "Module coupling can creep in"},
		Scores:      map[Criterion]int{TimeToMarket: 80, Cost: 85, Scale: 50, Reliability: 60, Security: 65},
		Technologies: map[string][]string{
			"backend":    {"Python/FastAPI", "Java/Spring Boot", "C#/.NET", "Go"},
			"database":   {"PostgreSQL", "MySQL"},
			"deployment": {"Render", "AWS ECS", "Google Cloud Run"},
		},
	},
	{
		Key:         "microservices",
		Name:        "Microservices",
		Description: "Distributed system of independently deployable services.",
		BestFor:     []string{"Large-scale applications", "Teams of 30+ developers", "Different scaling needs per component", "Polyglot technology requirements"},
		Pros:        []string{"Independent deployment and scaling", "Technology flexibility per service", "Team autonomy", "Fault isolation", "Smaller services are easier to understand"},
		Cons:        []string{"High operational complexity", "Network latency and failures", "Data consistency challenges", "Requires mature DevOps practices", "Higher infrastructure costs"},
		Scores:      map[Criterion]int{TimeToMarket: 40, Cost: 35, Scale: 95, Reliability: 80, Security: 75},
		Technologies: map[string][]string{
			"backend":    {"Node.js", "Go", "Python/FastAPI", "Java/Spring Boot"},
			"database":   {"PostgreSQL", "MongoDB", "Redis"},
			"messaging":  {"RabbitMQ", "Apache Kafka", "AWS SQS"},
			"deployment": {"Kubernetes", "AWS ECS", "Google GKE"},
		},
	},
	{
		Key:         "serverless",
		Name:        "Serverless",
		Description: "Event-driven functions with auto-scaling and pay-per-use billing.",
		BestFor:     []string{"Variable or unpredictable workloads", "Event-driven applications", "Cost optimization for low traffic", "Quick prototypes and MVPs"},
		Pros:        []string{"Pay only for actual usage", "Auto-scaling out of the box", "No server management", "Great for sporadic workloads", "Fast deployment of functions"},
		Cons:        []string{"Cold start latency", "Vendor lock-in", "Limited execution time", "Complex debugging", "Expensive at high scale"},
		Scores:      map[Criterion]int{TimeToMarket: 85, Cost: 70, Scale: 85, Reliability: 70, Security: 65},
		Technologies: map[string][]string{
			"compute":    {"AWS Lambda", "Google Cloud Functions", "Vercel Functions", "Cloudflare Workers"},
			"database":   {"DynamoDB", "Firestore", "PlanetScale", "Supabase"},
			"deployment": {"Serverless Framework", "SST", "Pulumi"},
		},
	},
	{
		Key:         "event_driven",
		Name:        "Event-Driven Architecture",
		Description: "Loosely coupled services communicating through events.",
		BestFor:     []string{"Real-time processing needs", "Complex workflows", "Audit trail requirements", "Decoupled integrations"},
		Pros:        []string{"High decoupling between services", "Natural audit trail", "Easy to add new consumers", "Resilient to failures", "Supports complex workflows"},
		Cons:        []string{"Eventual consistency complexity", "Debugging distributed flows", "Message ordering challenges", "Requires robust monitoring", "Learning curve"},
		Scores:      map[Criterion]int{TimeToMarket: 50, Cost: 55, Scale: 90, Reliability: 85, Security: 70},
		Technologies: map[string][]string{
			"messaging": {"Apache Kafka", "RabbitMQ", "AWS EventBridge", "Redis Streams"},
			"backend":   {"Node.js", "Python", "Go"},
			"database":  {"PostgreSQL", "MongoDB", "EventStoreDB"},
		},
	},
	{
		Key:         "cqrs",
		Name:        "CQRS (Command Query Responsibility Segregation)",
		Description: "Separate models for reading and writing data.",
		BestFor:     []string{"Domains with different read and write patterns", "High-read applications", "Event sourcing scenarios", "Audit and compliance requirements"},
		Pros:        []string{"Optimized read and write models", "Better performance for read-heavy apps", "Natural fit for event sourcing", "Sides scale independently", "Clear separation of concerns"},
		Cons:        []string{"Increased complexity", "Eventual consistency", "More code to maintain", "Steeper learning curve", "Overkill for simple apps"},
		Scores:      map[Criterion]int{TimeToMarket: 35, Cost: 45, Scale: 85, Reliability: 80, Security: 80},
		Technologies: map[string][]string{
			"backend":        {"C#/.NET", "Java/Axon", "Python/eventsourcing"},
			"write_database": {"PostgreSQL", "EventStoreDB"},
			"read_database":  {"Elasticsearch", "Redis", "MongoDB"},
		},
	},
}

// Patterns returns the catalog in its canonical order.
func Patterns() []Pattern {
	out := make([]Pattern, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a pattern by key or display name, case-insensitively.
func Lookup(name string) (Pattern, bool) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	for _, p := range catalog {
		if p.Key == key || strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Pattern{}, false
}
