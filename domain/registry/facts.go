package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AgentFacts is the descriptive document published for an agent. It is
// stored separately from the index record and keyed by Username.
type AgentFacts struct {
	Username      string            `json:"username"`
	AgentName     string            `json:"agent_name"`
	Description   string            `json:"description"`
	Capabilities  FactsCapabilities `json:"capabilities"`
	Skills        []Skill           `json:"skills"`
	Evaluations   Evaluations       `json:"evaluations"`
	Certification Certification     `json:"certification"`
	GeneratedAt   time.Time         `json:"generated_at"`
}

// FactsCapabilities mirrors the interaction capabilities of the record.
type FactsCapabilities struct {
	Modalities []string `json:"modalities"`
	Streaming  bool     `json:"streaming"`
	Batch      bool     `json:"batch"`
}

// Skill describes one capability of the agent.
type Skill struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	InputModes         []string `json:"inputModes"`
	OutputModes        []string `json:"outputModes"`
	SupportedLanguages []string `json:"supportedLanguages"`
	LatencyBudgetMs    int      `json:"latencyBudgetMs"`
	MaxTokens          int      `json:"maxTokens"`
}

// Evaluations holds evaluation results for the agent.
type Evaluations struct {
	PerformanceScore float64 `json:"performanceScore"`
}

// Certification is the declared certification of the agent.
type Certification struct {
	Level  string `json:"level"`
	Issuer string `json:"issuer"`
}

// Username derives the facts key from an agent id: every character outside
// [A-Za-z0-9] becomes an underscore.
func Username(agentID string) string {
	var b strings.Builder
	b.Grow(len(agentID))
	for _, r := range agentID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// GeneratorConfig configures the facts generator.
type GeneratorConfig struct {
	LatencyBudgetMs     int
	MaxTokens           int
	PerformanceScore    float64
	CertificationLevel  string
	CertificationIssuer string
}

// DefaultGeneratorConfig returns the placeholder values used until real
// evaluation data exists.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		LatencyBudgetMs:     2000,
		MaxTokens:           4000,
		PerformanceScore:    0.0,
		CertificationLevel:  "self-declared",
		CertificationIssuer: "agent-registry",
	}
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorConfig replaces the generator defaults.
func WithGeneratorConfig(cfg GeneratorConfig) GeneratorOption {
	return func(g *Generator) {
		g.config = cfg
	}
}

// WithClock sets the time source used for GeneratedAt.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// skillNamespace scopes the name-based skill identifiers.
var skillNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("agent-registry/skills"))

// Generator builds AgentFacts from index records. It has no side effects
// and performs no I/O.
type Generator struct {
	config GeneratorConfig
	now    func() time.Time
}

// NewGenerator creates a facts generator.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		config: DefaultGeneratorConfig(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate builds the facts document for rec. Two calls with the same
// record differ only in GeneratedAt.
func (g *Generator) Generate(rec *AgentRecord) *AgentFacts {
	skills := make([]Skill, 0, len(rec.Capabilities))
	for _, capability := range rec.Capabilities {
		skills = append(skills, Skill{
			ID:                 SkillID(rec.AgentID, capability),
			Name:               capability,
			Description:        fmt.Sprintf("Expert %s capability", strings.ReplaceAll(capability, "_", " ")),
			InputModes:         []string{DefaultModality},
			OutputModes:        []string{DefaultModality},
			SupportedLanguages: append([]string(nil), rec.Languages...),
			LatencyBudgetMs:    g.config.LatencyBudgetMs,
			MaxTokens:          g.config.MaxTokens,
		})
	}

	return &AgentFacts{
		Username:    Username(rec.AgentID),
		AgentName:   rec.AgentID,
		Description: rec.Description,
		Capabilities: FactsCapabilities{
			Modalities: append([]string(nil), rec.Modalities...),
			Streaming:  rec.Streaming,
			Batch:      rec.Batch,
		},
		Skills: skills,
		Evaluations: Evaluations{
			PerformanceScore: g.config.PerformanceScore,
		},
		Certification: Certification{
			Level:  g.config.CertificationLevel,
			Issuer: g.config.CertificationIssuer,
		},
		GeneratedAt: g.now().UTC(),
	}
}

// SkillID returns the stable identifier of a capability of an agent.
func SkillID(agentID, capability string) string {
	return uuid.NewSHA1(skillNamespace, []byte(agentID+"\x00"+capability)).String()
}
