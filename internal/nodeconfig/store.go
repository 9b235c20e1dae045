package nodeconfig

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// Store validates, decodes and merges node configurations.
// It holds no per-node state and is safe for concurrent use.
type Store struct {
	strict bool
}

// Option configures a Store.
type Option func(*Store)

// WithStrictAgentTypes makes unknown agent types an error instead of
// falling back to the social-shaped configuration.
func WithStrictAgentTypes(strict bool) Option {
	return func(s *Store) {
		s.strict = strict
	}
}

// NewStore creates a configuration store.
func NewStore(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Strict reports whether unknown agent types are rejected.
func (s *Store) Strict() bool { return s.strict }

// resolve maps an agent type to the schema used for it.
func (s *Store) resolve(t core.AgentType) (Schema, error) {
	if schema, ok := schemas[t]; ok {
		return schema, nil
	}
	if s.strict {
		return Schema{}, core.NewInvalidConfigurationError(t, []core.FieldError{
			{Field: "agent_type", Problem: core.FieldInvalidValue, Expected: "a known agent type"},
		})
	}
	return schemas[core.AgentSocial], nil
}

// Default returns a fresh default configuration for an agent type.
func (s *Store) Default(t core.AgentType) (core.Configuration, error) {
	schema, err := s.resolve(t)
	if err != nil {
		return nil, err
	}
	return defaultFor(schema.AgentType), nil
}

func defaultFor(t core.AgentType) core.Configuration {
	switch t {
	case core.AgentStrategy:
		return &core.StrategyConfig{
			Objective:      "Grow brand awareness",
			TargetAudience: "General audience",
			Timeframe:      "Q1",
			Channels:       []string{"social", "email"},
		}
	case core.AgentCreative:
		return &core.CreativeConfig{
			Style:       "modern",
			Format:      "image",
			BrandColors: []string{},
			Variations:  3,
		}
	case core.AgentCopywriting:
		return &core.CopywritingConfig{
			Mode:           "short_form",
			Tone:           "professional",
			TargetAudience: "General audience",
			WordCount:      300,
		}
	case core.AgentSEO:
		return &core.SEOConfig{
			Keywords:          []string{},
			TargetAudience:    "General audience",
			ContentType:       "blog",
			OptimizationLevel: "standard",
		}
	case core.AgentEmail:
		return &core.EmailConfig{
			CampaignType:    "newsletter",
			AudienceSegment: "all_subscribers",
			SendFrequency:   "weekly",
			Personalization: true,
		}
	case core.AgentAnalytics:
		return &core.AnalyticsConfig{
			Metrics:         []string{"engagement", "conversions"},
			ReportingPeriod: "weekly",
			DataSources:     []string{},
		}
	case core.AgentAds:
		return &core.AdsConfig{
			Platforms:      []string{"google"},
			Budget:         1000,
			BidStrategy:    "maximize_clicks",
			TargetAudience: "General audience",
		}
	default:
		return &core.SocialConfig{
			Platforms:        []string{"instagram", "linkedin"},
			PostingFrequency: "daily",
			ContentMix:       []string{"educational", "promotional"},
		}
	}
}

// Validate checks a raw parameter bag against the agent type's schema and
// reports every offending field in a single InvalidConfiguration error.
func (s *Store) Validate(t core.AgentType, bag map[string]interface{}) error {
	schema, err := s.resolve(t)
	if err != nil {
		return err
	}
	if problems := schema.check(bag); len(problems) > 0 {
		return core.NewInvalidConfigurationError(t, problems)
	}
	return nil
}

// Decode validates bag and converts it into the typed configuration.
func (s *Store) Decode(t core.AgentType, bag map[string]interface{}) (core.Configuration, error) {
	schema, err := s.resolve(t)
	if err != nil {
		return nil, err
	}
	if problems := schema.check(bag); len(problems) > 0 {
		return nil, core.NewInvalidConfigurationError(t, problems)
	}

	target := emptyFor(schema.AgentType)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      target,
		TagName:     "mapstructure",
		ErrorUnused: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	if err := decoder.Decode(schema.normalize(bag)); err != nil {
		return nil, core.ErrValidation(core.CodeInvalidConfiguration, err.Error()).WithCause(err)
	}
	return target, nil
}

func emptyFor(t core.AgentType) core.Configuration {
	switch t {
	case core.AgentStrategy:
		return &core.StrategyConfig{}
	case core.AgentCreative:
		return &core.CreativeConfig{}
	case core.AgentCopywriting:
		return &core.CopywritingConfig{}
	case core.AgentSEO:
		return &core.SEOConfig{}
	case core.AgentEmail:
		return &core.EmailConfig{}
	case core.AgentAnalytics:
		return &core.AnalyticsConfig{}
	case core.AgentAds:
		return &core.AdsConfig{}
	default:
		return &core.SocialConfig{}
	}
}

// ToMap converts a typed configuration into its raw bag form.
// A nil configuration yields an empty bag.
func ToMap(cfg core.Configuration) map[string]interface{} {
	out := make(map[string]interface{})
	if cfg == nil {
		return out
	}
	// Decoding a struct into a map cannot fail for these flat types.
	_ = mapstructure.Decode(cfg.Clone(), &out)
	return out
}

// Merge returns the default bag for t overlaid with overrides.
// The result is validated and decoded.
func (s *Store) Merge(t core.AgentType, overrides map[string]interface{}) (core.Configuration, error) {
	base, err := s.Default(t)
	if err != nil {
		return nil, err
	}
	return s.Decode(t, mergeBags(ToMap(base), overrides))
}

// ApplyUpdate merges partial over the node's current configuration and
// returns an updated copy. The input node is never modified. A nil value in
// partial removes that key before validation.
func (s *Store) ApplyUpdate(node *core.Node, partial map[string]interface{}) (*core.Node, error) {
	if node == nil {
		return nil, core.ErrValidation(core.CodeInvalidNode, "node cannot be nil")
	}

	current := node.Configuration
	if current == nil {
		def, err := s.Default(node.AgentType)
		if err != nil {
			return nil, err
		}
		current = def
	}

	cfg, err := s.Decode(node.AgentType, mergeBags(ToMap(current), partial))
	if err != nil {
		return nil, err
	}

	updated := node.Clone()
	updated.Configuration = cfg
	return updated, nil
}

// ApplyToGraph applies a partial update to one node of g atomically.
func (s *Store) ApplyToGraph(g *core.Graph, id core.NodeID, partial map[string]interface{}) (*core.Node, error) {
	return g.UpdateNode(id, func(n *core.Node) (*core.Node, error) {
		return s.ApplyUpdate(n, partial)
	})
}

func mergeBags(base, overrides map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged
}
