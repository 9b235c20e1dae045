package core

// Configuration is the capability-specific parameter set of a node.
// It is a closed union: only the types in this file implement it.
type Configuration interface {
	AgentType() AgentType
	Clone() Configuration
	isConfiguration()
}

// StrategyConfig configures a strategy agent.
type StrategyConfig struct {
	Objective      string   `json:"objective" mapstructure:"objective"`
	TargetAudience string   `json:"target_audience" mapstructure:"target_audience"`
	Timeframe      string   `json:"timeframe" mapstructure:"timeframe"`
	Channels       []string `json:"channels" mapstructure:"channels"`
}

// CreativeConfig configures a creative (visual) agent.
type CreativeConfig struct {
	Style       string   `json:"style" mapstructure:"style"`
	Format      string   `json:"format" mapstructure:"format"`
	BrandColors []string `json:"brand_colors" mapstructure:"brand_colors"`
	Variations  int      `json:"variations" mapstructure:"variations"`
}

// CopywritingConfig configures a copywriting agent.
type CopywritingConfig struct {
	Mode           string `json:"mode" mapstructure:"mode"`
	Tone           string `json:"tone" mapstructure:"tone"`
	TargetAudience string `json:"target_audience" mapstructure:"target_audience"`
	WordCount      int    `json:"word_count" mapstructure:"word_count"`
}

// SEOConfig configures an SEO agent.
type SEOConfig struct {
	Keywords          []string `json:"keywords" mapstructure:"keywords"`
	TargetAudience    string   `json:"target_audience" mapstructure:"target_audience"`
	ContentType       string   `json:"content_type" mapstructure:"content_type"`
	OptimizationLevel string   `json:"optimization_level" mapstructure:"optimization_level"`
}

// SocialConfig configures a social media agent.
type SocialConfig struct {
	Platforms        []string `json:"platforms" mapstructure:"platforms"`
	PostingFrequency string   `json:"posting_frequency" mapstructure:"posting_frequency"`
	ContentMix       []string `json:"content_mix" mapstructure:"content_mix"`
}

// EmailConfig configures an email marketing agent.
type EmailConfig struct {
	CampaignType    string `json:"campaign_type" mapstructure:"campaign_type"`
	AudienceSegment string `json:"audience_segment" mapstructure:"audience_segment"`
	SendFrequency   string `json:"send_frequency" mapstructure:"send_frequency"`
	Personalization bool   `json:"personalization" mapstructure:"personalization"`
}

// AnalyticsConfig configures an analytics agent.
type AnalyticsConfig struct {
	Metrics         []string `json:"metrics" mapstructure:"metrics"`
	ReportingPeriod string   `json:"reporting_period" mapstructure:"reporting_period"`
	DataSources     []string `json:"data_sources" mapstructure:"data_sources"`
}

// AdsConfig configures a paid advertising agent.
type AdsConfig struct {
	Platforms      []string `json:"platforms" mapstructure:"platforms"`
	Budget         float64  `json:"budget" mapstructure:"budget"`
	BidStrategy    string   `json:"bid_strategy" mapstructure:"bid_strategy"`
	TargetAudience string   `json:"target_audience" mapstructure:"target_audience"`
}

func (*StrategyConfig) AgentType() AgentType    { return AgentStrategy }
func (*CreativeConfig) AgentType() AgentType    { return AgentCreative }
func (*CopywritingConfig) AgentType() AgentType { return AgentCopywriting }
func (*SEOConfig) AgentType() AgentType         { return AgentSEO }
func (*SocialConfig) AgentType() AgentType      { return AgentSocial }
func (*EmailConfig) AgentType() AgentType       { return AgentEmail }
func (*AnalyticsConfig) AgentType() AgentType   { return AgentAnalytics }
func (*AdsConfig) AgentType() AgentType         { return AgentAds }

func (*StrategyConfig) isConfiguration()    {}
func (*CreativeConfig) isConfiguration()    {}
func (*CopywritingConfig) isConfiguration() {}
func (*SEOConfig) isConfiguration()         {}
func (*SocialConfig) isConfiguration()      {}
func (*EmailConfig) isConfiguration()       {}
func (*AnalyticsConfig) isConfiguration()   {}
func (*AdsConfig) isConfiguration()         {}

func (c *StrategyConfig) Clone() Configuration {
	cp := *c
	cp.Channels = cloneStrings(c.Channels)
	return &cp
}

func (c *CreativeConfig) Clone() Configuration {
	cp := *c
	cp.BrandColors = cloneStrings(c.BrandColors)
	return &cp
}

func (c *CopywritingConfig) Clone() Configuration {
	cp := *c
	return &cp
}

func (c *SEOConfig) Clone() Configuration {
	cp := *c
	cp.Keywords = cloneStrings(c.Keywords)
	return &cp
}

func (c *SocialConfig) Clone() Configuration {
	cp := *c
	cp.Platforms = cloneStrings(c.Platforms)
	cp.ContentMix = cloneStrings(c.ContentMix)
	return &cp
}

func (c *EmailConfig) Clone() Configuration {
	cp := *c
	return &cp
}

func (c *AnalyticsConfig) Clone() Configuration {
	cp := *c
	cp.Metrics = cloneStrings(c.Metrics)
	cp.DataSources = cloneStrings(c.DataSources)
	return &cp
}

func (c *AdsConfig) Clone() Configuration {
	cp := *c
	cp.Platforms = cloneStrings(c.Platforms)
	return &cp
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
