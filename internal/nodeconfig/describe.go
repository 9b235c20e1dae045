package nodeconfig

import (
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// Describe renders a one-line summary of a configuration.
// It panics on a configuration type it does not know.
func Describe(cfg core.Configuration) string {
	switch c := cfg.(type) {
	case *core.StrategyConfig:
		return fmt.Sprintf("objective %q for %s over %s via %s",
			c.Objective, c.TargetAudience, c.Timeframe, list(c.Channels))
	case *core.CreativeConfig:
		s := fmt.Sprintf("%d %s %s variation(s)", c.Variations, c.Style, c.Format)
		if len(c.BrandColors) > 0 {
			s += " in " + list(c.BrandColors)
		}
		return s
	case *core.CopywritingConfig:
		return fmt.Sprintf("%s %s copy for %s, about %d words",
			c.Tone, strings.ReplaceAll(c.Mode, "_", " "), c.TargetAudience, c.WordCount)
	case *core.SEOConfig:
		return fmt.Sprintf("%s optimization of %s for %s, keywords %s",
			c.OptimizationLevel, c.ContentType, c.TargetAudience, list(c.Keywords))
	case *core.SocialConfig:
		return fmt.Sprintf("%s posts on %s mixing %s",
			c.PostingFrequency, list(c.Platforms), list(c.ContentMix))
	case *core.EmailConfig:
		s := fmt.Sprintf("%s %s campaign to %s", c.SendFrequency, c.CampaignType, c.AudienceSegment)
		if c.Personalization {
			s += ", personalized"
		}
		return s
	case *core.AnalyticsConfig:
		s := fmt.Sprintf("%s report on %s", c.ReportingPeriod, list(c.Metrics))
		if len(c.DataSources) > 0 {
			s += " from " + list(c.DataSources)
		}
		return s
	case *core.AdsConfig:
		return fmt.Sprintf("%s ads on %s for %s, budget %.2f",
			strings.ReplaceAll(c.BidStrategy, "_", " "), list(c.Platforms), c.TargetAudience, c.Budget)
	default:
		panic(fmt.Sprintf("nodeconfig: unknown configuration type %T", cfg))
	}
}

func list(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
