// Package nodeconfig validates and manages per-node agent configuration.
package nodeconfig

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// Kind is the primitive shape expected for a configuration field.
type Kind int

const (
	KindString Kind = iota
	KindStringList
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindStringList:
		return "list of strings"
	case KindInt:
		return "integer"
	case KindFloat:
		return "number"
	case KindBool:
		return "boolean"
	default:
		return "unknown"
	}
}

// Field describes one configuration field.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Enum     []string // allowed values for KindString fields
	Min      *float64 // lower bound for numeric fields
}

// Schema is the closed field set of one agent type.
type Schema struct {
	AgentType core.AgentType
	Fields    []Field
}

func minOf(v float64) *float64 { return &v }

var (
	optimizationLevels = []string{"basic", "standard", "aggressive"}
	postingFrequencies = []string{"daily", "weekly", "biweekly", "monthly"}
	copyModes          = []string{"long_form", "short_form", "headline"}
	copyTones          = []string{"professional", "casual", "playful", "authoritative"}
	bidStrategies      = []string{"manual", "maximize_clicks", "target_cpa", "target_roas"}
)

var schemas = map[core.AgentType]Schema{
	core.AgentStrategy: {AgentType: core.AgentStrategy, Fields: []Field{
		{Name: "objective", Kind: KindString, Required: true},
		{Name: "target_audience", Kind: KindString, Required: true},
		{Name: "timeframe", Kind: KindString, Required: true},
		{Name: "channels", Kind: KindStringList, Required: true},
	}},
	core.AgentCreative: {AgentType: core.AgentCreative, Fields: []Field{
		{Name: "style", Kind: KindString, Required: true},
		{Name: "format", Kind: KindString, Required: true},
		{Name: "brand_colors", Kind: KindStringList},
		{Name: "variations", Kind: KindInt, Required: true, Min: minOf(1)},
	}},
	core.AgentCopywriting: {AgentType: core.AgentCopywriting, Fields: []Field{
		{Name: "mode", Kind: KindString, Required: true, Enum: copyModes},
		{Name: "tone", Kind: KindString, Required: true, Enum: copyTones},
		{Name: "target_audience", Kind: KindString, Required: true},
		{Name: "word_count", Kind: KindInt, Required: true, Min: minOf(0)},
	}},
	core.AgentSEO: {AgentType: core.AgentSEO, Fields: []Field{
		{Name: "keywords", Kind: KindStringList, Required: true},
		{Name: "target_audience", Kind: KindString, Required: true},
		{Name: "content_type", Kind: KindString, Required: true},
		{Name: "optimization_level", Kind: KindString, Required: true, Enum: optimizationLevels},
	}},
	core.AgentSocial: {AgentType: core.AgentSocial, Fields: []Field{
		{Name: "platforms", Kind: KindStringList, Required: true},
		{Name: "posting_frequency", Kind: KindString, Required: true, Enum: postingFrequencies},
		{Name: "content_mix", Kind: KindStringList, Required: true},
	}},
	core.AgentEmail: {AgentType: core.AgentEmail, Fields: []Field{
		{Name: "campaign_type", Kind: KindString, Required: true},
		{Name: "audience_segment", Kind: KindString, Required: true},
		{Name: "send_frequency", Kind: KindString, Required: true},
		{Name: "personalization", Kind: KindBool},
	}},
	core.AgentAnalytics: {AgentType: core.AgentAnalytics, Fields: []Field{
		{Name: "metrics", Kind: KindStringList, Required: true},
		{Name: "reporting_period", Kind: KindString, Required: true},
		{Name: "data_sources", Kind: KindStringList},
	}},
	core.AgentAds: {AgentType: core.AgentAds, Fields: []Field{
		{Name: "platforms", Kind: KindStringList, Required: true},
		{Name: "budget", Kind: KindFloat, Required: true, Min: minOf(0)},
		{Name: "bid_strategy", Kind: KindString, Required: true, Enum: bidStrategies},
		{Name: "target_audience", Kind: KindString, Required: true},
	}},
}

// SchemaFor returns the schema of a known agent type.
func SchemaFor(t core.AgentType) (Schema, bool) {
	s, ok := schemas[t]
	if !ok {
		return Schema{}, false
	}
	fields := make([]Field, len(s.Fields))
	copy(fields, s.Fields)
	return Schema{AgentType: s.AgentType, Fields: fields}, true
}

func (s Schema) field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// check validates bag against the schema and returns every problem found.
func (s Schema) check(bag map[string]interface{}) []core.FieldError {
	var problems []core.FieldError

	for _, f := range s.Fields {
		v, present := bag[f.Name]
		if !present || v == nil {
			if f.Required {
				problems = append(problems, core.FieldError{Field: f.Name, Problem: core.FieldMissing, Expected: f.Kind.String()})
			}
			continue
		}
		if p, ok := f.checkValue(v); !ok {
			problems = append(problems, p)
		}
	}

	unknown := make([]string, 0)
	for key := range bag {
		if _, ok := s.field(key); !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		problems = append(problems, core.FieldError{Field: key, Problem: core.FieldUnknown})
	}
	return problems
}

// maxExactInt bounds integer fields to values that survive the float64
// round trip of JSON numbers and fit in int on every platform.
const maxExactInt = float64(min(1<<53, math.MaxInt))

func (f Field) checkValue(v interface{}) (core.FieldError, bool) {
	mistyped := core.FieldError{Field: f.Name, Problem: core.FieldMistyped, Expected: f.Kind.String()}

	switch f.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return mistyped, false
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			return core.FieldError{Field: f.Name, Problem: core.FieldInvalidValue, Expected: "one of " + strings.Join(f.Enum, "|")}, false
		}
	case KindStringList:
		if _, ok := toStringList(v); !ok {
			return mistyped, false
		}
	case KindInt:
		n, ok := toFloat(v)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return mistyped, false
		}
		if n < -maxExactInt || n > maxExactInt {
			return core.FieldError{Field: f.Name, Problem: core.FieldInvalidValue, Expected: fmt.Sprintf("within ±%g", maxExactInt)}, false
		}
		if f.Min != nil && n < *f.Min {
			return core.FieldError{Field: f.Name, Problem: core.FieldInvalidValue, Expected: fmt.Sprintf(">= %g", *f.Min)}, false
		}
	case KindFloat:
		n, ok := toFloat(v)
		if !ok {
			return mistyped, false
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return core.FieldError{Field: f.Name, Problem: core.FieldInvalidValue, Expected: "a finite number"}, false
		}
		if f.Min != nil && n < *f.Min {
			return core.FieldError{Field: f.Name, Problem: core.FieldInvalidValue, Expected: fmt.Sprintf(">= %g", *f.Min)}, false
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return mistyped, false
		}
	}
	return core.FieldError{}, true
}

// normalize converts JSON/YAML-decoded values into the field's Go kind.
// It assumes check has already passed.
func (s Schema) normalize(bag map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(bag))
	for key, v := range bag {
		f, ok := s.field(key)
		if !ok || v == nil {
			continue
		}
		switch f.Kind {
		case KindStringList:
			list, _ := toStringList(v)
			out[key] = list
		case KindInt:
			n, _ := toFloat(v)
			out[key] = int(n)
		case KindFloat:
			n, _ := toFloat(v)
			out[key] = n
		default:
			out[key] = v
		}
	}
	return out
}

func toStringList(v interface{}) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out, true
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
