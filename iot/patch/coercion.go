package patch

import (
	"bytes"
	"strings"

	"github.com/goccy/go-json"
)

// Target is the type a property value is coerced to
type Target int

const (
	// TargetPassThrough keeps the value as it is
	TargetPassThrough Target = iota
	// TargetBoolean writes boolean-like values as 1 or 0
	TargetBoolean
)

func (t Target) String() string {
	switch t {
	case TargetBoolean:
		return "boolean"
	default:
		return "passthrough"
	}
}

// CoercionRule selects the target type for every flattened key containing Pattern
type CoercionRule struct {
	Pattern string
	Target  Target
}

// Downstream consumers of the time series store read these properties as 0 and 1.
var coercionRules = []CoercionRule{
	{Pattern: "State", Target: TargetBoolean},
	{Pattern: "IsOccupied", Target: TargetBoolean},
}

// CoercionRules returns a copy of the rule table
func CoercionRules() []CoercionRule {
	rules := make([]CoercionRule, len(coercionRules))
	copy(rules, coercionRules)
	return rules
}

// TargetFor returns the target type for a flattened key. The first matching rule wins.
func TargetFor(key string) Target {
	for _, rule := range coercionRules {
		if strings.Contains(key, rule.Pattern) {
			return rule.Target
		}
	}
	return TargetPassThrough
}

var (
	jsonTrue  = []byte("true")
	jsonFalse = []byte("false")
)

// parseBoolean accepts a JSON boolean or a JSON string holding "true" or "false" in any case,
// surrounded by optional white space
func parseBoolean(value json.RawMessage) (bool, bool) {
	v := bytes.TrimSpace(value)
	switch {
	case bytes.Equal(v, jsonTrue):
		return true, true
	case bytes.Equal(v, jsonFalse):
		return false, true
	}
	if len(v) == 0 || v[0] != '"' {
		return false, false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return false, false
	}
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	}
	return false, false
}

func coerce(key string, value json.RawMessage) (any, bool) {
	switch TargetFor(key) {
	case TargetBoolean:
		b, ok := parseBoolean(value)
		if !ok {
			return nil, false
		}
		if b {
			return 1, true
		}
		return 0, true
	default:
		return value, true
	}
}
