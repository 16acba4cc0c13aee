package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// DefaultDepth is used when depth is absent, null or not a number
const DefaultDepth = 1

// Depth is the smoke-test truncation limit for harvesting.
// A positive limit truncates; zero or the strings "none"/"null" mean no limit.
type Depth struct {
	limit   int
	set     bool   // A usable value was decoded
	invalid string // Raw value that could not be parsed (defaulted during validation)
}

// NewDepth returns an explicit depth limit
func NewDepth(limit int) Depth { return Depth{limit: limit, set: true} }

// UnlimitedDepth returns a depth that never truncates
func UnlimitedDepth() Depth { return Depth{set: true} }

// Limit returns the truncation limit; <= 0 means unlimited
func (d Depth) Limit() int { return d.limit }

// IsSet reports whether a usable value was configured
func (d Depth) IsSet() bool { return d.set }

// Truncates reports whether n items would be cut by this depth
func (d Depth) Truncates(n int) bool { return d.limit > 0 && n > d.limit }

func (d Depth) String() string {
	if d.limit <= 0 {
		return "unlimited"
	}
	return strconv.Itoa(d.limit)
}

// UnmarshalYAML accepts integers, numeric strings, and "none"/"null" strings
func (d *Depth) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: 'depth' must be an integer or null", utils.ErrConfigValidation)
	}
	switch node.Tag {
	case "!!null":
		*d = Depth{}
		return nil
	case "!!int":
		n, err := strconv.Atoi(node.Value)
		if err != nil {
			*d = Depth{invalid: node.Value}
			return nil
		}
		*d = NewDepth(n)
		return nil
	case "!!str":
		raw := strings.TrimSpace(node.Value)
		switch strings.ToLower(raw) {
		case "none", "null":
			*d = UnlimitedDepth()
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			*d = Depth{invalid: node.Value}
			return nil
		}
		*d = NewDepth(n)
		return nil
	}
	return fmt.Errorf("%w: 'depth' must be an integer or null, got %q", utils.ErrConfigValidation, node.Value)
}

// FlexBool is a boolean that also accepts the strings "true" and "false"
type FlexBool struct {
	Value bool
	Set   bool
}

// Bool returns a set FlexBool
func Bool(v bool) FlexBool { return FlexBool{Value: v, Set: true} }

// UnmarshalYAML accepts YAML booleans and case-insensitive "true"/"false" strings
func (b *FlexBool) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		switch node.Tag {
		case "!!null":
			*b = FlexBool{}
			return nil
		case "!!bool":
			v, err := strconv.ParseBool(node.Value)
			if err == nil {
				*b = Bool(v)
				return nil
			}
		case "!!str":
			switch strings.ToLower(strings.TrimSpace(node.Value)) {
			case "true":
				*b = Bool(true)
				return nil
			case "false":
				*b = Bool(false)
				return nil
			}
		}
	}
	return fmt.Errorf("%w: 'run_pipeline' must be a boolean, got %q", utils.ErrConfigValidation, node.Value)
}
