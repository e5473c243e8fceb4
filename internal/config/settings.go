package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Config files are decoded by viper into loosely typed maps. The helpers below
// turn those values into Config fields; a blank string means "unset" and
// yields the zero value.

func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		for _, k := range []string{key, strings.ToLower(key)} {
			if val, ok := settings[k]; ok {
				return val, true
			}
		}
	}
	return nil, false
}

func blank(value interface{}) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

func asString(value interface{}) (string, error) {
	if b, ok := value.([]byte); ok {
		return string(b), nil
	}
	if value == nil {
		return "", nil
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return fmt.Sprint(value), nil
	}
	return s, nil
}

func asInt(value interface{}) (int, error) {
	if blank(value) {
		return 0, nil
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	n, err := cast.ToIntE(value)
	if err != nil {
		return 0, fmt.Errorf("expected a whole number, got %v", value)
	}
	return n, nil
}

func asFloat64(value interface{}) (float64, error) {
	if blank(value) {
		return 0, nil
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("expected a number, got %v", value)
	}
	return f, nil
}

func asBool(value interface{}) (bool, error) {
	if blank(value) {
		return false, nil
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := cast.ToBoolE(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("expected true or false, got %q", v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("expected true or false, got %T", value)
	}
}

// asDuration accepts Go duration strings ("250ms", "1m"). Bare numbers are
// seconds, so "min_delay: 0.5" in YAML means half a second.
func asDuration(value interface{}) (time.Duration, error) {
	if blank(value) {
		return 0, nil
	}
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case string:
		return time.ParseDuration(strings.TrimSpace(v))
	}
	secs, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("expected a duration, got %T", value)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// toStringKeyMap normalises a nested config section so lookups can use
// lower-case keys.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	m, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, fmt.Errorf("expected a section, got %T", value)
	}
	result := make(map[string]interface{}, len(m))
	for key, val := range m {
		result[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return result, nil
}
