package tools

import (
	"fmt"
	"net/mail"
	"time"
)

// requireString extracts a required non-empty string argument.
func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return val, nil
}

// optString extracts an optional string argument with a default.
func optString(args map[string]interface{}, key, def string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return def
}

// optBool extracts an optional boolean argument with a default.
func optBool(args map[string]interface{}, key string, def bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return def
}

// optInt extracts an optional numeric argument with a default.
// JSON numbers arrive as float64.
func optInt(args map[string]interface{}, key string, def int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	return def
}

// optTime extracts an optional RFC 3339 timestamp argument.
func optTime(args map[string]interface{}, key string) (*time.Time, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format: %v (use RFC 3339 like '2026-01-15T14:30:00Z')", key, err)
	}
	return &t, nil
}

// parseAddressList extracts a string or array argument into a validated
// email address list. A missing value yields nil without error.
func parseAddressList(args map[string]interface{}, key string) ([]string, error) {
	val, ok := args[key]
	if !ok || val == nil {
		return nil, nil
	}

	var raw []string
	switch v := val.(type) {
	case string:
		if v != "" {
			raw = []string{v}
		}
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok && str != "" {
				raw = append(raw, str)
			}
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", key)
	}

	for _, addr := range raw {
		if _, err := mail.ParseAddress(addr); err != nil {
			return nil, fmt.Errorf("invalid %s email address '%s': %v", key, addr, err)
		}
	}
	return raw, nil
}

// requireAddressList is like parseAddressList but rejects an empty result.
func requireAddressList(args map[string]interface{}, key string) ([]string, error) {
	addrs, err := parseAddressList(args, key)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%s is required", key)
	}
	return addrs, nil
}
