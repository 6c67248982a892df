package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Redacted replaces sensitive values in diagnostics output.
const Redacted = "**REDACTED**"

// Keys whose values never leave the process through diagnostics,
// regardless of nesting depth. Covers credentials plus everything that
// identifies the installation or its location.
var redactedKeys = map[string]struct{}{
	"access_token":  {},
	"refresh_token": {},
	"client_id":     {},
	"client_secret": {},
	"api_key":       {},
	"mac_address":   {},
	"serial_number": {},
	"station_name":  {},
	"pseudo":        {},
	"city":          {},
	"country":       {},
	"region":        {},
	"address":       {},
	"location":      {},
	"lat":           {},
	"lon":           {},
	"id":            {},
	"home_id":       {},
	"home_name":     {},
	"persons":       {},
	"email":         {},
}

// Redact walks a decoded JSON document and replaces the value of every
// sensitive key at any depth.
func Redact(doc any) any {
	switch v := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if _, hit := redactedKeys[strings.ToLower(key)]; hit {
				out[key] = Redacted
				continue
			}
			out[key] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = Redact(val)
		}
		return out
	default:
		return doc
	}
}

// redactValue round-trips v through JSON so Redact can walk it as a plain
// document.
func redactValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding diagnostics: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding diagnostics: %w", err)
	}
	return Redact(doc), nil
}

// Diagnostics assembles a redacted support dump: the given configuration
// view, per-home polling health and the raw snapshots. Safe to attach to
// a public issue.
func (b *Bridge) Diagnostics(config map[string]any) (map[string]any, error) {
	out := map[string]any{
		"client_consecutive_failures": b.api.ConsecutiveFailures(),
	}

	if config != nil {
		redacted, err := redactValue(config)
		if err != nil {
			return nil, err
		}
		out["config"] = redacted
	}

	homes := make(map[string]any)
	b.mu.RLock()
	order := append([]string(nil), b.order...)
	b.mu.RUnlock()

	for _, id := range order {
		coord, err := b.Coordinator(id)
		if err != nil {
			continue
		}
		entry := map[string]any{
			"consecutive_failures": coord.ConsecutiveFailures(),
			"interval_seconds":     coord.Interval().Seconds(),
			"push_active":          coord.PushActive(),
			"stale":                coord.IsDataStale(0),
		}
		if snap := coord.Snapshot(); snap != nil {
			redacted, err := redactValue(snap)
			if err != nil {
				return nil, err
			}
			entry["snapshot"] = redacted
		}
		homes[id] = entry
	}
	out["homes"] = homes

	return out, nil
}
