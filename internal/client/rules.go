package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/eventdesk/checkpoint/internal/checkin"
	"github.com/eventdesk/checkpoint/internal/models"
)

// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — being liberal in what we accept
// ────────────────────────────────────────────────────────────────────
// Rule payloads are decoded loosely: the list may be a bare array or sit
// under "rules", "data" or "items", and each field is coerced rather than
// rejected ("60" becomes 60, a missing requirement becomes OPTIONAL).
// The console should still open an event whose rules were written by an
// older tool. What we SEND is always the strict shape.

// LoadRules returns the event's stored rule set. It satisfies
// console.RuleStore.
func (c *Client) LoadRules(ctx context.Context, eventID string) ([]checkin.Rule, error) {
	raw, err := c.send(ctx, http.MethodGet, rulesPath(eventID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeRules(raw)
}

// SaveRules replaces the event's rule set and returns the set the server
// stored. It satisfies console.RuleStore.
func (c *Client) SaveRules(ctx context.Context, eventID string, rules []checkin.Rule) ([]checkin.Rule, error) {
	clean := make([]checkin.Rule, len(rules))
	for i, r := range rules {
		clean[i] = sanitizeRule(r)
	}
	raw, err := c.send(ctx, http.MethodPut, rulesPath(eventID), nil, models.RulesRequest{Rules: clean})
	if err != nil {
		return nil, err
	}
	return decodeRules(raw)
}

// ValidateRules asks the server to run the consistency validator.
func (c *Client) ValidateRules(ctx context.Context, rules []checkin.Rule) (models.ValidateRulesResponse, error) {
	var out models.ValidateRulesResponse
	err := c.do(ctx, http.MethodPost, "/checkin-rules/validate", nil, models.RulesRequest{Rules: rules}, &out)
	return out, err
}

func rulesPath(eventID string) string {
	return "/events/" + url.PathEscape(eventID) + "/checkin-rules"
}

func sanitizeRule(r checkin.Rule) checkin.Rule {
	r.Name = strings.TrimSpace(r.Name)
	if r.Requirement != checkin.Mandatory {
		r.Requirement = checkin.Optional
	}
	return r
}

func decodeRules(raw json.RawMessage) ([]checkin.Rule, error) {
	items, err := decodeList[map[string]any](raw, "rules", "data", "items")
	if err != nil {
		return nil, err
	}
	rules := make([]checkin.Rule, 0, len(items))
	for _, m := range items {
		rules = append(rules, sanitizeRule(checkin.Rule{
			ID:                 asString(m["id"]),
			Name:               asString(m["name"]),
			Active:             asBool(m["active"]),
			Requirement:        checkin.Requirement(strings.ToUpper(asString(m["requirement"]))),
			OpensMinutesBefore: asInt(m["opens_minutes_before"]),
			ClosesMinutesAfter: asInt(m["closes_minutes_after"]),
		}))
	}
	return rules, nil
}

// decodeList accepts either a JSON array or an object holding the array
// under one of keys. Anything else decodes to an empty list.
func decodeList[T any](raw json.RawMessage, keys ...string) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var out []T
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return out, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		for _, k := range keys {
			v, ok := obj[k]
			if !ok || !bytes.HasPrefix(bytes.TrimSpace(v), []byte("[")) {
				continue
			}
			var out []T
			if err := json.Unmarshal(v, &out); err != nil {
				return nil, fmt.Errorf("decode %s: %w", k, err)
			}
			return out, nil
		}
	}
	return []T{}, nil
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// asBool follows JSON truthiness: false, 0, "" and null are false.
func asBool(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	default:
		return true
	}
}

// asInt accepts numbers and numeric strings; anything else is 0.
func asInt(v any) int {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return int(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return asInt(f)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
}
