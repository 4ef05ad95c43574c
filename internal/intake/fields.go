package intake

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// fields is a raw payload indexed by a separator-insensitive key, so that
// "business_name", "businessName" and "Business Name" resolve alike.
type fields map[string]any

func newFields(raw map[string]any) fields {
	out := make(fields, len(raw))
	for key, value := range raw {
		out[foldKey(key)] = value
	}
	return out
}

func foldKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func (f fields) lookup(keys ...string) (any, bool) {
	for _, key := range keys {
		value, ok := f[foldKey(key)]
		if !ok || value == nil {
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return value, true
	}
	return nil, false
}

// text returns the first present key as a trimmed string, or "".
func (f fields) text(keys ...string) string {
	value, ok := f.lookup(keys...)
	if !ok {
		return ""
	}
	return stringify(value)
}

// optional is text with absence reported as nil.
func (f fields) optional(keys ...string) *string {
	value := f.text(keys...)
	if value == "" {
		return nil
	}
	return &value
}

func (f fields) integer(keys ...string) *int {
	value, ok := f.lookup(keys...)
	if !ok {
		return nil
	}
	parsed, ok := toInt(value)
	if !ok {
		return nil
	}
	return &parsed
}

func (f fields) boolean(keys ...string) bool {
	value, ok := f.lookup(keys...)
	if !ok {
		return false
	}
	return truthy(value)
}

func (f fields) list(keys ...string) []string {
	value, ok := f.lookup(keys...)
	if !ok {
		return nil
	}
	switch typed := value.(type) {
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s := stringify(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return typed
	case map[string]any:
		// A flag object such as {"blog": true, "gallery": false} names only
		// the keys that are switched on.
		out := make([]string, 0, len(typed))
		for key, flag := range typed {
			if truthy(flag) {
				out = append(out, key)
			}
		}
		sort.Strings(out)
		return out
	case string:
		parts := strings.FieldsFunc(typed, func(r rune) bool { return r == ',' || r == ';' || r == '\n' })
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := stringify(typed); s != "" {
			return []string{s}
		}
		return nil
	}
}

func stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

// toInt accepts numbers and strings such as "4", "4.0" or "4-5 pages",
// taking the leading integer.
func toInt(value any) (int, bool) {
	switch typed := value.(type) {
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case float64:
		return int(typed), true
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return int(i), true
		}
		if f, err := typed.Float64(); err == nil {
			return int(f), true
		}
		return 0, false
	case string:
		s := strings.TrimSpace(typed)
		start := strings.IndexFunc(s, unicode.IsDigit)
		if start < 0 {
			return 0, false
		}
		end := start
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		parsed, err := strconv.Atoi(s[start:end])
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func truthy(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case float64:
		return typed != 0
	case json.Number:
		f, err := typed.Float64()
		return err == nil && f != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "yes", "y", "1", "on", "checked":
			return true
		}
	}
	return false
}
