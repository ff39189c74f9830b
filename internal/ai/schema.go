package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"jobpulse/internal/errors"
)

// FieldKind enumerates the scalar and list types a structured response
// field may carry.
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
	KindStringList
	KindObjectList
)

// Field declares one expected field of a structured response.
type Field struct {
	Name     string
	Kind     FieldKind
	Optional bool
	// MaxItems caps list fields after parsing; 0 means uncapped.
	MaxItems int
	// Seniority fields are normalized onto the closed set instead of
	// failing validation.
	Seniority bool
}

// Shape is the expected form of a structured response: a named set of
// fields with scalar / list types.
type Shape struct {
	Name   string
	Fields []Field
}

// StripCodeFence removes surrounding markdown code-fence markup that models
// emit despite instructions not to.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = text[len("```json"):]
	} else if strings.HasPrefix(text, "```") {
		text = text[len("```"):]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// DecodeJSON strips fence markup and unmarshals text into out, converting
// failures into parse errors.
func DecodeJSON(text string, out any) error {
	cleaned := StripCodeFence(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return errors.NewParseError(errors.ErrCodeResponseParseFailed,
			"response is not valid JSON", err)
	}
	return nil
}

// parseStructured validates text against shape and unmarshals the cleaned
// object into out. Missing or mistyped required fields yield a parse error.
func parseStructured(text string, shape Shape, out any) error {
	var raw map[string]any
	if err := DecodeJSON(text, &raw); err != nil {
		return err
	}

	cleaned := make(map[string]any, len(shape.Fields))
	for _, field := range shape.Fields {
		value, present := raw[field.Name]
		if !present || value == nil {
			if field.Optional {
				continue
			}
			return shapeError(shape, field, "missing required field")
		}

		normalized, err := normalizeField(field, value)
		if err != nil {
			return shapeError(shape, field, err.Error())
		}
		cleaned[field.Name] = normalized
	}

	// Round-trip through JSON so callers get their own typed struct
	buf, err := json.Marshal(cleaned)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeResponseParseFailed,
			"failed to re-encode validated response", err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return errors.NewParseError(errors.ErrCodeResponseParseFailed,
			"validated response does not fit output type", err)
	}
	return nil
}

// normalizeField coerces one raw JSON value into the declared kind.
func normalizeField(field Field, value any) (any, error) {
	switch field.Kind {
	case KindString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		if field.Seniority {
			s = NormalizeSeniority(s)
		}
		return s, nil

	case KindInt:
		// JSON numbers arrive as float64
		switch n := value.(type) {
		case float64:
			if n < 0 {
				return 0, nil
			}
			return int(n), nil
		case string:
			// Some models quote numbers; tolerate digits-only strings
			var parsed int
			if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &parsed); err != nil {
				return nil, fmt.Errorf("expected integer, got %q", n)
			}
			if parsed < 0 {
				return 0, nil
			}
			return parsed, nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", value)
		}

	case KindStringList:
		list, err := toStringList(value)
		if err != nil {
			return nil, err
		}
		if field.MaxItems > 0 && len(list) > field.MaxItems {
			list = list[:field.MaxItems]
		}
		return list, nil

	case KindObjectList:
		list, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("expected list of objects, got %T", value)
		}
		if field.MaxItems > 0 && len(list) > field.MaxItems {
			list = list[:field.MaxItems]
		}
		return list, nil

	default:
		return nil, fmt.Errorf("unknown field kind %d", field.Kind)
	}
}

// toStringList accepts a JSON list of strings, or a single comma-separated
// string (a shape models fall back to under token pressure).
func toStringList(value any) ([]string, error) {
	switch v := value.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected list of strings, got element %T", item)
			}
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, nil
	case string:
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list of strings, got %T", value)
	}
}

func shapeError(shape Shape, field Field, detail string) error {
	return errors.NewParseError(errors.ErrCodeResponseParseFailed,
		fmt.Sprintf("response for %s: field %q: %s", shape.Name, field.Name, detail), nil)
}

// DedupeStrings removes case-insensitive duplicates, preserving the first
// occurrence, and caps the result at max (0 means uncapped).
func DedupeStrings(items []string, max int) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := lowerTrim(item)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(item))
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
