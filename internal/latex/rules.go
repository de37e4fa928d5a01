package latex

import (
	"encoding/json"
	"fmt"
)

// ConditionTruthy makes a ConfigField emit only when its config value is truthy.
const ConditionTruthy = "truthy"

// VariableRule builds the substitution value of one ${name} placeholder from
// an ordered list of fields joined by Combine.
type VariableRule struct {
	Fields  []Field
	Combine string
}

// Field is one part of a VariableRule. Implementations are LiteralField and
// ConfigField.
type Field interface {
	field()
}

// LiteralField always contributes its value.
type LiteralField struct {
	Value any
}

// ConfigField contributes a value derived from config[Key].
type ConfigField struct {
	Key        string
	Prefix     string
	Suffix     string
	Default    any
	HasDefault bool
	Value      any
	HasValue   bool
	Condition  string
	SkipIf     []any
	DependsOn  string
}

func (LiteralField) field() {}
func (ConfigField) field()  {}

type wireRule struct {
	Fields  []json.RawMessage `json:"fields"`
	Combine string            `json:"combine"`
}

// UnmarshalJSON decodes a rule, choosing the field variant by the presence
// of "key".
func (r *VariableRule) UnmarshalJSON(data []byte) error {
	var w wireRule
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	fields := make([]Field, 0, len(w.Fields))
	for i, raw := range w.Fields {
		f, err := decodeField(raw)
		if err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
		fields = append(fields, f)
	}
	r.Fields = fields
	r.Combine = w.Combine
	return nil
}

func decodeField(raw json.RawMessage) (Field, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	keyRaw, hasKey := m["key"]
	if !hasKey {
		var lit LiteralField
		if v, ok := m["value"]; ok {
			if err := json.Unmarshal(v, &lit.Value); err != nil {
				return nil, err
			}
		}
		return lit, nil
	}

	var f ConfigField
	if err := json.Unmarshal(keyRaw, &f.Key); err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	strs := map[string]*string{
		"prefix":    &f.Prefix,
		"suffix":    &f.Suffix,
		"condition": &f.Condition,
		"dependsOn": &f.DependsOn,
	}
	for name, dst := range strs {
		if v, ok := m[name]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	if v, ok := m["default"]; ok {
		f.HasDefault = true
		if err := json.Unmarshal(v, &f.Default); err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
	}
	if v, ok := m["value"]; ok {
		f.HasValue = true
		if err := json.Unmarshal(v, &f.Value); err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
	}
	if v, ok := m["skipIf"]; ok {
		if err := json.Unmarshal(v, &f.SkipIf); err != nil {
			return nil, fmt.Errorf("skipIf: %w", err)
		}
	}
	return f, nil
}

// MarshalJSON encodes the rule in the same shape UnmarshalJSON accepts.
func (r VariableRule) MarshalJSON() ([]byte, error) {
	fields := make([]map[string]any, 0, len(r.Fields))
	for _, f := range r.Fields {
		switch f := f.(type) {
		case LiteralField:
			fields = append(fields, map[string]any{"value": f.Value})
		case ConfigField:
			m := map[string]any{"key": f.Key}
			if f.Prefix != "" {
				m["prefix"] = f.Prefix
			}
			if f.Suffix != "" {
				m["suffix"] = f.Suffix
			}
			if f.HasDefault {
				m["default"] = f.Default
			}
			if f.HasValue {
				m["value"] = f.Value
			}
			if f.Condition != "" {
				m["condition"] = f.Condition
			}
			if f.SkipIf != nil {
				m["skipIf"] = f.SkipIf
			}
			if f.DependsOn != "" {
				m["dependsOn"] = f.DependsOn
			}
			fields = append(fields, m)
		default:
			return nil, fmt.Errorf("latex: cannot encode field %T", f)
		}
	}
	return json.Marshal(map[string]any{"fields": fields, "combine": r.Combine})
}
