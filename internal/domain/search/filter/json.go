package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON renders the filter in the $eq/$gte/$lte/$in/$and/$or operator algebra.
func (f Filter) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.fields)+2)
	for k, c := range f.fields {
		out[k] = c
	}
	if len(f.and) > 0 {
		out[OpAnd] = f.and
	}
	if len(f.or) > 0 {
		out[OpOr] = f.or
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the operator algebra. Bare scalars are read as $eq and
// null binds the field to null, which Validate rejects.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("filter must be an object: %w", err)
	}

	var out Filter
	for key, value := range raw {
		switch key {
		case OpAnd, OpOr:
			var subs []Filter
			if err := json.Unmarshal(value, &subs); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if key == OpAnd {
				out.and = subs
			} else {
				out.or = subs
			}
		default:
			var c Condition
			if err := json.Unmarshal(value, &c); err != nil {
				return fmt.Errorf("field %q: %w", key, err)
			}
			if out.fields == nil {
				out.fields = make(map[string]Condition, len(raw))
			}
			out.fields[key] = c
		}
	}
	*f = out
	return nil
}

// MarshalJSON renders the condition as an operator object.
func (c Condition) MarshalJSON() ([]byte, error) {
	if c.IsNull() {
		return []byte("null"), nil
	}
	out := make(map[string]any, 2)
	if c.eq != nil {
		out[OpEq] = c.eq
	}
	if c.gte != nil {
		out[OpGte] = *c.gte
	}
	if c.lte != nil {
		out[OpLte] = *c.lte
	}
	if c.in != nil {
		out[OpIn] = c.in
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses an operator object or a bare scalar.
func (c *Condition) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*c = Condition{}
		return nil
	}

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var ops map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &ops); err != nil {
			return err
		}
		var out Condition
		for op, value := range ops {
			switch op {
			case OpEq:
				v, err := parseScalar(value)
				if err != nil {
					return fmt.Errorf("%s: %w", op, err)
				}
				out.eq = v
			case OpGte, OpLte:
				var n float64
				if err := json.Unmarshal(value, &n); err != nil {
					return fmt.Errorf("%s: %w", op, err)
				}
				if op == OpGte {
					out.gte = &n
				} else {
					out.lte = &n
				}
			case OpIn:
				var values []string
				if err := json.Unmarshal(value, &values); err != nil {
					return fmt.Errorf("%s: %w", op, err)
				}
				out.in = values
			default:
				return fmt.Errorf("unsupported operator %q", op)
			}
		}
		*c = out
		return nil
	}

	v, err := parseScalar(trimmed)
	if err != nil {
		return err
	}
	*c = Condition{eq: v}
	return nil
}

func parseScalar(data json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case string, float64, bool, nil:
		return v, nil
	default:
		return nil, fmt.Errorf("expected scalar, got %s", string(data))
	}
}
