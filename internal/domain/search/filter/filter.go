package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
)

// MaxConditions is the maximum number of field conditions per filter level.
const MaxConditions = 32

// Operator keys of the filter algebra.
const (
	OpEq  = "$eq"
	OpGte = "$gte"
	OpLte = "$lte"
	OpIn  = "$in"
	OpAnd = "$and"
	OpOr  = "$or"
)

// Filter is a metadata constraint expression: every field condition must hold,
// every $and clause must hold, and at least one $or clause must hold.
type Filter struct {
	fields map[string]Condition
	and    []Filter
	or     []Filter
}

// New returns an empty filter.
func New() Filter { return Filter{} }

// With returns a copy of f with key bound to cond.
func (f Filter) With(key string, cond Condition) Filter {
	out := f.clone()
	if out.fields == nil {
		out.fields = make(map[string]Condition)
	}
	out.fields[key] = cond
	return out
}

// And combines filters so that all of them must hold.
// Empty operands are dropped; a single remaining operand is returned as is.
func And(filters ...Filter) Filter {
	parts := nonEmpty(filters)
	switch len(parts) {
	case 0:
		return Filter{}
	case 1:
		return parts[0]
	}
	return Filter{and: parts}
}

// Or combines filters so that at least one must hold.
func Or(filters ...Filter) Filter {
	parts := nonEmpty(filters)
	switch len(parts) {
	case 0:
		return Filter{}
	case 1:
		return parts[0]
	}
	return Filter{or: parts}
}

// Fields returns bound field names in sorted order.
func (f Filter) Fields() []string {
	keys := make([]string, 0, len(f.fields))
	for k := range f.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Condition returns the condition bound to key.
func (f Filter) Condition(key string) (Condition, bool) {
	c, ok := f.fields[key]
	return c, ok
}

// AndClauses returns the $and sub-filters.
func (f Filter) AndClauses() []Filter { return f.and }

// OrClauses returns the $or sub-filters.
func (f Filter) OrClauses() []Filter { return f.or }

// IsEmpty reports whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	return len(f.fields) == 0 && len(f.and) == 0 && len(f.or) == 0
}

// Validate rejects filters that must not reach the vector store: operator keys other
// than $and/$or at field level, and fields bound to no value.
func Validate(f Filter) error {
	if err := validate(f, ""); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrFilterValidation, err)
	}
	return nil
}

func validate(f Filter, path string) error {
	if len(f.fields) > MaxConditions {
		return fmt.Errorf("%stoo many conditions (max %d)", path, MaxConditions)
	}
	for _, key := range f.Fields() {
		if key == "" {
			return fmt.Errorf("%sempty field name", path)
		}
		if strings.HasPrefix(key, "$") {
			return fmt.Errorf("%sunsupported operator %q", path, key)
		}
		if f.fields[key].IsNull() {
			return fmt.Errorf("%sfield %q is bound to null", path, key)
		}
	}
	for i, sub := range f.and {
		if err := validate(sub, fmt.Sprintf("%s%s[%d].", path, OpAnd, i)); err != nil {
			return err
		}
	}
	for i, sub := range f.or {
		if err := validate(sub, fmt.Sprintf("%s%s[%d].", path, OpOr, i)); err != nil {
			return err
		}
	}
	return nil
}

func (f Filter) clone() Filter {
	out := Filter{and: f.and, or: f.or}
	if f.fields != nil {
		out.fields = make(map[string]Condition, len(f.fields))
		for k, v := range f.fields {
			out.fields[k] = v
		}
	}
	return out
}

func nonEmpty(filters []Filter) []Filter {
	var out []Filter
	for _, f := range filters {
		if !f.IsEmpty() {
			out = append(out, f)
		}
	}
	return out
}

// Condition constrains one field: an equality, an inclusive range, or a set membership.
// The zero value binds the field to null and is rejected by Validate.
type Condition struct {
	eq  any // string, float64 or bool
	gte *float64
	lte *float64
	in  []string
}

// Eq matches a string value exactly.
func Eq(v string) Condition { return Condition{eq: v} }

// EqNumber matches a numeric value exactly.
func EqNumber(v float64) Condition { return Condition{eq: v} }

// EqBool matches a boolean value.
func EqBool(v bool) Condition { return Condition{eq: v} }

// Gte matches values greater than or equal to v.
func Gte(v float64) Condition { return Condition{gte: &v} }

// Lte matches values less than or equal to v.
func Lte(v float64) Condition { return Condition{lte: &v} }

// Between matches values in [lo, hi].
func Between(lo, hi float64) Condition { return Condition{gte: &lo, lte: &hi} }

// In matches any of values.
func In(values ...string) Condition {
	return Condition{in: append([]string(nil), values...)}
}

// EqValue returns the equality operand, if any.
func (c Condition) EqValue() (any, bool) { return c.eq, c.eq != nil }

// GteValue returns the lower bound.
func (c Condition) GteValue() *float64 { return c.gte }

// LteValue returns the upper bound.
func (c Condition) LteValue() *float64 { return c.lte }

// InValues returns the set operand.
func (c Condition) InValues() []string { return c.in }

// IsRange reports whether the condition carries a bound.
func (c Condition) IsRange() bool { return c.gte != nil || c.lte != nil }

// IsNull reports whether the condition carries no operator.
func (c Condition) IsNull() bool {
	return c.eq == nil && c.gte == nil && c.lte == nil && c.in == nil
}
