package intent

import (
	"fmt"
)

// Intent is the closed set of search strategies the router can select.
type Intent int

const (
	// SearchAll searches every record domain.
	SearchAll Intent = iota + 1
	// SearchInvoices searches financial invoice records.
	SearchInvoices
	// SearchCustomers searches CRM customer records.
	SearchCustomers
	// SearchEquipment searches installed equipment records.
	SearchEquipment
)

// All lists every intent in catalog order.
var All = []Intent{SearchAll, SearchInvoices, SearchCustomers, SearchEquipment}

// Default result counts per tool call.
const (
	DefaultTopKAll    = 25
	DefaultTopKDomain = 10
)

// String returns the tool name the LLM sees.
func (i Intent) String() string {
	switch i {
	case SearchAll:
		return "search_all"
	case SearchInvoices:
		return "search_invoices"
	case SearchCustomers:
		return "search_customers"
	case SearchEquipment:
		return "search_equipment"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// Parse maps a tool name back to its intent.
func Parse(name string) (Intent, error) {
	for _, i := range All {
		if i.String() == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown search tool %q", name)
}

// DefaultTopK returns the per-call result count when the router does not set top_k.
func DefaultTopK(i Intent) int {
	if i == SearchAll {
		return DefaultTopKAll
	}
	return DefaultTopKDomain
}

// MarshalText encodes the intent as its tool name.
func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText decodes a tool name.
func (i *Intent) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// ClampTopK bounds a per-call result count to [1, 100].
func ClampTopK(n int) int {
	return min(max(n, 1), 100)
}

// TopK returns the effective result count for a call: the router's top_k or the
// intent default, clamped to [1, ceiling].
func TopK(i Intent, args Args, ceiling int) int {
	n := DefaultTopK(i)
	if args.TopK != nil {
		n = *args.TopK
	}
	return min(ClampTopK(n), ClampTopK(ceiling))
}
