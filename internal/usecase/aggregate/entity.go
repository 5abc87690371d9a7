// Package aggregate detects entity-level questions and rolls line-level
// results up into entity cards.
package aggregate

import (
	"regexp"
	"strings"
)

// EntityIntent is the entity view a question asks for.
type EntityIntent int

// Entity intents.
const (
	None EntityIntent = iota
	Vendor
	Customer
	Equipment
)

func (e EntityIntent) String() string {
	switch e {
	case Vendor:
		return "vendor"
	case Customer:
		return "customer"
	case Equipment:
		return "equipment"
	default:
		return "none"
	}
}

// MarshalText encodes the intent as its name.
func (e EntityIntent) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText decodes an intent name. Unknown names decode to None.
func (e *EntityIntent) UnmarshalText(text []byte) error {
	switch string(text) {
	case "vendor":
		*e = Vendor
	case "customer":
		*e = Customer
	case "equipment":
		*e = Equipment
	default:
		*e = None
	}
	return nil
}

var (
	vendorPattern = regexp.MustCompile(
		`\b(vendors?|suppliers?|contractors?|subcontractors?|distributors?|service providers?)\b`)
	customerPattern = regexp.MustCompile(
		`\b(customers?|clients?|facilit(y|ies)|buildings?|propert(y|ies))\b`)
	equipmentPattern = regexp.MustCompile(
		`\b(equipment|units?|machines?|chillers?|boilers?|furnaces?|rtus?|rooftop units?|heat pumps?|compressors?)\b`)

	// Invoice-centric wording means the caller wants line items, not entities.
	invoicePattern = regexp.MustCompile(`\b(invoices?|invoiced|bills?|billing|billed|payments?|payables?)\b`)
)

// DetectEntityIntent classifies query by phrase patterns. Any invoice, bill or
// payment wording yields None.
func DetectEntityIntent(query string) EntityIntent {
	q := strings.ToLower(query)
	if invoicePattern.MatchString(q) {
		return None
	}
	switch {
	case vendorPattern.MatchString(q):
		return Vendor
	case customerPattern.MatchString(q):
		return Customer
	case equipmentPattern.MatchString(q):
		return Equipment
	default:
		return None
	}
}
