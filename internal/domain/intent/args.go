package intent

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Args carries the arguments the router extracted for one tool call.
// Nil pointers mean the argument was not supplied.
type Args struct {
	Query string `json:"query"`

	PaymentStatus  *string  `json:"payment_status,omitempty"`
	ServiceType    *string  `json:"service_type,omitempty"`
	FiscalYear     *int     `json:"fiscal_year,omitempty"`
	FiscalQuarter  *int     `json:"fiscal_quarter,omitempty"`
	CustomerType   *string  `json:"customer_type,omitempty"`
	City           *string  `json:"city,omitempty"`
	State          *string  `json:"state,omitempty"`
	EquipmentType  *string  `json:"equipment_type,omitempty"`
	Manufacturer   *string  `json:"manufacturer,omitempty"`
	Condition      *string  `json:"condition,omitempty"`
	WarrantyStatus *string  `json:"warranty_status,omitempty"`
	AmountMin      *float64 `json:"amount_min,omitempty"`
	AmountMax      *float64 `json:"amount_max,omitempty"`
	Vendor         *string  `json:"vendor,omitempty"`
	Region         *string  `json:"region,omitempty"`
	RecordType     *string  `json:"record_type,omitempty"`
	TopK           *int     `json:"top_k,omitempty"`
}

// ParseArgs decodes tool-call arguments produced by the LLM.
//
// Decoding is lenient: numbers may arrive as strings and blank strings count as absent.
// The returned Args always has a non-empty Query when fallbackQuery is non-empty:
// an empty, null or non-string query is replaced by fallbackQuery.
// Malformed JSON yields Args{Query: fallbackQuery} together with the decode error.
func ParseArgs(raw, fallbackQuery string) (Args, error) {
	args := Args{Query: strings.TrimSpace(fallbackQuery)}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return args, fmt.Errorf("decode tool arguments: %w", err)
	}

	if q, ok := m["query"].(string); ok && strings.TrimSpace(q) != "" {
		args.Query = strings.TrimSpace(q)
	}

	args.PaymentStatus = str(m, "payment_status")
	args.ServiceType = str(m, "service_type")
	args.FiscalYear = integer(m, "fiscal_year")
	args.FiscalQuarter = integer(m, "fiscal_quarter")
	args.CustomerType = str(m, "customer_type")
	args.City = str(m, "city")
	args.State = str(m, "state")
	args.EquipmentType = str(m, "equipment_type")
	args.Manufacturer = str(m, "manufacturer")
	args.Condition = str(m, "condition")
	args.WarrantyStatus = str(m, "warranty_status")
	args.AmountMin = number(m, "amount_min")
	args.AmountMax = number(m, "amount_max")
	args.Vendor = str(m, "vendor")
	args.Region = str(m, "region")
	args.RecordType = str(m, "record_type")
	args.TopK = integer(m, "top_k")

	return args, nil
}

func str(m map[string]any, key string) *string {
	var s string
	switch v := m[key].(type) {
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	}
	if s == "" {
		return nil
	}
	return &s
}

func number(m map[string]any, key string) *float64 {
	var f float64
	switch v := m[key].(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func integer(m map[string]any, key string) *int {
	f := number(m, key)
	if f == nil {
		return nil
	}
	n := int(math.Round(*f))
	return &n
}
