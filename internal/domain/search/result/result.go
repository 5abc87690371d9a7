package result

import (
	"math"
	"strconv"
	"strings"
)

// Metadata field names shared by the normalizer, aggregator and chart policies.
const (
	FieldDate         = "date"
	FieldVendor       = "vendor"
	FieldAmount       = "amount"
	FieldAccount      = "account"
	FieldOpCo         = "opco_id"
	FieldRoleRequired = "role_required"

	FieldDomain        = "domain"
	FieldRecordType    = "record_type"
	FieldText          = "text"
	FieldPaymentStatus = "payment_status"
	FieldServiceType   = "service_type"
	FieldRegion        = "region"
	FieldState         = "state"
	FieldCity          = "city"
	FieldCustomerType  = "customer_type"
	FieldCustomerName  = "customer_name"
	FieldManufacturer  = "manufacturer"
	FieldEquipmentType = "equipment_type"
	FieldCondition     = "condition"
	FieldLeadSource    = "lead_source"
	FieldDealStage     = "stage"
	FieldChannel       = "channel"
	FieldWarehouse     = "warehouse"
	FieldReorderNeeded = "reorder_needed"
	FieldQuantity      = "quantity"
	FieldReorderPoint  = "reorder_point"
	FieldItemName      = "item_name"
	FieldCampaignName  = "campaign_name"
)

// NumericFields are stored as numbers by ingestion. Every other field is text,
// even when its value looks numeric (invoice numbers, SKUs, zip codes).
var NumericFields = []string{
	FieldAmount,
	"total_value",
	"deal_value",
	"budget",
	"total_revenue",
	"unit_cost",
	FieldQuantity,
	FieldReorderPoint,
	"fiscal_year",
	"fiscal_quarter",
}

// BaseFields are present on every normalized result.
var BaseFields = []string{FieldDate, FieldVendor, FieldAmount, FieldAccount, FieldOpCo, FieldRoleRequired}

// Domain values written by ingestion.
const (
	DomainFinancial  = "financial"
	DomainCRM        = "crm"
	DomainOperations = "operations"
	DomainInventory  = "inventory"
	DomainMarketing  = "marketing"
)

// RawHit is one vector store match before normalization.
type RawHit struct {
	ID       string
	Score    float64 // similarity in [0,1]
	Text     string
	Metadata map[string]any
}

// SearchResult is the uniform result shape returned to callers.
// Entity cards produced by aggregation use the same shape.
type SearchResult struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Metadata is a record's canonical fields plus every domain extension field.
type Metadata map[string]any

// String returns the trimmed string form of key, or "" when absent.
func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Number returns key as a float64. Numeric strings are parsed.
func (m Metadata) Number(key string) (float64, bool) {
	return AsNumber(m[key])
}

// Domain returns the record's domain field.
func (m Metadata) Domain() string { return strings.ToLower(m.String(FieldDomain)) }

// RecordType returns the record's record_type field.
func (m Metadata) RecordType() string { return strings.ToLower(m.String(FieldRecordType)) }

// AsNumber converts a metadata value to a finite float64.
func AsNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(n), "$"), ",", ""))
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsEmpty reports whether a metadata value carries no information.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	default:
		return false
	}
}
