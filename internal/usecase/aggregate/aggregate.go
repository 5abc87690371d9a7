package aggregate

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
)

// UnknownVendor groups records that name neither a vendor nor a manufacturer.
const UnknownVendor = "Unknown Vendor"

// RecordTypeVendorSummary marks a vendor entity card.
const RecordTypeVendorSummary = "vendor_summary"

// Entity card metadata fields.
const (
	FieldInvoiceCount     = "invoice_count"
	FieldTotalAmount      = "total_amount"
	FieldAvgAmount        = "avg_amount"
	FieldLastActivity     = "last_activity"
	FieldServiceTypes     = "service_types"
	FieldPaidCount        = "paid_count"
	FieldOutstandingCount = "outstanding_count"
	FieldPaymentRate      = "payment_rate"
)

// Outcome is the result set after aggregation.
type Outcome struct {
	Results []result.SearchResult
	// Intent is the entity intent that still applies; a vendor intent without
	// financial records is reset to None.
	Intent     EntityIntent
	Aggregated bool
}

// Aggregate rolls results up per vendor for Vendor intents backed by at least one
// financial record. Other intents pass results through unchanged.
func Aggregate(results []result.SearchResult, ei EntityIntent) Outcome {
	if ei != Vendor {
		return Outcome{Results: results, Intent: ei}
	}
	if !slices.ContainsFunc(results, isFinancial) {
		return Outcome{Results: results, Intent: None}
	}
	return Outcome{Results: VendorCards(results), Intent: Vendor, Aggregated: true}
}

func isFinancial(r result.SearchResult) bool {
	return r.Metadata.Domain() == result.DomainFinancial
}

type vendorGroup struct {
	name         string
	count        int
	total        float64
	paid         int
	lastActivity string
	bestScore    float64
	services     []string
}

// VendorCards groups results by vendor name, falling back to manufacturer and then
// UnknownVendor. Cards are ordered by invoice count, then name.
func VendorCards(results []result.SearchResult) []result.SearchResult {
	groups := make(map[string]*vendorGroup)
	var order []string

	for _, r := range results {
		name := vendorName(r.Metadata)
		g, ok := groups[name]
		if !ok {
			g = &vendorGroup{name: name}
			groups[name] = g
			order = append(order, name)
		}
		g.add(r)
	}

	cards := make([]result.SearchResult, 0, len(order))
	for _, name := range order {
		cards = append(cards, groups[name].card())
	}
	slices.SortStableFunc(cards, func(a, b result.SearchResult) int {
		ca, _ := a.Metadata[FieldInvoiceCount].(int)
		cb, _ := b.Metadata[FieldInvoiceCount].(int)
		if c := cmp.Compare(cb, ca); c != 0 {
			return c
		}
		return cmp.Compare(a.Metadata.String(result.FieldVendor), b.Metadata.String(result.FieldVendor))
	})
	return cards
}

func vendorName(md result.Metadata) string {
	if v := md.String(result.FieldVendor); v != "" {
		return v
	}
	if m := md.String(result.FieldManufacturer); m != "" {
		return m
	}
	return UnknownVendor
}

func (g *vendorGroup) add(r result.SearchResult) {
	g.count++
	if amount, ok := r.Metadata.Number(result.FieldAmount); ok {
		g.total += amount
	}
	status := strings.ToLower(r.Metadata.String(result.FieldPaymentStatus))
	if status == "paid" {
		g.paid++
	}
	if st := r.Metadata.String(result.FieldServiceType); st != "" && !slices.Contains(g.services, st) {
		g.services = append(g.services, st)
	}
	if d := r.Metadata.String(result.FieldDate); d > g.lastActivity {
		g.lastActivity = d
	}
	if g.count == 1 || r.Score > g.bestScore {
		g.bestScore = r.Score
	}
}

func (g *vendorGroup) card() result.SearchResult {
	avg := g.total / float64(g.count)
	rate := float64(g.paid) / float64(g.count) * 100
	services := slices.Sorted(slices.Values(g.services))

	md := result.Metadata{
		result.FieldDate:         g.lastActivity,
		result.FieldVendor:       g.name,
		result.FieldAmount:       g.total,
		result.FieldAccount:      "",
		result.FieldOpCo:         "",
		result.FieldRoleRequired: "",
		result.FieldDomain:       result.DomainFinancial,
		result.FieldRecordType:   RecordTypeVendorSummary,

		FieldInvoiceCount:     g.count,
		FieldTotalAmount:      g.total,
		FieldAvgAmount:        avg,
		FieldLastActivity:     g.lastActivity,
		FieldServiceTypes:     services,
		FieldPaidCount:        g.paid,
		FieldOutstandingCount: g.count - g.paid,
		FieldPaymentRate:      fmt.Sprintf("%.1f%%", rate),
	}

	text := fmt.Sprintf("%s: %d invoice(s), $%.2f total, %.1f%% paid", g.name, g.count, g.total, rate)
	if len(services) > 0 {
		text += " · services: " + strings.Join(services, ", ")
	}

	return result.SearchResult{
		ID:       "vendor:" + slug(g.name),
		Text:     text,
		Score:    g.bestScore,
		Metadata: md,
	}
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
