// Package visualize derives chart descriptors from a final result set.
package visualize

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/kailas-cloud/hvacsearch/internal/domain/chart"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
	"github.com/kailas-cloud/hvacsearch/internal/metrics"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/aggregate"
)

// DefaultMaxCharts caps the charts attached to one response.
const DefaultMaxCharts = 4

// minMonths is the number of month buckets a time series needs.
const minMonths = 3

const maxBarPoints = 10

var monthPattern = regexp.MustCompile(`^(\d{4})-(\d{2})`)

// Generator builds visualizations.
type Generator struct {
	maxCharts int
}

// New creates a Generator. maxCharts <= 0 selects DefaultMaxCharts.
func New(maxCharts int) *Generator {
	if maxCharts <= 0 {
		maxCharts = DefaultMaxCharts
	}
	return &Generator{maxCharts: maxCharts}
}

// Generate returns the charts for results, or nil when results is empty or
// nothing qualifies. aggregated marks results that are vendor entity cards.
func (g *Generator) Generate(
	results []result.SearchResult, ei aggregate.EntityIntent, query string, aggregated bool,
) *chart.Visualization {
	if len(results) == 0 {
		return nil
	}

	var accs []*accumulator
	if aggregated {
		accs = vendorPolicy(results)
	} else {
		accs = recordPolicy(results, ei, IsRegionalQuery(query))
	}

	var charts []chart.Descriptor
	for _, a := range accs {
		if d, ok := a.descriptor(); ok {
			charts = append(charts, d)
		}
	}
	charts = Cap(charts, g.maxCharts)
	if len(charts) == 0 {
		return nil
	}

	for _, c := range charts {
		metrics.ChartsEmittedTotal.WithLabelValues(string(c.Type)).Inc()
	}
	return &chart.Visualization{Charts: charts}
}

// Cap keeps at most n charts, preferring map > pie > bar > line and keeping the
// original order within a type.
func Cap(charts []chart.Descriptor, n int) []chart.Descriptor {
	out := slices.Clone(charts)
	slices.SortStableFunc(out, func(a, b chart.Descriptor) int {
		return cmp.Compare(b.Type.Priority(), a.Type.Priority())
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func vendorPolicy(cards []result.SearchResult) []*accumulator {
	counts := newAccumulator(chart.Bar, "Invoices by vendor", "Vendor", "Invoices")
	counts.maxPoints = maxBarPoints
	totals := newAccumulator(chart.Bar, "Total invoiced by vendor", "Vendor", "Amount (USD)")
	totals.maxPoints = maxBarPoints
	payment := newAccumulator(chart.Pie, "Paid vs outstanding invoices", "", "")

	for _, c := range cards {
		name := c.Metadata.String(result.FieldVendor)
		if n, ok := c.Metadata.Number(aggregate.FieldInvoiceCount); ok {
			counts.add(name, n)
		}
		if n, ok := c.Metadata.Number(aggregate.FieldTotalAmount); ok {
			totals.add(name, n)
		}
		if n, ok := c.Metadata.Number(aggregate.FieldPaidCount); ok {
			payment.add("Paid", n)
		}
		if n, ok := c.Metadata.Number(aggregate.FieldOutstandingCount); ok {
			payment.add("Outstanding", n)
		}
	}
	return []*accumulator{counts, totals, payment}
}

// recordPolicy scans line-level records once into every histogram and series.
func recordPolicy(results []result.SearchResult, ei aggregate.EntityIntent, regional bool) []*accumulator {
	recordType := newAccumulator(chart.Pie, "Results by record type", "", "")
	region := newAccumulator(chart.Map, "Records by region", "Region", "Records")
	vendors := newAccumulator(chart.Bar, "Top vendors", "Vendor", "Records")
	vendors.maxPoints = maxBarPoints
	paymentStatus := newAccumulator(chart.Pie, "Invoices by payment status", "", "")
	serviceType := newAccumulator(chart.Bar, "Invoices by service type", "Service type", "Invoices")
	serviceType.maxPoints = maxBarPoints
	monthly := newAccumulator(chart.Line, "Amount by month", "Month", "Amount (USD)")
	monthly.ordered = true
	monthly.minPoints = minMonths
	leadSource := newAccumulator(chart.Pie, "Leads by source", "", "")
	dealStage := newAccumulator(chart.Bar, "Deals by stage", "Stage", "Deals")
	channel := newAccumulator(chart.Pie, "Campaigns by channel", "", "")
	manufacturer := newAccumulator(chart.Bar, "Equipment by manufacturer", "Manufacturer", "Units")
	manufacturer.maxPoints = maxBarPoints
	warehouse := newAccumulator(chart.Bar, "Inventory by warehouse", "Warehouse", "Items")
	warehouse.maxPoints = maxBarPoints
	condition := newAccumulator(chart.Pie, "Equipment condition", "", "")
	equipmentType := newAccumulator(chart.Bar, "Equipment by type", "Type", "Units")
	equipmentType.maxPoints = maxBarPoints
	reorder := newAccumulator(chart.Pie, "Inventory reorder status", "", "")
	customerType := newAccumulator(chart.Pie, "Customers by type", "", "")
	customerCity := newAccumulator(chart.Bar, "Customers by city", "City", "Customers")
	customerCity.maxPoints = maxBarPoints

	for _, r := range results {
		md := r.Metadata
		recordType.add(md.RecordType(), 1)
		region.add(md.String(result.FieldRegion), 1)
		vendors.add(md.String(result.FieldVendor), 1)
		manufacturer.add(md.String(result.FieldManufacturer), 1)
		warehouse.add(md.String(result.FieldWarehouse), 1)
		condition.add(strings.ToLower(md.String(result.FieldCondition)), 1)
		equipmentType.add(md.String(result.FieldEquipmentType), 1)
		leadSource.add(md.String(result.FieldLeadSource), 1)
		dealStage.add(md.String(result.FieldDealStage), 1)
		channel.add(md.String(result.FieldChannel), 1)
		customerType.add(md.String(result.FieldCustomerType), 1)

		if md.Domain() == result.DomainFinancial || md.RecordType() == "invoice" {
			paymentStatus.add(strings.ToLower(md.String(result.FieldPaymentStatus)), 1)
			serviceType.add(md.String(result.FieldServiceType), 1)
		}
		if md.Domain() == result.DomainCRM || md.RecordType() == "customer" {
			customerCity.add(md.String(result.FieldCity), 1)
		}
		if m, ok := month(md.String(result.FieldDate)); ok {
			if amount, ok := md.Number(result.FieldAmount); ok && amount > 0 {
				monthly.add(m, amount)
			}
		}
		if label, ok := reorderLabel(md); ok {
			reorder.add(label, 1)
		}
	}

	var accs []*accumulator
	switch ei {
	case aggregate.Customer:
		accs = []*accumulator{customerType, customerCity}
	case aggregate.Equipment:
		accs = []*accumulator{condition, equipmentType, manufacturer}
	}
	if regional {
		accs = append(accs, region)
	}
	for _, a := range []*accumulator{
		recordType, vendors, paymentStatus, serviceType, monthly, leadSource, dealStage,
		channel, manufacturer, warehouse, condition, equipmentType, reorder,
	} {
		if !slices.Contains(accs, a) {
			accs = append(accs, a)
		}
	}
	return accs
}

func month(date string) (string, bool) {
	m := monthPattern.FindStringSubmatch(strings.TrimSpace(date))
	if m == nil {
		return "", false
	}
	if mm, err := strconv.Atoi(m[2]); err != nil || mm < 1 || mm > 12 {
		return "", false
	}
	return m[1] + "-" + m[2], true
}

func reorderLabel(md result.Metadata) (string, bool) {
	if v, ok := md[result.FieldReorderNeeded]; ok && !result.IsEmpty(v) {
		needs, ok := truthy(v)
		if !ok {
			return "", false
		}
		return stockLabel(needs), true
	}
	qty, okQty := md.Number(result.FieldQuantity)
	point, okPoint := md.Number(result.FieldReorderPoint)
	if !okQty || !okPoint {
		return "", false
	}
	return stockLabel(qty <= point), true
}

func stockLabel(needsReorder bool) string {
	if needsReorder {
		return "Needs reorder"
	}
	return "Stocked"
}

func truthy(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case float64:
		return x != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0":
			return false, true
		}
	}
	return false, false
}
