// Package normalize flattens raw vector hits into the uniform result shape.
package normalize

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
)

// AmountFields are tried in order; the first non-empty value becomes "amount".
var AmountFields = []string{
	result.FieldAmount,
	"total_value",
	"deal_value",
	"budget",
	"total_revenue",
	"unit_cost",
}

// labelFields name a record in a synthesized display text, most specific first.
var labelFields = []string{
	result.FieldVendor,
	result.FieldCustomerName,
	result.FieldItemName,
	result.FieldCampaignName,
	"name",
	result.FieldManufacturer,
	result.FieldAccount,
}

// Normalize maps hits to SearchResults ordered by score, highest first.
// Ties keep retrieval order.
func Normalize(hits []result.RawHit) []result.SearchResult {
	out := make([]result.SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, One(h))
	}
	slices.SortStableFunc(out, func(a, b result.SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return out
}

// One normalizes a single hit. Every metadata field is copied; base fields are
// always present.
func One(h result.RawHit) result.SearchResult {
	md := make(result.Metadata, len(h.Metadata)+len(result.BaseFields))
	maps.Copy(md, h.Metadata)

	md[result.FieldAmount] = pickAmount(h.Metadata)
	for _, f := range result.BaseFields {
		if v, ok := md[f]; !ok || v == nil {
			md[f] = ""
		}
	}

	text := strings.TrimSpace(h.Text)
	if text == "" {
		text = label(h.ID, md)
	}

	return result.SearchResult{
		ID:       h.ID,
		Text:     text,
		Score:    h.Score,
		Metadata: md,
	}
}

func pickAmount(md map[string]any) float64 {
	for _, f := range AmountFields {
		v, ok := md[f]
		if !ok || result.IsEmpty(v) {
			continue
		}
		if n, ok := result.AsNumber(v); ok {
			return n
		}
	}
	return 0
}

func label(id string, md result.Metadata) string {
	kind := md.RecordType()
	if kind == "" {
		kind = "record"
	}

	name := ""
	for _, f := range labelFields {
		if s := md.String(f); s != "" {
			name = s
			break
		}
	}

	parts := []string{kind}
	if name != "" {
		parts = append(parts, name)
	} else {
		parts = append(parts, id)
	}
	if amount, _ := md.Number(result.FieldAmount); amount > 0 {
		parts = append(parts, fmt.Sprintf("$%.2f", amount))
	}
	if d := md.String(result.FieldDate); d != "" {
		parts = append(parts, d)
	}
	return strings.Join(parts, " · ")
}
