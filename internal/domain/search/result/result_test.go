package result

import (
	"math"
	"testing"
)

func TestMetadata_String(t *testing.T) {
	m := Metadata{
		"vendor":      "  Carrier ",
		"fiscal_year": float64(2024),
		"paid":        true,
	}
	if got := m.String("vendor"); got != "Carrier" {
		t.Errorf("String(vendor) = %q", got)
	}
	if got := m.String("fiscal_year"); got != "2024" {
		t.Errorf("String(fiscal_year) = %q", got)
	}
	if got := m.String("paid"); got != "true" {
		t.Errorf("String(paid) = %q", got)
	}
	if got := m.String("missing"); got != "" {
		t.Errorf("String(missing) = %q", got)
	}
}

func TestAsNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{float64(12.5), 12.5, true},
		{7, 7, true},
		{"1500", 1500, true},
		{"$1,250.50", 1250.50, true},
		{"", 0, false},
		{"n/a", 0, false},
		{nil, 0, false},
		{true, 0, false},
		{"NaN", 0, false},
		{"nan", 0, false},
		{"Inf", 0, false},
		{"-infinity", 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
	}
	for _, tt := range tests {
		got, ok := AsNumber(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("AsNumber(%#v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMetadata_DomainAndRecordType(t *testing.T) {
	m := Metadata{"domain": "Financial", "record_type": "INVOICE"}
	if m.Domain() != DomainFinancial {
		t.Errorf("Domain() = %q", m.Domain())
	}
	if m.RecordType() != "invoice" {
		t.Errorf("RecordType() = %q", m.RecordType())
	}
}

func TestIsEmpty(t *testing.T) {
	if !IsEmpty(nil) || !IsEmpty("  ") {
		t.Error("nil and blank strings are empty")
	}
	if IsEmpty(float64(0)) || IsEmpty("x") {
		t.Error("zero numbers and text are not empty")
	}
}
