// Package filterbuild turns a routed intent and its arguments into a validated
// metadata filter, with a policy seam for tenant and role scoping.
package filterbuild

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/intent"
	"github.com/kailas-cloud/hvacsearch/internal/domain/principal"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
)

// Builder assembles filters for tool calls.
type Builder struct {
	policy SecurityPolicy
}

// New creates a Builder. A nil policy means NoopPolicy.
func New(policy SecurityPolicy) *Builder {
	if policy == nil {
		policy = NoopPolicy{}
	}
	return &Builder{policy: policy}
}

// Build returns the filter for one tool call: intent constraints, then user
// constraints, then the security policy. The result is validated.
func (b *Builder) Build(i intent.Intent, args intent.Args, p principal.Principal) (filter.Filter, error) {
	f, err := Base(i, args)
	if err != nil {
		return filter.Filter{}, err
	}

	f, err = b.policy.Apply(f, p)
	if err != nil {
		return filter.Filter{}, fmt.Errorf("apply security policy: %w", err)
	}

	if err := filter.Validate(f); err != nil {
		return filter.Filter{}, err
	}
	return f, nil
}

// Base returns the intent and user constraints without any security scoping.
func Base(i intent.Intent, args intent.Args) (filter.Filter, error) {
	f := filter.New()

	switch i {
	case intent.SearchAll:
		f = withString(f, result.FieldRecordType, args.RecordType)
		f = withString(f, result.FieldVendor, args.Vendor)
		f = withString(f, result.FieldRegion, args.Region)
		f = withString(f, result.FieldCity, args.City)
		f = withString(f, result.FieldState, args.State)
		f = withInt(f, "fiscal_year", args.FiscalYear)
		f = withAmount(f, args)
	case intent.SearchInvoices:
		f = f.With(result.FieldDomain, filter.Eq(result.DomainFinancial)).
			With(result.FieldRecordType, filter.Eq("invoice"))
		f = withString(f, result.FieldPaymentStatus, args.PaymentStatus)
		f = withString(f, result.FieldServiceType, args.ServiceType)
		f = withInt(f, "fiscal_year", args.FiscalYear)
		f = withInt(f, "fiscal_quarter", args.FiscalQuarter)
		f = withString(f, result.FieldVendor, args.Vendor)
		f = withString(f, result.FieldRegion, args.Region)
		f = withString(f, result.FieldState, args.State)
		f = withAmount(f, args)
	case intent.SearchCustomers:
		f = f.With(result.FieldDomain, filter.Eq(result.DomainCRM)).
			With(result.FieldRecordType, filter.Eq("customer"))
		f = withString(f, result.FieldCustomerType, args.CustomerType)
		f = withString(f, result.FieldCity, args.City)
		f = withString(f, result.FieldState, args.State)
		f = withString(f, result.FieldRegion, args.Region)
	case intent.SearchEquipment:
		f = f.With(result.FieldDomain, filter.Eq(result.DomainOperations)).
			With(result.FieldRecordType, filter.Eq("equipment"))
		f = withString(f, result.FieldEquipmentType, args.EquipmentType)
		f = withString(f, result.FieldManufacturer, args.Manufacturer)
		f = withString(f, result.FieldCondition, args.Condition)
		f = withString(f, "warranty_status", args.WarrantyStatus)
		f = withString(f, result.FieldCity, args.City)
		f = withString(f, result.FieldState, args.State)
	default:
		return filter.Filter{}, fmt.Errorf("%w: unknown search intent %s", domain.ErrValidation, i)
	}

	return f, nil
}

func withString(f filter.Filter, key string, v *string) filter.Filter {
	if v == nil || strings.TrimSpace(*v) == "" {
		return f
	}
	return f.With(key, filter.Eq(strings.TrimSpace(*v)))
}

func withInt(f filter.Filter, key string, v *int) filter.Filter {
	if v == nil {
		return f
	}
	return f.With(key, filter.EqNumber(float64(*v)))
}

func withAmount(f filter.Filter, args intent.Args) filter.Filter {
	switch {
	case args.AmountMin != nil && args.AmountMax != nil:
		lo, hi := *args.AmountMin, *args.AmountMax
		if lo > hi {
			lo, hi = hi, lo
		}
		return f.With(result.FieldAmount, filter.Between(lo, hi))
	case args.AmountMin != nil:
		return f.With(result.FieldAmount, filter.Gte(*args.AmountMin))
	case args.AmountMax != nil:
		return f.With(result.FieldAmount, filter.Lte(*args.AmountMax))
	default:
		return f
	}
}
