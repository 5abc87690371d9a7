package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/hvacsearch/internal/db"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
)

// filterableTags are the TAG fields the filter builder and security policies constrain.
var filterableTags = []string{
	result.FieldDomain,
	result.FieldRecordType,
	result.FieldVendor,
	result.FieldPaymentStatus,
	result.FieldServiceType,
	result.FieldCustomerType,
	result.FieldCity,
	result.FieldState,
	result.FieldRegion,
	result.FieldEquipmentType,
	result.FieldManufacturer,
	result.FieldCondition,
	"warranty_status",
	result.FieldOpCo,
	result.FieldRoleRequired,
	"vendor_id",
}

var filterableNumerics = []string{result.FieldAmount, "fiscal_year", "fiscal_quarter"}

// IndexDefinition returns the FT schema the record index is expected to have.
func (r *Repo) IndexDefinition() (*db.IndexDefinition, error) {
	def, err := db.NewIndex(r.cfg.IndexName).
		Prefix(r.cfg.KeyPrefix).
		Tags(filterableTags...).
		Numerics(filterableNumerics...).
		Text(result.FieldText).
		VectorHNSW("embedding", r.cfg.Dimensions, db.DistanceCosine, r.cfg.HNSWM, r.cfg.HNSWEFConstruct).
		Build()
	if err != nil {
		return nil, fmt.Errorf("index definition: %w", err)
	}
	return def, nil
}

// EnsureIndex creates the record index when it is missing.
// It reports whether a new index was created.
func (r *Repo) EnsureIndex(ctx context.Context) (bool, error) {
	exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
	if err != nil {
		return false, fmt.Errorf("probe index %s: %w", r.cfg.IndexName, err)
	}
	if exists {
		return false, nil
	}

	def, err := r.IndexDefinition()
	if err != nil {
		return false, err
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return false, nil
		}
		return false, fmt.Errorf("create index %s: %w", r.cfg.IndexName, err)
	}
	return true, nil
}

// IndexReady reports whether the record index exists; used by health checks.
func (r *Repo) IndexReady(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
	if err != nil {
		return fmt.Errorf("probe index %s: %w", r.cfg.IndexName, err)
	}
	if !exists {
		return fmt.Errorf("index %s: %w", r.cfg.IndexName, db.ErrIndexNotFound)
	}
	return nil
}
