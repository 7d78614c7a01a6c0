package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/retailops/shopify-sync/internal/alert"
	"github.com/retailops/shopify-sync/internal/domain"
	"github.com/retailops/shopify-sync/internal/logging"
	"github.com/retailops/shopify-sync/internal/shopify"
)

type catalogClient interface {
	GetProductVariants(ctx context.Context, tenant *domain.TenantConfig, productID string) ([]shopify.Variant, error)
	GetVariant(ctx context.Context, tenant *domain.TenantConfig, variantID string) (*shopify.Variant, error)
	GetCollectionProductIDs(ctx context.Context, tenant *domain.TenantConfig, collectionID string) ([]string, error)
}

// stepOutcome is the per-identifier verdict during resolution. The split
// between skip-one and abort-everything is part of the resolver's
// contract: a bad identifier costs only itself, a transport failure
// costs the whole build.
type stepOutcome int

const (
	stepResolved stepOutcome = iota
	stepRetry
	stepSkip
	stepFatal
)

// Resolver turns entitlement descriptors into flat barcode lists via the
// Shopify catalog. Lookups run one at a time per rule to stay inside the
// Admin API rate limits.
type Resolver struct {
	catalog    catalogClient
	alerts     *alert.Notifier
	retryDelay time.Duration
}

func NewResolver(catalog catalogClient, alerts *alert.Notifier, retryDelay time.Duration) *Resolver {
	return &Resolver{catalog: catalog, alerts: alerts, retryDelay: retryDelay}
}

// Resolve picks the first non-empty reference list (products, then
// variants, then collections) and resolves it to barcodes. A descriptor
// with no references at all cannot produce a promotion and fails the
// build.
func (r *Resolver) Resolve(ctx context.Context, tenant *domain.TenantConfig, ent *domain.Entitlement) ([]string, error) {
	if ent == nil || ent.Empty() {
		return nil, fmt.Errorf("Resolve: %w", domain.ErrNoEligibleItems)
	}
	switch {
	case len(ent.ProductIDs) > 0:
		return r.fromProducts(ctx, tenant, ent.ProductIDs)
	case len(ent.VariantIDs) > 0:
		return r.fromVariants(ctx, tenant, ent.VariantIDs)
	default:
		return r.fromCollections(ctx, tenant, ent.CollectionIDs)
	}
}

func (r *Resolver) fromProducts(ctx context.Context, tenant *domain.TenantConfig, productIDs []string) ([]string, error) {
	var barcodes []string
	err := r.drain(ctx, productIDs, func(id string) (stepOutcome, error) {
		variants, err := r.catalog.GetProductVariants(ctx, tenant, id)
		if out := classifyStep(err); out != stepResolved {
			return out, err
		}
		for _, v := range variants {
			if v.Barcode != "" {
				barcodes = append(barcodes, v.Barcode)
			}
		}
		return stepResolved, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fromProducts: %w", err)
	}
	return barcodes, nil
}

func (r *Resolver) fromVariants(ctx context.Context, tenant *domain.TenantConfig, variantIDs []string) ([]string, error) {
	var barcodes []string
	err := r.drain(ctx, variantIDs, func(id string) (stepOutcome, error) {
		variant, err := r.catalog.GetVariant(ctx, tenant, id)
		if out := classifyStep(err); out != stepResolved {
			return out, err
		}
		// Variants without a barcode have no sellable identity downstream
		// and are excluded without comment.
		if variant.Barcode != "" {
			barcodes = append(barcodes, variant.Barcode)
		}
		return stepResolved, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fromVariants: %w", err)
	}
	return barcodes, nil
}

func (r *Resolver) fromCollections(ctx context.Context, tenant *domain.TenantConfig, collectionIDs []string) ([]string, error) {
	var barcodes []string
	err := r.drain(ctx, collectionIDs, func(id string) (stepOutcome, error) {
		productIDs, err := r.catalog.GetCollectionProductIDs(ctx, tenant, id)
		if out := classifyStep(err); out != stepResolved {
			return out, err
		}
		resolved, err := r.fromProducts(ctx, tenant, productIDs)
		if err != nil {
			return stepFatal, err
		}
		barcodes = append(barcodes, resolved...)
		return stepResolved, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fromCollections: %w", err)
	}
	return barcodes, nil
}

// drain works the identifier queue front to back. Rate-limited
// identifiers go back to the front and wait out the delay; there is no
// attempt cap, rate limits are expected to clear. Other upstream errors
// drop just that identifier with an alert. Transport failures abort the
// whole resolution as a permanent error.
func (r *Resolver) drain(ctx context.Context, ids []string, fetch func(id string) (stepOutcome, error)) error {
	log := logging.FromContext(ctx)

	queue := append([]string(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		outcome, err := fetch(id)
		switch outcome {
		case stepResolved:
		case stepRetry:
			log.Info("rate limited by catalog API, retrying", "id", id, "delay", r.retryDelay)
			queue = append([]string{id}, queue...)
			if err := r.pause(ctx); err != nil {
				return err
			}
		case stepSkip:
			log.Error("catalog lookup rejected, skipping identifier", "id", id, "error", err)
			r.alerts.Notify(ctx, fmt.Sprintf("promotion sync: catalog lookup for %s failed: %v", id, err))
		case stepFatal:
			if domain.IsPermanent(err) {
				return err
			}
			return domain.Permanent(fmt.Errorf("catalog lookup for %s: %w", id, err))
		}
	}
	return nil
}

func classifyStep(err error) stepOutcome {
	if err == nil {
		return stepResolved
	}
	if shopify.IsRateLimited(err) {
		return stepRetry
	}
	var se *shopify.StatusError
	if errors.As(err, &se) {
		return stepSkip
	}
	return stepFatal
}

func (r *Resolver) pause(ctx context.Context) error {
	timer := time.NewTimer(r.retryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
