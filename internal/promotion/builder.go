package promotion

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/retailops/shopify-sync/internal/domain"
)

// Rules with no end date run until this sentinel.
const defaultEndDate = "2050-01-01T16:39:39+10:00"

// Both window bounds are widened by one grace interval so a promotion
// never expires at the till before it expires upstream.
const graceInterval = 24 * time.Hour

// maxPriority is the lowest-possible evaluation priority, assigned when
// a discount magnitude is zero or unusable.
const maxPriority = 32767

// Builder assembles canonical Promotions from normalized rules,
// resolving entitlements through the SKU resolver on demand.
type Builder struct {
	resolver *Resolver
}

func NewBuilder(resolver *Resolver) *Builder {
	return &Builder{resolver: resolver}
}

// Build produces the Promotion for rule on behalf of tenant. The
// promotion is transient: the caller publishes it downstream and drops
// it.
func (b *Builder) Build(ctx context.Context, tenant *domain.TenantConfig, rule *domain.CanonicalRule) (*domain.Promotion, error) {
	switch rule.Family {
	case domain.FamilyItemScoped:
		return b.buildItemScoped(ctx, tenant, rule)
	case domain.FamilyBasketThreshold:
		return b.buildBasketThreshold(tenant, rule)
	case domain.FamilyCombo:
		return b.buildCombo(ctx, tenant, rule)
	}
	return nil, fmt.Errorf("Build: unsupported family %q for rule %s", rule.Family, rule.ID)
}

func (b *Builder) buildItemScoped(ctx context.Context, tenant *domain.TenantConfig, rule *domain.CanonicalRule) (*domain.Promotion, error) {
	promo := newBasePromotion(tenant, rule)
	promo.Layer = 1
	promo.Allocation = rule.Allocation
	promo.Selection = domain.SelectLeastExpensive

	groupMin := decimal.NewFromInt(1)
	if rule.MinQuantity != nil {
		groupMin = *rule.MinQuantity
	}

	barcodes, err := b.resolver.Resolve(ctx, tenant, rule.Entitled)
	if err != nil {
		return nil, fmt.Errorf("buildItemScoped: rule %s: %w", rule.ID, err)
	}

	group, err := itemGroup(rule.ID, groupMin, barcodes)
	if err != nil {
		return nil, fmt.Errorf("buildItemScoped: rule %s: %w", rule.ID, err)
	}
	promo.Groups = []domain.Group{group}

	return promo, nil
}

func (b *Builder) buildBasketThreshold(tenant *domain.TenantConfig, rule *domain.CanonicalRule) (*domain.Promotion, error) {
	if rule.Title == "" {
		return nil, fmt.Errorf("buildBasketThreshold: rule %s: %w", rule.ID, domain.ErrTitleRequired)
	}

	promo := newBasePromotion(tenant, rule)
	promo.Layer = 100
	promo.Allocation = domain.AllocationAllItems
	// Basket rules discount the most expensive eligible item first.
	promo.Selection = domain.SelectMostExpensive

	groupMin := decimal.NewFromInt(1)
	if rule.MinSubtotal != nil {
		groupMin = *rule.MinSubtotal
	}

	promo.Groups = []domain.Group{{
		Name:          rule.ID,
		QtyOrValueMin: groupMin,
		Nodes:         []domain.Node{{ID: domain.NodeAll}},
	}}

	return promo, nil
}

func (b *Builder) buildCombo(ctx context.Context, tenant *domain.TenantConfig, rule *domain.CanonicalRule) (*domain.Promotion, error) {
	promo := newBasePromotion(tenant, rule)
	promo.Layer = 1
	promo.Allocation = domain.AllocationAllItems
	promo.Selection = domain.SelectLeastExpensive

	buyBarcodes, err := b.resolver.Resolve(ctx, tenant, rule.Buy)
	if err != nil {
		return nil, fmt.Errorf("buildCombo: rule %s: buy side: %w", rule.ID, err)
	}
	getBarcodes, err := b.resolver.Resolve(ctx, tenant, rule.Get)
	if err != nil {
		return nil, fmt.Errorf("buildCombo: rule %s: get side: %w", rule.ID, err)
	}

	buyGroup, err := itemGroup("g1", rule.BuyMin, buyBarcodes)
	if err != nil {
		return nil, fmt.Errorf("buildCombo: rule %s: buy side: %w", rule.ID, err)
	}
	getGroup, err := itemGroup("g2", rule.GetMin, getBarcodes)
	if err != nil {
		return nil, fmt.Errorf("buildCombo: rule %s: get side: %w", rule.ID, err)
	}
	promo.Groups = []domain.Group{buyGroup, getGroup}

	return promo, nil
}

func newBasePromotion(tenant *domain.TenantConfig, rule *domain.CanonicalRule) *domain.Promotion {
	dateStart, dateEnd := activeWindow(rule.StartsAt, rule.EndsAt)

	promo := &domain.Promotion{
		PromoID:          rule.ID,
		Retailer:         tenant.PromoRetailer(),
		Family:           rule.Family,
		Title:            rule.Title,
		Description:      rule.Description,
		DateStart:        dateStart,
		DateEnd:          dateEnd,
		IsActive:         withinWindow(dateStart, dateEnd),
		DiscountType:     rule.ValueType,
		DiscountValue:    rule.Value,
		EvaluatePriority: evaluatePriority(rule.ValueType, rule.Value),
	}
	promo.AddStore(tenant.StoreID.String())

	promo.MaxApplicationLimit = domain.MaxApplicationLimit
	if rule.OncePerCustomer {
		promo.MaxApplicationLimit = 1
	}

	return promo
}

// activeWindow applies the far-future default and the grace widening to
// the rule's raw bounds.
func activeWindow(startsAt time.Time, endsAt *time.Time) (time.Time, time.Time) {
	end := endsAt
	if end == nil {
		sentinel, _ := time.Parse(time.RFC3339, defaultEndDate)
		end = &sentinel
	}
	return startsAt.Add(-graceInterval), end.Add(graceInterval)
}

func withinWindow(start, end time.Time) bool {
	now := time.Now().UTC()
	return !now.Before(start) && !now.After(end)
}

// evaluatePriority orders promotions so that steeper discounts evaluate
// first (lower value = earlier). Percentage rules map 100% to 0;
// fixed-amount rules divide into a fixed numerator so bigger amounts
// land earlier. Unusable magnitudes park at the bottom instead of
// failing the build.
func evaluatePriority(dt domain.DiscountType, value decimal.Decimal) int {
	switch dt {
	case domain.DiscountPercentOff:
		p := 100 - value.IntPart()
		if p < 0 {
			return 0
		}
		return int(p)
	case domain.DiscountValueOff:
		if value.Sign() <= 0 {
			return maxPriority
		}
		p := decimal.NewFromInt(10000).Div(value).IntPart()
		if p > maxPriority {
			return maxPriority
		}
		return int(p)
	}
	return maxPriority
}

// itemGroup builds a node group from resolved barcodes. A group that
// resolved to nothing would publish a promotion that can never match;
// the build aborts instead.
func itemGroup(name string, min decimal.Decimal, barcodes []string) (domain.Group, error) {
	group := domain.Group{Name: name, QtyOrValueMin: min}
	for _, barcode := range barcodes {
		if barcode == "" {
			continue
		}
		group.Nodes = append(group.Nodes, domain.Node{ID: barcode})
	}
	if len(group.Nodes) == 0 {
		return domain.Group{}, domain.ErrNoEligibleItems
	}
	return group, nil
}
