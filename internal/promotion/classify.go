package promotion

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/retailops/shopify-sync/internal/domain"
	"github.com/retailops/shopify-sync/internal/shopify"
)

// ClassifyFlat maps a flat price rule to a promotion family. Rules this
// integration does not support (shipping-scoped and anything else that
// is not a line-item rule) classify to FamilyNone and are skipped by the
// caller, never failed.
func ClassifyFlat(pr *shopify.PriceRule) domain.PromoFamily {
	if pr.TargetType != "line_item" {
		return domain.FamilyNone
	}
	switch pr.TargetSelection {
	case "entitled":
		return domain.FamilyItemScoped
	case "all":
		return domain.FamilyBasketThreshold
	}
	return domain.FamilyNone
}

// ClassifyGraph maps an automatic discount node to a family. A buy/get
// pair is always Combo; a minimum-subtotal requirement upgrades a basic
// discount to BasketThreshold; everything else is ItemScoped.
func ClassifyGraph(ad *shopify.AutomaticDiscount) domain.PromoFamily {
	if ad.IsBxgy() {
		return domain.FamilyCombo
	}
	if ad.MinimumRequirement != nil && ad.MinimumRequirement.Subtotal != nil {
		return domain.FamilyBasketThreshold
	}
	return domain.FamilyItemScoped
}

// NormalizeFlat converts a price rule into the canonical rule shape for
// the given family. Unknown discount encodings are build-fatal; the
// translation engine never substitutes a default monetary value.
func NormalizeFlat(pr *shopify.PriceRule, family domain.PromoFamily) (*domain.CanonicalRule, error) {
	startsAt, endsAt, err := parseWindowStrings(pr.StartsAt, pr.EndsAt)
	if err != nil {
		return nil, err
	}

	rule := &domain.CanonicalRule{
		ID:              strconv.FormatInt(pr.ID, 10),
		Title:           pr.Title,
		Description:     pr.Title,
		StartsAt:        startsAt,
		EndsAt:          endsAt,
		Family:          family,
		OncePerCustomer: pr.OncePerCustomer,
		Allocation:      allocationFromMethod(pr.AllocationMethod),
	}

	value, err := decimal.NewFromString(pr.Value)
	if err != nil {
		return nil, fmt.Errorf("price rule %d: value %q: %w", pr.ID, pr.Value, domain.ErrUnknownDiscount)
	}
	rule.Value = value.Abs().Round(2)

	switch pr.ValueType {
	case "percentage":
		rule.ValueType = domain.DiscountPercentOff
	case "fixed_amount":
		rule.ValueType = domain.DiscountValueOff
	default:
		return nil, fmt.Errorf("price rule %d: value_type %q: %w", pr.ID, pr.ValueType, domain.ErrUnknownDiscount)
	}

	switch family {
	case domain.FamilyItemScoped:
		rule.Entitled = &domain.Entitlement{
			ProductIDs:    formatIDs(pr.EntitledProductIDs),
			VariantIDs:    formatIDs(pr.EntitledVariantIDs),
			CollectionIDs: formatIDs(pr.EntitledCollectionIDs),
		}
	case domain.FamilyBasketThreshold:
		if r := pr.PrerequisiteSubtotalRange; r != nil && r.GreaterThanOrEqualTo != "" {
			min, err := decimal.NewFromString(r.GreaterThanOrEqualTo)
			if err != nil {
				return nil, fmt.Errorf("price rule %d: subtotal range %q: %w", pr.ID, r.GreaterThanOrEqualTo, domain.ErrUnknownDiscount)
			}
			rule.MinSubtotal = &min
		}
	}

	return rule, nil
}

// NormalizeGraph converts an automatic discount node into the canonical
// rule shape for the given family.
func NormalizeGraph(ad *shopify.AutomaticDiscount, family domain.PromoFamily) (*domain.CanonicalRule, error) {
	startsAt, endsAt, err := parseWindowStrings(ad.StartsAt, ad.EndsAt)
	if err != nil {
		return nil, err
	}

	rule := &domain.CanonicalRule{
		ID:          shopify.ExtractID(ad.ID),
		Title:       ad.Title,
		Description: ad.Summary,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		Family:      family,
		Allocation:  domain.AllocationAllItems,
	}

	if ad.CustomerGets == nil {
		return nil, fmt.Errorf("discount %s: missing customerGets: %w", ad.ID, domain.ErrUnknownDiscount)
	}

	valueType, value, err := graphDiscountValue(ad.CustomerGets.Value, family == domain.FamilyCombo)
	if err != nil {
		return nil, fmt.Errorf("discount %s: %w", ad.ID, err)
	}
	rule.ValueType = valueType
	rule.Value = value

	if mr := ad.MinimumRequirement; mr != nil {
		switch {
		case mr.Subtotal != nil:
			min, err := decimal.NewFromString(mr.Subtotal.Amount)
			if err != nil {
				return nil, fmt.Errorf("discount %s: minimum subtotal %q: %w", ad.ID, mr.Subtotal.Amount, domain.ErrUnknownDiscount)
			}
			rule.MinSubtotal = &min
			rule.OncePerCustomer = true
		case len(mr.Quantity) > 0:
			var qn json.Number
			if err := json.Unmarshal(mr.Quantity, &qn); err != nil {
				return nil, fmt.Errorf("discount %s: minimum quantity %q: %w", ad.ID, mr.Quantity, domain.ErrUnknownDiscount)
			}
			qty, err := decimal.NewFromString(qn.String())
			if err != nil {
				return nil, fmt.Errorf("discount %s: minimum quantity %q: %w", ad.ID, qn, domain.ErrUnknownDiscount)
			}
			rule.MinQuantity = &qty
		}
	}

	if family == domain.FamilyCombo {
		if ad.CustomerBuys == nil {
			return nil, fmt.Errorf("discount %s: missing customerBuys: %w", ad.ID, domain.ErrUnknownDiscount)
		}
		rule.Get = entitlementFromItems(ad.CustomerGets.Items)
		rule.Buy = entitlementFromItems(ad.CustomerBuys.Items)

		getMin, err := sideMinimum(ad.CustomerGets.Value)
		if err != nil {
			return nil, fmt.Errorf("discount %s: customerGets: %w", ad.ID, err)
		}
		buyMin, err := sideMinimum(ad.CustomerBuys.Value)
		if err != nil {
			return nil, fmt.Errorf("discount %s: customerBuys: %w", ad.ID, err)
		}
		rule.GetMin = getMin
		rule.BuyMin = buyMin
	} else {
		rule.Entitled = entitlementFromItems(ad.CustomerGets.Items)
	}

	return rule, nil
}

// graphDiscountValue reads the discount type and magnitude from a
// customerGets value block. In combo rules a DiscountOnQuantity block
// means "free item" and is encoded as a 100% percentage discount.
func graphDiscountValue(v shopify.DiscountValue, combo bool) (domain.DiscountType, decimal.Decimal, error) {
	switch v.Typename {
	case shopify.TypeDiscountPercentage:
		pct := decimal.NewFromFloat(v.Percentage).Mul(decimal.NewFromInt(100))
		return domain.DiscountPercentOff, pct.Round(2), nil
	case shopify.TypeDiscountAmount:
		if v.Amount == nil {
			return "", decimal.Zero, domain.ErrUnknownDiscount
		}
		amt, err := decimal.NewFromString(v.Amount.Amount)
		if err != nil {
			return "", decimal.Zero, fmt.Errorf("amount %q: %w", v.Amount.Amount, domain.ErrUnknownDiscount)
		}
		return domain.DiscountValueOff, amt.Abs().Round(2), nil
	case shopify.TypeDiscountOnQuantity:
		if combo {
			return domain.DiscountPercentOff, decimal.NewFromInt(100), nil
		}
	}
	return "", decimal.Zero, fmt.Errorf("typename %q: %w", v.Typename, domain.ErrUnknownDiscount)
}

// sideMinimum extracts the group quantity-or-value minimum from one side
// of a buy/get pair.
func sideMinimum(v shopify.DiscountValue) (decimal.Decimal, error) {
	switch v.Typename {
	case shopify.TypeDiscountPercentage:
		return decimal.NewFromFloat(v.Percentage).Mul(decimal.NewFromInt(100)).Round(2), nil
	case shopify.TypeDiscountOnQuantity, shopify.TypeDiscountQuantity:
		q := v.QuantityValue()
		if q == "" {
			return decimal.Zero, fmt.Errorf("quantity block: %w", domain.ErrUnknownDiscount)
		}
		min, err := decimal.NewFromString(q)
		if err != nil {
			return decimal.Zero, fmt.Errorf("quantity %q: %w", q, domain.ErrUnknownDiscount)
		}
		return min, nil
	case shopify.TypeDiscountAmount:
		if v.Amount == nil {
			return decimal.Zero, domain.ErrUnknownDiscount
		}
		min, err := decimal.NewFromString(v.Amount.Amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("amount %q: %w", v.Amount.Amount, domain.ErrUnknownDiscount)
		}
		return min, nil
	}
	return decimal.Zero, fmt.Errorf("typename %q: %w", v.Typename, domain.ErrUnknownDiscount)
}

func entitlementFromItems(items shopify.ItemsBlock) *domain.Entitlement {
	return &domain.Entitlement{
		ProductIDs:    items.Products.IDs(),
		VariantIDs:    items.ProductVariants.IDs(),
		CollectionIDs: items.Collections.IDs(),
	}
}

func allocationFromMethod(method string) domain.AllocationStrategy {
	if method == "each" {
		return domain.AllocationEachItem
	}
	return domain.AllocationAllItems
}

func formatIDs(ids []int64) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strconv.FormatInt(id, 10))
	}
	return out
}

func parseWindowStrings(startsAt string, endsAt *string) (time.Time, *time.Time, error) {
	start, err := time.Parse(time.RFC3339, startsAt)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("starts_at %q: %w", startsAt, err)
	}
	if endsAt == nil || *endsAt == "" {
		return start, nil, nil
	}
	end, err := time.Parse(time.RFC3339, *endsAt)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("ends_at %q: %w", *endsAt, err)
	}
	return start, &end, nil
}
