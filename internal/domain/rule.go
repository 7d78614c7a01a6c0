package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entitlement describes which catalog objects a rule applies to, prior to
// resolution into concrete barcodes. At most one of the three reference
// lists is consulted, in priority order product > variant > collection.
type Entitlement struct {
	ProductIDs    []string
	VariantIDs    []string
	CollectionIDs []string
}

func (e Entitlement) Empty() bool {
	return len(e.ProductIDs) == 0 && len(e.VariantIDs) == 0 && len(e.CollectionIDs) == 0
}

// CanonicalRule is the normalized view of an upstream discount rule. Both
// source shapes (the flat price-rule format and the nested automatic
// discount format) unify into this before promotion construction.
type CanonicalRule struct {
	ID              string
	Title           string
	Description     string
	StartsAt        time.Time
	EndsAt          *time.Time
	Family          PromoFamily
	ValueType       DiscountType
	Value           decimal.Decimal
	OncePerCustomer bool
	Allocation      AllocationStrategy

	// Item-scoped rules.
	Entitled *Entitlement

	// Basket-threshold rules.
	MinSubtotal *decimal.Decimal

	// Minimum item quantity declared by the rule, when any.
	MinQuantity *decimal.Decimal

	// Combo rules: requisite ("buy") and target ("get") sides with their
	// group minimums.
	Buy    *Entitlement
	Get    *Entitlement
	BuyMin decimal.Decimal
	GetMin decimal.Decimal
}
