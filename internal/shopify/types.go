package shopify

import (
	"encoding/json"
	"strings"
)

// PriceRule is the flat discount shape delivered by price_rules/* webhooks
// and the price rules REST listing.
type PriceRule struct {
	ID                        int64          `json:"id"`
	Title                     string         `json:"title"`
	ValueType                 string         `json:"value_type"`
	Value                     string         `json:"value"`
	TargetType                string         `json:"target_type"`
	TargetSelection           string         `json:"target_selection"`
	AllocationMethod          string         `json:"allocation_method"`
	OncePerCustomer           bool           `json:"once_per_customer"`
	StartsAt                  string         `json:"starts_at"`
	EndsAt                    *string        `json:"ends_at"`
	EntitledProductIDs        []int64        `json:"entitled_product_ids"`
	EntitledVariantIDs        []int64        `json:"entitled_variant_ids"`
	EntitledCollectionIDs     []int64        `json:"entitled_collection_ids"`
	PrerequisiteCollectionIDs []int64        `json:"prerequisite_collection_ids"`
	PrerequisiteSubtotalRange *SubtotalRange `json:"prerequisite_subtotal_range"`
}

type SubtotalRange struct {
	GreaterThanOrEqualTo string `json:"greater_than_or_equal_to"`
}

// ReferencesCollection reports whether the rule entitles or requires the
// given collection.
func (pr *PriceRule) ReferencesCollection(collectionID int64) bool {
	for _, id := range pr.EntitledCollectionIDs {
		if id == collectionID {
			return true
		}
	}
	for _, id := range pr.PrerequisiteCollectionIDs {
		if id == collectionID {
			return true
		}
	}
	return false
}

// Automatic discount typenames from the GraphQL Admin API.
const (
	TypeDiscountAutomaticBasic = "DiscountAutomaticBasic"
	TypeDiscountAutomaticBxgy  = "DiscountAutomaticBxgy"

	TypeDiscountPercentage = "DiscountPercentage"
	TypeDiscountAmount     = "DiscountAmount"
	TypeDiscountQuantity   = "DiscountQuantity"
	TypeDiscountOnQuantity = "DiscountOnQuantity"
)

// AutomaticDiscount is the nested graph shape of an automatic discount
// node. Bxgy nodes carry both customerBuys and customerGets sides.
type AutomaticDiscount struct {
	Typename           string              `json:"__typename"`
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Summary            string              `json:"summary"`
	Status             string              `json:"status"`
	StartsAt           string              `json:"startsAt"`
	EndsAt             *string             `json:"endsAt"`
	MinimumRequirement *MinimumRequirement `json:"minimumRequirement"`
	CustomerGets       *CustomerSide       `json:"customerGets"`
	CustomerBuys       *CustomerSide       `json:"customerBuys"`
}

func (d *AutomaticDiscount) IsBxgy() bool {
	return d.Typename == TypeDiscountAutomaticBxgy || d.CustomerBuys != nil
}

type MinimumRequirement struct {
	Subtotal *MoneyV2        `json:"greaterThanOrEqualToSubtotal"`
	Quantity json.RawMessage `json:"greaterThanOrEqualToQuantity"`
}

type CustomerSide struct {
	Value DiscountValue `json:"value"`
	Items ItemsBlock    `json:"items"`
}

// DiscountValue is the polymorphic value block inside customerGets /
// customerBuys. Quantity is raw because its shape depends on the
// typename: DiscountOnQuantity nests {"quantity": {...}}, while
// DiscountQuantity carries a bare scalar.
type DiscountValue struct {
	Typename   string          `json:"__typename"`
	Percentage float64         `json:"percentage"`
	Amount     *MoneyV2        `json:"amount"`
	Quantity   json.RawMessage `json:"quantity"`
}

// QuantityValue flattens the quantity block to a string, whatever its
// nesting. Returns "" when absent or undecodable.
func (v DiscountValue) QuantityValue() string {
	if len(v.Quantity) == 0 {
		return ""
	}
	var nested struct {
		Quantity json.Number `json:"quantity"`
	}
	if err := json.Unmarshal(v.Quantity, &nested); err == nil && nested.Quantity != "" {
		return nested.Quantity.String()
	}
	var scalar json.Number
	if err := json.Unmarshal(v.Quantity, &scalar); err == nil {
		return scalar.String()
	}
	var s string
	if err := json.Unmarshal(v.Quantity, &s); err == nil {
		return s
	}
	return ""
}

type MoneyV2 struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type ItemsBlock struct {
	Collections     *EdgeSet `json:"collections"`
	Products        *EdgeSet `json:"products"`
	ProductVariants *EdgeSet `json:"productVariants"`
}

type EdgeSet struct {
	Edges []Edge `json:"edges"`
}

type Edge struct {
	Node EdgeNode `json:"node"`
}

type EdgeNode struct {
	ID string `json:"id"`
}

// IDs returns the numeric tail of every edge's GID.
func (s *EdgeSet) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Edges))
	for _, e := range s.Edges {
		ids = append(ids, ExtractID(e.Node.ID))
	}
	return ids
}

// ExtractID returns the numeric ID from a Shopify GID string, e.g.
// "gid://shopify/Product/12345" -> "12345".
func ExtractID(gid string) string {
	parts := strings.Split(gid, "/")
	return parts[len(parts)-1]
}

// Variant is the subset of the REST variant resource this service reads.
type Variant struct {
	ID              int64  `json:"id"`
	Barcode         string `json:"barcode"`
	SKU             string `json:"sku"`
	InventoryItemID int64  `json:"inventory_item_id"`
}

// Product is the subset of the products/* webhook payload this service
// reads.
type Product struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	Variants []Variant `json:"variants"`
}

// InventoryLevel is the inventory_levels/update webhook payload.
// Available is a pointer: null means inventory tracking is disabled for
// the item.
type InventoryLevel struct {
	InventoryItemID int64  `json:"inventory_item_id"`
	LocationID      int64  `json:"location_id"`
	Available       *int64 `json:"available"`
	UpdatedAt       string `json:"updated_at"`
}
