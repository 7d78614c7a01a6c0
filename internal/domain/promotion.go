package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PromoFamily string

const (
	FamilyItemScoped      PromoFamily = "e"
	FamilyBasketThreshold PromoFamily = "b"
	FamilyCombo           PromoFamily = "rgdt"
	FamilyNone            PromoFamily = ""
)

type DiscountType string

const (
	DiscountPercentOff DiscountType = "percent_off"
	DiscountValueOff   DiscountType = "value_off"
)

type AllocationStrategy string

const (
	AllocationAllItems AllocationStrategy = "all_items"
	AllocationEachItem AllocationStrategy = "each_item"
)

type SelectionCriteria string

const (
	SelectLeastExpensive SelectionCriteria = "least_expensive"
	SelectMostExpensive  SelectionCriteria = "most_expensive"
)

// NodeAll is the wildcard node identifier matching every sellable unit.
const NodeAll = "all"

// MaxApplicationLimit is the cap used when a rule is not once-per-customer.
const MaxApplicationLimit = 65535

// Node is a single eligibility entry inside a Group: a concrete barcode
// or the NodeAll wildcard.
type Node struct {
	ID string `json:"node_id"`
}

// Group is an ordered set of Nodes plus a minimum (and optional maximum)
// quantity-or-value threshold.
type Group struct {
	Name          string           `json:"name"`
	QtyOrValueMin decimal.Decimal  `json:"qty_or_value_min"`
	QtyOrValueMax *decimal.Decimal `json:"qty_or_value_max,omitempty"`
	Nodes         []Node           `json:"nodes"`
}

// Promotion is the canonical promotion object published to the downstream
// promotions service. Promotions are transient: rebuilt on every webhook
// and never persisted here. PromoID reuses the upstream rule identifier.
type Promotion struct {
	PromoID             string             `json:"promo_id"`
	Retailer            string             `json:"retailer"`
	StoreIDs            []string           `json:"stores"`
	Family              PromoFamily        `json:"family"`
	Title               string             `json:"title"`
	Description         string             `json:"description,omitempty"`
	DateStart           time.Time          `json:"date_start"`
	DateEnd             time.Time          `json:"date_end"`
	IsActive            bool               `json:"is_active"`
	DiscountType        DiscountType       `json:"discount_type"`
	DiscountValue       decimal.Decimal    `json:"discount_value"`
	EvaluatePriority    int                `json:"evaluate_priority"`
	MaxApplicationLimit int                `json:"max_application_limit"`
	Allocation          AllocationStrategy `json:"discount_type_strategy"`
	Selection           SelectionCriteria  `json:"group_item_selection_criteria"`
	Layer               int                `json:"layer"`
	Groups              []Group            `json:"groups"`
}

func (p *Promotion) AddStore(storeID string) {
	p.StoreIDs = append(p.StoreIDs, storeID)
}
