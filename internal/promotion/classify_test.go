package promotion

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/shopify-sync/internal/domain"
	"github.com/retailops/shopify-sync/internal/shopify"
)

func strPtr(s string) *string { return &s }

func TestClassifyFlat(t *testing.T) {
	tests := []struct {
		name string
		rule shopify.PriceRule
		want domain.PromoFamily
	}{
		{
			name: "entitled line items",
			rule: shopify.PriceRule{TargetType: "line_item", TargetSelection: "entitled"},
			want: domain.FamilyItemScoped,
		},
		{
			name: "all line items",
			rule: shopify.PriceRule{TargetType: "line_item", TargetSelection: "all"},
			want: domain.FamilyBasketThreshold,
		},
		{
			name: "shipping rule",
			rule: shopify.PriceRule{TargetType: "shipping_line", TargetSelection: "all"},
			want: domain.FamilyNone,
		},
		{
			name: "unknown selection",
			rule: shopify.PriceRule{TargetType: "line_item", TargetSelection: "prerequisite"},
			want: domain.FamilyNone,
		},
		{
			name: "empty rule",
			rule: shopify.PriceRule{},
			want: domain.FamilyNone,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyFlat(&tc.rule))
		})
	}
}

func TestClassifyGraph(t *testing.T) {
	tests := []struct {
		name     string
		discount shopify.AutomaticDiscount
		want     domain.PromoFamily
	}{
		{
			name:     "basic discount",
			discount: shopify.AutomaticDiscount{Typename: shopify.TypeDiscountAutomaticBasic},
			want:     domain.FamilyItemScoped,
		},
		{
			name: "basic with subtotal minimum",
			discount: shopify.AutomaticDiscount{
				Typename: shopify.TypeDiscountAutomaticBasic,
				MinimumRequirement: &shopify.MinimumRequirement{
					Subtotal: &shopify.MoneyV2{Amount: "50.0"},
				},
			},
			want: domain.FamilyBasketThreshold,
		},
		{
			name:     "bxgy by typename",
			discount: shopify.AutomaticDiscount{Typename: shopify.TypeDiscountAutomaticBxgy},
			want:     domain.FamilyCombo,
		},
		{
			name: "bxgy by customerBuys presence trumps subtotal",
			discount: shopify.AutomaticDiscount{
				CustomerBuys: &shopify.CustomerSide{},
				MinimumRequirement: &shopify.MinimumRequirement{
					Subtotal: &shopify.MoneyV2{Amount: "50.0"},
				},
			},
			want: domain.FamilyCombo,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyGraph(&tc.discount))
		})
	}
}

func TestNormalizeFlat(t *testing.T) {
	pr := &shopify.PriceRule{
		ID:                 101,
		Title:              "Summer Sale",
		ValueType:          "percentage",
		Value:              "-15.0",
		TargetType:         "line_item",
		TargetSelection:    "entitled",
		AllocationMethod:   "each",
		OncePerCustomer:    true,
		StartsAt:           "2026-06-01T00:00:00Z",
		EndsAt:             strPtr("2026-06-30T00:00:00Z"),
		EntitledProductIDs: []int64{111, 222},
	}

	rule, err := NormalizeFlat(pr, domain.FamilyItemScoped)
	require.NoError(t, err)

	assert.Equal(t, "101", rule.ID)
	assert.Equal(t, "Summer Sale", rule.Title)
	assert.Equal(t, domain.DiscountPercentOff, rule.ValueType)
	assert.True(t, rule.Value.Equal(decimal.NewFromInt(15)), "negative magnitude is stored absolute, got %s", rule.Value)
	assert.True(t, rule.OncePerCustomer)
	assert.Equal(t, domain.AllocationEachItem, rule.Allocation)
	require.NotNil(t, rule.Entitled)
	assert.Equal(t, []string{"111", "222"}, rule.Entitled.ProductIDs)
	require.NotNil(t, rule.EndsAt)
}

func TestNormalizeFlatBasketThreshold(t *testing.T) {
	pr := &shopify.PriceRule{
		ID:              202,
		Title:           "Spend 50 save 10",
		ValueType:       "fixed_amount",
		Value:           "-10.0",
		TargetType:      "line_item",
		TargetSelection: "all",
		StartsAt:        "2026-06-01T00:00:00Z",
		PrerequisiteSubtotalRange: &shopify.SubtotalRange{
			GreaterThanOrEqualTo: "50.0",
		},
	}

	rule, err := NormalizeFlat(pr, domain.FamilyBasketThreshold)
	require.NoError(t, err)

	assert.Equal(t, domain.DiscountValueOff, rule.ValueType)
	require.NotNil(t, rule.MinSubtotal)
	assert.True(t, rule.MinSubtotal.Equal(decimal.NewFromInt(50)))
	assert.Nil(t, rule.EndsAt)
}

func TestNormalizeFlatUnknownValueType(t *testing.T) {
	pr := &shopify.PriceRule{
		ID:        303,
		ValueType: "mystery",
		Value:     "5.0",
		StartsAt:  "2026-06-01T00:00:00Z",
	}

	_, err := NormalizeFlat(pr, domain.FamilyItemScoped)
	require.ErrorIs(t, err, domain.ErrUnknownDiscount)
}

func TestNormalizeGraphBasic(t *testing.T) {
	ad := &shopify.AutomaticDiscount{
		Typename: shopify.TypeDiscountAutomaticBasic,
		ID:       "gid://shopify/DiscountAutomaticNode/555",
		Title:    "Tees 20% off",
		Summary:  "20% off all tees",
		StartsAt: "2026-06-01T00:00:00Z",
		CustomerGets: &shopify.CustomerSide{
			Value: shopify.DiscountValue{
				Typename:   shopify.TypeDiscountPercentage,
				Percentage: 0.2,
			},
			Items: shopify.ItemsBlock{
				Products: &shopify.EdgeSet{Edges: []shopify.Edge{
					{Node: shopify.EdgeNode{ID: "gid://shopify/Product/111"}},
				}},
			},
		},
	}

	rule, err := NormalizeGraph(ad, domain.FamilyItemScoped)
	require.NoError(t, err)

	assert.Equal(t, "555", rule.ID)
	assert.Equal(t, domain.DiscountPercentOff, rule.ValueType)
	assert.True(t, rule.Value.Equal(decimal.NewFromInt(20)), "fractional percentage scales to percent, got %s", rule.Value)
	require.NotNil(t, rule.Entitled)
	assert.Equal(t, []string{"111"}, rule.Entitled.ProductIDs)
}

func TestNormalizeGraphSubtotalMinimum(t *testing.T) {
	ad := &shopify.AutomaticDiscount{
		Typename: shopify.TypeDiscountAutomaticBasic,
		ID:       "gid://shopify/DiscountAutomaticNode/556",
		Title:    "Spend 100",
		StartsAt: "2026-06-01T00:00:00Z",
		MinimumRequirement: &shopify.MinimumRequirement{
			Subtotal: &shopify.MoneyV2{Amount: "100.0"},
		},
		CustomerGets: &shopify.CustomerSide{
			Value: shopify.DiscountValue{
				Typename: shopify.TypeDiscountAmount,
				Amount:   &shopify.MoneyV2{Amount: "10.0"},
			},
		},
	}

	rule, err := NormalizeGraph(ad, domain.FamilyBasketThreshold)
	require.NoError(t, err)

	require.NotNil(t, rule.MinSubtotal)
	assert.True(t, rule.MinSubtotal.Equal(decimal.NewFromInt(100)))
	assert.True(t, rule.OncePerCustomer, "subtotal-gated discounts apply once per customer")
	assert.Equal(t, domain.DiscountValueOff, rule.ValueType)
}

func TestNormalizeGraphBxgy(t *testing.T) {
	ad := &shopify.AutomaticDiscount{
		Typename: shopify.TypeDiscountAutomaticBxgy,
		ID:       "gid://shopify/DiscountAutomaticNode/999",
		Title:    "Buy 2 Get 1 Free",
		StartsAt: "2026-06-01T00:00:00Z",
		CustomerBuys: &shopify.CustomerSide{
			Value: shopify.DiscountValue{
				Typename: shopify.TypeDiscountQuantity,
				Quantity: []byte(`"2"`),
			},
			Items: shopify.ItemsBlock{
				Products: &shopify.EdgeSet{Edges: []shopify.Edge{
					{Node: shopify.EdgeNode{ID: "gid://shopify/Product/111"}},
				}},
			},
		},
		CustomerGets: &shopify.CustomerSide{
			Value: shopify.DiscountValue{
				Typename: shopify.TypeDiscountOnQuantity,
				Quantity: []byte(`{"quantity": 1}`),
			},
			Items: shopify.ItemsBlock{
				Products: &shopify.EdgeSet{Edges: []shopify.Edge{
					{Node: shopify.EdgeNode{ID: "gid://shopify/Product/222"}},
				}},
			},
		},
	}

	rule, err := NormalizeGraph(ad, domain.FamilyCombo)
	require.NoError(t, err)

	// Free item encodes as a full percentage-off.
	assert.Equal(t, domain.DiscountPercentOff, rule.ValueType)
	assert.True(t, rule.Value.Equal(decimal.NewFromInt(100)))

	require.NotNil(t, rule.Buy)
	require.NotNil(t, rule.Get)
	assert.Equal(t, []string{"111"}, rule.Buy.ProductIDs)
	assert.Equal(t, []string{"222"}, rule.Get.ProductIDs)
	assert.True(t, rule.BuyMin.Equal(decimal.NewFromInt(2)))
	assert.True(t, rule.GetMin.Equal(decimal.NewFromInt(1)))
}

func TestNormalizeGraphUnknownValue(t *testing.T) {
	ad := &shopify.AutomaticDiscount{
		Typename: shopify.TypeDiscountAutomaticBasic,
		ID:       "gid://shopify/DiscountAutomaticNode/600",
		StartsAt: "2026-06-01T00:00:00Z",
		CustomerGets: &shopify.CustomerSide{
			Value: shopify.DiscountValue{Typename: "DiscountMystery"},
		},
	}

	_, err := NormalizeGraph(ad, domain.FamilyItemScoped)
	require.ErrorIs(t, err, domain.ErrUnknownDiscount)
}
