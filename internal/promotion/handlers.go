package promotion

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/retailops/shopify-sync/internal/dispatch"
	"github.com/retailops/shopify-sync/internal/domain"
	"github.com/retailops/shopify-sync/internal/logging"
	"github.com/retailops/shopify-sync/internal/shopify"
)

type tenantStore interface {
	GetActiveByDomain(ctx context.Context, shopDomain string) (*domain.TenantConfig, error)
}

type ruleLister interface {
	ListPriceRules(ctx context.Context, tenant *domain.TenantConfig) ([]shopify.PriceRule, error)
}

// Handlers owns the promotion sync topics. Each handler translates one
// webhook payload into a single batch against the promotions service.
type Handlers struct {
	tenants tenantStore
	rules   ruleLister
	builder *Builder
	promos  *ServiceClient
}

func NewHandlers(tenants tenantStore, rules ruleLister, builder *Builder, promos *ServiceClient) *Handlers {
	return &Handlers{tenants: tenants, rules: rules, builder: builder, promos: promos}
}

func (h *Handlers) Register(reg *dispatch.Registry) {
	reg.Register("price_rules/create", h.PriceRuleCreate)
	reg.Register("price_rules/update", h.PriceRuleUpdate)
	reg.Register("price_rules/delete", h.PriceRuleDelete)
	reg.Register("collections/update", h.CollectionUpdate)
	reg.Register("discounts/create", h.DiscountCreate)
	reg.Register("discounts/update", h.DiscountUpdate)
	reg.Register("discounts/delete", h.DiscountDelete)
}

// tenantFor loads the delivery's tenant and applies the sync toggle. A
// disabled tenant returns (nil, nil): the delivery succeeds without
// doing anything.
func (h *Handlers) tenantFor(ctx context.Context, delivery *domain.WebhookDelivery) (*domain.TenantConfig, error) {
	tenant, err := h.tenants.GetActiveByDomain(ctx, delivery.ShopDomain)
	if err != nil {
		return nil, fmt.Errorf("tenantFor: %s: %w", delivery.ShopDomain, err)
	}
	if !tenant.SyncPromotions {
		logging.FromContext(ctx).Info("promotion sync disabled for shop, skipping",
			"shop_domain", delivery.ShopDomain, "topic", delivery.Topic)
		return nil, nil
	}
	return tenant, nil
}

// buildFromPriceRule classifies and builds a flat rule. Unclassifiable
// rules return (nil, nil): they are tolerated, not failed.
func (h *Handlers) buildFromPriceRule(ctx context.Context, tenant *domain.TenantConfig, pr *shopify.PriceRule) (*domain.Promotion, error) {
	family := ClassifyFlat(pr)
	if family == domain.FamilyNone {
		logging.FromContext(ctx).Info("price rule not mappable, skipping",
			"price_rule_id", pr.ID,
			"target_type", pr.TargetType,
			"target_selection", pr.TargetSelection)
		return nil, nil
	}

	rule, err := NormalizeFlat(pr, family)
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("buildFromPriceRule: rule %d: %w", pr.ID, err))
	}
	promo, err := h.builder.Build(ctx, tenant, rule)
	if err != nil {
		return nil, fmt.Errorf("buildFromPriceRule: %w", err)
	}
	return promo, nil
}

func (h *Handlers) buildFromDiscount(ctx context.Context, tenant *domain.TenantConfig, ad *shopify.AutomaticDiscount) (*domain.Promotion, error) {
	family := ClassifyGraph(ad)
	if family == domain.FamilyNone {
		logging.FromContext(ctx).Info("automatic discount not mappable, skipping",
			"discount_id", ad.ID, "typename", ad.Typename)
		return nil, nil
	}

	rule, err := NormalizeGraph(ad, family)
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("buildFromDiscount: discount %s: %w", ad.ID, err))
	}
	promo, err := h.builder.Build(ctx, tenant, rule)
	if err != nil {
		return nil, fmt.Errorf("buildFromDiscount: %w", err)
	}
	return promo, nil
}

func (h *Handlers) PriceRuleCreate(ctx context.Context, delivery *domain.WebhookDelivery) error {
	tenant, err := h.tenantFor(ctx, delivery)
	if err != nil || tenant == nil {
		return err
	}

	var pr shopify.PriceRule
	if err := json.Unmarshal(delivery.Payload, &pr); err != nil {
		return domain.Permanent(fmt.Errorf("PriceRuleCreate: parse payload: %w", err))
	}

	promo, err := h.buildFromPriceRule(ctx, tenant, &pr)
	if err != nil || promo == nil {
		return err
	}

	batch := NewBatch(tenant.PromoRetailer())
	batch.Create(promo)
	if err := h.promos.Commit(ctx, batch); err != nil {
		return fmt.Errorf("PriceRuleCreate: %w", err)
	}

	logging.FromContext(ctx).Info("promotion created",
		"promo_id", promo.PromoID, "family", promo.Family, "shop_domain", delivery.ShopDomain)
	return nil
}

func (h *Handlers) PriceRuleUpdate(ctx context.Context, delivery *domain.WebhookDelivery) error {
	tenant, err := h.tenantFor(ctx, delivery)
	if err != nil || tenant == nil {
		return err
	}

	var pr shopify.PriceRule
	if err := json.Unmarshal(delivery.Payload, &pr); err != nil {
		return domain.Permanent(fmt.Errorf("PriceRuleUpdate: parse payload: %w", err))
	}

	promo, err := h.buildFromPriceRule(ctx, tenant, &pr)
	if err != nil || promo == nil {
		return err
	}

	// Delete then create in one batch, so downstream never sees the rule
	// half-applied.
	batch := NewBatch(tenant.PromoRetailer())
	batch.Delete(strconv.FormatInt(pr.ID, 10), tenant.StoreID.String())
	batch.Create(promo)
	if err := h.promos.Commit(ctx, batch); err != nil {
		return fmt.Errorf("PriceRuleUpdate: %w", err)
	}

	logging.FromContext(ctx).Info("promotion replaced",
		"promo_id", promo.PromoID, "family", promo.Family, "shop_domain", delivery.ShopDomain)
	return nil
}

func (h *Handlers) PriceRuleDelete(ctx context.Context, delivery *domain.WebhookDelivery) error {
	tenant, err := h.tenantFor(ctx, delivery)
	if err != nil || tenant == nil {
		return err
	}

	var payload struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(delivery.Payload, &payload); err != nil {
		return domain.Permanent(fmt.Errorf("PriceRuleDelete: parse payload: %w", err))
	}
	if payload.ID == 0 {
		return domain.Permanent(fmt.Errorf("PriceRuleDelete: %w", domain.ErrMissingRuleID))
	}

	batch := NewBatch(tenant.PromoRetailer())
	batch.Delete(strconv.FormatInt(payload.ID, 10), tenant.StoreID.String())
	if err := h.promos.Commit(ctx, batch); err != nil {
		return fmt.Errorf("PriceRuleDelete: %w", err)
	}

	logging.FromContext(ctx).Info("promotion deleted",
		"promo_id", payload.ID, "shop_domain", delivery.ShopDomain)
	return nil
}

// CollectionUpdate rebuilds every promotion whose rule references the
// changed collection. The full rule list is refetched from the catalog
// and filtered here; affected promotions are replaced in one batch.
func (h *Handlers) CollectionUpdate(ctx context.Context, delivery *domain.WebhookDelivery) error {
	tenant, err := h.tenantFor(ctx, delivery)
	if err != nil || tenant == nil {
		return err
	}

	var payload struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(delivery.Payload, &payload); err != nil {
		return domain.Permanent(fmt.Errorf("CollectionUpdate: parse payload: %w", err))
	}
	if payload.ID == 0 {
		return domain.Permanent(fmt.Errorf("CollectionUpdate: %w", domain.ErrMissingRuleID))
	}

	log := logging.FromContext(ctx)

	priceRules, err := h.rules.ListPriceRules(ctx, tenant)
	if err != nil {
		return fmt.Errorf("CollectionUpdate: %w", err)
	}

	batch := NewBatch(tenant.PromoRetailer())
	rebuilt := 0
	for i := range priceRules {
		pr := &priceRules[i]
		if !pr.ReferencesCollection(payload.ID) {
			continue
		}
		promo, err := h.buildFromPriceRule(ctx, tenant, pr)
		if err != nil {
			return fmt.Errorf("CollectionUpdate: rule %d: %w", pr.ID, err)
		}
		if promo == nil {
			continue
		}
		batch.Delete(strconv.FormatInt(pr.ID, 10), tenant.StoreID.String())
		batch.Create(promo)
		rebuilt++
	}

	if rebuilt == 0 {
		log.Info("no promotions reference collection",
			"collection_id", payload.ID, "shop_domain", delivery.ShopDomain)
		return nil
	}

	if err := h.promos.Commit(ctx, batch); err != nil {
		return fmt.Errorf("CollectionUpdate: %w", err)
	}

	log.Info("promotions rebuilt after collection update",
		"collection_id", payload.ID, "rebuilt", rebuilt, "shop_domain", delivery.ShopDomain)
	return nil
}

func (h *Handlers) DiscountCreate(ctx context.Context, delivery *domain.WebhookDelivery) error {
	tenant, err := h.tenantFor(ctx, delivery)
	if err != nil || tenant == nil {
		return err
	}

	var ad shopify.AutomaticDiscount
	if err := json.Unmarshal(delivery.Payload, &ad); err != nil {
		return domain.Permanent(fmt.Errorf("DiscountCreate: parse payload: %w", err))
	}

	promo, err := h.buildFromDiscount(ctx, tenant, &ad)
	if err != nil || promo == nil {
		return err
	}

	batch := NewBatch(tenant.PromoRetailer())
	batch.Create(promo)
	if err := h.promos.Commit(ctx, batch); err != nil {
		return fmt.Errorf("DiscountCreate: %w", err)
	}

	logging.FromContext(ctx).Info("promotion created",
		"promo_id", promo.PromoID, "family", promo.Family, "shop_domain", delivery.ShopDomain)
	return nil
}

func (h *Handlers) DiscountUpdate(ctx context.Context, delivery *domain.WebhookDelivery) error {
	tenant, err := h.tenantFor(ctx, delivery)
	if err != nil || tenant == nil {
		return err
	}

	var ad shopify.AutomaticDiscount
	if err := json.Unmarshal(delivery.Payload, &ad); err != nil {
		return domain.Permanent(fmt.Errorf("DiscountUpdate: parse payload: %w", err))
	}

	promo, err := h.buildFromDiscount(ctx, tenant, &ad)
	if err != nil || promo == nil {
		return err
	}

	batch := NewBatch(tenant.PromoRetailer())
	batch.Delete(shopify.ExtractID(ad.ID), tenant.StoreID.String())
	batch.Create(promo)
	if err := h.promos.Commit(ctx, batch); err != nil {
		return fmt.Errorf("DiscountUpdate: %w", err)
	}

	logging.FromContext(ctx).Info("promotion replaced",
		"promo_id", promo.PromoID, "family", promo.Family, "shop_domain", delivery.ShopDomain)
	return nil
}

func (h *Handlers) DiscountDelete(ctx context.Context, delivery *domain.WebhookDelivery) error {
	tenant, err := h.tenantFor(ctx, delivery)
	if err != nil || tenant == nil {
		return err
	}

	var payload struct {
		ID        json.RawMessage `json:"id"`
		AdminGQID string          `json:"admin_graphql_api_id"`
	}
	if err := json.Unmarshal(delivery.Payload, &payload); err != nil {
		return domain.Permanent(fmt.Errorf("DiscountDelete: parse payload: %w", err))
	}
	id := flexibleID(payload.ID)
	if id == "" {
		id = payload.AdminGQID
	}
	if id == "" {
		return domain.Permanent(fmt.Errorf("DiscountDelete: %w", domain.ErrMissingRuleID))
	}

	batch := NewBatch(tenant.PromoRetailer())
	batch.Delete(shopify.ExtractID(id), tenant.StoreID.String())
	if err := h.promos.Commit(ctx, batch); err != nil {
		return fmt.Errorf("DiscountDelete: %w", err)
	}

	logging.FromContext(ctx).Info("promotion deleted",
		"promo_id", shopify.ExtractID(id), "shop_domain", delivery.ShopDomain)
	return nil
}

// flexibleID reads an identifier field that upstream encodes as either a
// bare number or a string.
func flexibleID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
