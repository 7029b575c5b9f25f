package cart

import (
	"context"
	"errors"

	"github.com/pasarloka/keranjang/internal/catalog"
	"github.com/pasarloka/keranjang/internal/customer"
	"github.com/pasarloka/keranjang/internal/discount"
	"github.com/pasarloka/keranjang/internal/obs"
)

// needsRefresh reports whether the cart's pricing is stale. A cart that has
// never been refreshed counts as stale.
func (s *Service) needsRefresh(c *Cart) bool {
	if c.LastRefreshed.IsZero() {
		return true
	}
	return s.now().Sub(c.LastRefreshed) >= s.staleness()
}

// refresh reconciles every line against the current catalog: dead or
// exhausted variants are pruned, quantities are clamped to stock, and prices
// are recomputed. A line's automatic offer is never re-selected here, only its
// validity is re-derived; picking a fresh offer is an add-time decision.
func (s *Service) refresh(ctx context.Context, c *Cart, cust customer.Customer) (bool, error) {
	changed := false
	for key, item := range c.Items {
		variant, err := s.Catalog.Variant(ctx, item.SKU)
		if err != nil {
			if errors.Is(err, catalog.ErrVariantNotFound) {
				s.pruneLine(c, key, "variant gone")
				changed = true
				continue
			}
			return false, err
		}
		if !variant.IsActive || variant.StockLevel <= 0 {
			s.pruneLine(c, key, "variant unavailable")
			changed = true
			continue
		}
		if item.Quantity > variant.StockLevel {
			item.Quantity = variant.StockLevel
			changed = true
		}
		if s.repriceLine(ctx, item, cust, variant) {
			changed = true
		}
	}

	if changed {
		if err := s.reapplyVoucher(ctx, c, cust); err != nil {
			return false, err
		}
	}
	c.LastRefreshed = s.now()
	return changed, nil
}

// repriceLine brings one line's pricing in sync with the catalog. Reports
// whether anything changed.
func (s *Service) repriceLine(ctx context.Context, item *Item, cust customer.Customer, variant catalog.Variant) bool {
	changed := false
	if item.ShippingFee != variant.ShippingFee {
		item.ShippingFee = variant.ShippingFee
		changed = true
	}

	priceMoved := item.OriginalPrice != variant.Price
	if priceMoved {
		item.OriginalPrice = variant.Price
		changed = true
	}

	if item.ActiveOffer == nil {
		if priceMoved {
			item.UnitPrice = variant.Price
		}
		return changed
	}

	offer, err := s.Discounts.OfferByID(ctx, item.ActiveOffer.OfferID)
	valid := false
	switch {
	case err == nil:
		valid = offer.IsActive && !offer.IsExpired(s.now()) && offer.ValidForProduct(variant.Ref(), cust)
	case errors.Is(err, discount.ErrNotFound):
		// offer deleted, line falls back to list price
	default:
		s.Logger.Warn().Err(err).Str("sku", item.SKU).Msg("offer revalidation failed, keeping line as is")
		return changed
	}

	if valid {
		discounted := offer.ApplyDiscount(variant.Price)
		if item.UnitPrice != discounted || !item.ActiveOffer.IsValid || !item.OfferApplied {
			item.UnitPrice = discounted
			item.OfferApplied = true
			item.ActiveOffer.IsValid = true
			changed = true
		}
		return changed
	}

	if item.ActiveOffer.IsValid || item.OfferApplied || item.UnitPrice != variant.Price {
		item.ActiveOffer.IsValid = false
		item.OfferApplied = false
		item.UnitPrice = variant.Price
		changed = true
	}
	return changed
}

func (s *Service) pruneLine(c *Cart, key, why string) {
	s.Logger.Info().Str("key", key).Str("reason", why).Msg("pruning cart line")
	delete(c.Items, key)
	if obs.CartItemsPrunedTotal != nil {
		obs.CartItemsPrunedTotal.Inc()
	}
}
