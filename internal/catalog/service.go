package catalog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pasarloka/keranjang/internal/customer"
	"github.com/pasarloka/keranjang/internal/discount"
	"github.com/pasarloka/keranjang/internal/money"
)

type variantSource interface {
	VariantBySKU(ctx context.Context, sku string) (Variant, error)
}

type offerSource interface {
	ActiveProductOffers(ctx context.Context, now time.Time) ([]*discount.Offer, error)
}

// Service implements Gateway over Postgres with an optional Redis read-through
// cache. Cache TTLs are expected to be much shorter than the cart's staleness
// window so refresh still observes price changes promptly.
type Service struct {
	variants variantSource
	offers   offerSource
	cache    *Cache
	logger   zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Variants variantSource
	Offers   offerSource
	Cache    *Cache
	Logger   zerolog.Logger
}

// NewService wires a catalog gateway.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		variants: cfg.Variants,
		offers:   cfg.Offers,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
	}
}

// Variant resolves a SKU, consulting the cache first. Cache errors are logged
// and treated as misses.
func (s *Service) Variant(ctx context.Context, sku string) (Variant, error) {
	key := "catalog:variant:" + sku
	var cached Variant
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.logger.Warn().Err(err).Str("sku", sku).Msg("variant cache read")
	}
	if hit {
		return cached, nil
	}
	v, err := s.variants.VariantBySKU(ctx, sku)
	if err != nil {
		return Variant{}, err
	}
	if err := s.cache.SetJSON(ctx, key, v); err != nil {
		s.logger.Warn().Err(err).Str("sku", sku).Msg("variant cache write")
	}
	return v, nil
}

// BestOffer returns the live automatic offer with the largest reduction on
// price for this product and customer. Ties keep the earlier offer in the
// store's ordering. Returns nil when no offer applies.
func (s *Service) BestOffer(ctx context.Context, product discount.ProductRef, cust customer.Customer, price money.Money, now time.Time) (*discount.Offer, error) {
	offers, err := s.activeOffers(ctx, now)
	if err != nil {
		return nil, err
	}
	var (
		best       *discount.Offer
		bestAmount money.Money
	)
	for _, offer := range offers {
		if !offer.ValidForProduct(product, cust) {
			continue
		}
		amount := offer.DiscountAmount(price)
		if amount <= 0 {
			continue
		}
		if best == nil || amount > bestAmount {
			best = offer
			bestAmount = amount
		}
	}
	return best, nil
}

func (s *Service) activeOffers(ctx context.Context, now time.Time) ([]*discount.Offer, error) {
	const key = "catalog:offers:product"
	var cached []*discount.Offer
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.logger.Warn().Err(err).Msg("offer cache read")
	}
	if hit {
		return cached, nil
	}
	offers, err := s.offers.ActiveProductOffers(ctx, now)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, key, offers); err != nil {
		s.logger.Warn().Err(err).Msg("offer cache write")
	}
	return offers, nil
}
