package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pasarloka/keranjang/internal/catalog"
	"github.com/pasarloka/keranjang/internal/customer"
	"github.com/pasarloka/keranjang/internal/discount"
	"github.com/pasarloka/keranjang/internal/money"
	"github.com/pasarloka/keranjang/internal/obs"
)

// ErrNotFound indicates the referenced cart line does not exist.
var ErrNotFound = errors.New("cart item not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// ErrNoEligibleItem indicates a product-target voucher matched nothing in the cart.
var ErrNoEligibleItem = errors.New("no cart item is eligible for this voucher")

type voucherSource interface {
	GetVoucherByCode(ctx context.Context, code string) (*discount.Voucher, error)
	HasRedeemed(ctx context.Context, voucherID uuid.UUID, customerID string) (bool, error)
	OfferByID(ctx context.Context, id uuid.UUID) (*discount.Offer, error)
}

// Redeemer settles the applied voucher at checkout.
type Redeemer interface {
	Redeem(ctx context.Context, code string, cust customer.Customer, orderValue, amount money.Money) (discount.RedemptionResult, error)
}

// EventSink receives domain events; a nil sink disables emission.
type EventSink interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) error
}

// Service encapsulates cart domain operations: line mutations, voucher
// application, staleness-driven price reconciliation, and checkout.
type Service struct {
	Sessions  *SessionStore
	Catalog   catalog.Gateway
	Discounts voucherSource
	Redeemer  Redeemer
	Events    EventSink
	Staleness time.Duration
	Now       func() time.Time
	Logger    zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) staleness() time.Duration {
	if s == nil || s.Staleness <= 0 {
		return 5 * time.Minute
	}
	return s.Staleness
}

// Get loads the session's cart, refreshing it against the catalog when its
// pricing has gone stale or force is set. A session without a stored cart
// yields a fresh empty one.
func (s *Service) Get(ctx context.Context, sessionID string, cust customer.Customer, force bool) (*Cart, error) {
	if s == nil || s.Sessions == nil {
		return nil, errors.New("cart service not configured")
	}
	c, err := s.Sessions.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return New(sessionID), nil
		}
		return nil, err
	}
	if !force && !s.needsRefresh(c) {
		return c, nil
	}
	changed, err := s.refresh(ctx, c, cust)
	if err != nil {
		return nil, err
	}
	s.observeRefresh(force, changed)
	if err := s.Sessions.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddItem puts a variant into the cart. Re-adding an existing line replaces
// its quantity rather than accumulating. The returned message is non-empty
// when the requested quantity was clamped to available stock.
func (s *Service) AddItem(ctx context.Context, c *Cart, cust customer.Customer, sku string, qty int, attrs SelectedAttrs) (*Item, string, error) {
	if qty <= 0 {
		return nil, "", fmt.Errorf("quantity must be positive: %w", ErrInvalidInput)
	}
	variant, err := s.Catalog.Variant(ctx, sku)
	if err != nil {
		return nil, "", err
	}
	if !variant.Sellable() {
		return nil, "", fmt.Errorf("variant %s is not available: %w", sku, ErrInvalidInput)
	}
	msg := ""
	if qty > variant.StockLevel {
		qty = variant.StockLevel
		msg = fmt.Sprintf("only %d available, quantity adjusted", variant.StockLevel)
	}

	item := &Item{
		Key:           ItemKey(variant.ProductID, variant.SKU, attrs),
		ProductID:     variant.ProductID,
		CategoryID:    variant.CategoryID,
		VariantID:     variant.ID,
		SKU:           variant.SKU,
		Title:         variant.Title,
		Quantity:      qty,
		UnitPrice:     variant.Price,
		OriginalPrice: variant.Price,
		ShippingFee:   variant.ShippingFee,
		Attrs:         attrs,
	}
	s.priceLine(ctx, item, cust, variant.Price)

	c.Items[item.Key] = item
	if err := s.reapplyVoucher(ctx, c, cust); err != nil {
		return nil, "", err
	}
	if err := s.Sessions.Save(ctx, c); err != nil {
		return nil, "", err
	}
	return item, msg, nil
}

// UpdateQuantity adjusts a line by delta. Dropping to zero or below removes
// the line; exceeding stock clamps and reports it in the returned message.
func (s *Service) UpdateQuantity(ctx context.Context, c *Cart, cust customer.Customer, key string, delta int) (string, error) {
	item, ok := c.Items[key]
	if !ok {
		return "", ErrNotFound
	}
	newQty := item.Quantity + delta
	if newQty <= 0 {
		delete(c.Items, key)
		if err := s.reapplyVoucher(ctx, c, cust); err != nil {
			return "", err
		}
		return "", s.Sessions.Save(ctx, c)
	}

	msg := ""
	variant, err := s.Catalog.Variant(ctx, item.SKU)
	switch {
	case err == nil:
		if newQty > variant.StockLevel {
			newQty = variant.StockLevel
			msg = fmt.Sprintf("only %d available, quantity adjusted", variant.StockLevel)
		}
		if newQty <= 0 {
			delete(c.Items, key)
			if err := s.reapplyVoucher(ctx, c, cust); err != nil {
				return "", err
			}
			return "item no longer available", s.Sessions.Save(ctx, c)
		}
		item.Quantity = newQty
		// The line is repriced against the live catalog so the voucher below
		// reallocates over the current subtotal, not the stale one.
		s.repriceLine(ctx, item, cust, variant)
	case errors.Is(err, catalog.ErrVariantNotFound):
		item.Quantity = newQty
	default:
		return "", err
	}
	if err := s.reapplyVoucher(ctx, c, cust); err != nil {
		return "", err
	}
	return msg, s.Sessions.Save(ctx, c)
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, c *Cart, cust customer.Customer, key string) error {
	if _, ok := c.Items[key]; !ok {
		return ErrNotFound
	}
	delete(c.Items, key)
	if err := s.reapplyVoucher(ctx, c, cust); err != nil {
		return err
	}
	return s.Sessions.Save(ctx, c)
}

// Clear drops the whole cart, voucher included.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	return s.Sessions.Delete(ctx, sessionID)
}

// ApplyVoucher validates the code against the cart and attaches it. Validation
// failures surface as sentinel-wrapped errors whose message names the reason.
func (s *Service) ApplyVoucher(ctx context.Context, c *Cart, cust customer.Customer, code string) error {
	normalized := discount.NormalizeCode(code)
	if normalized == "" {
		err := fmt.Errorf("voucher code required: %w", ErrInvalidInput)
		s.observeApply("invalid")
		return err
	}
	voucher, err := s.Discounts.GetVoucherByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, discount.ErrNotFound) {
			s.observeApply("not_found")
		}
		return err
	}
	if err := s.attachVoucher(ctx, c, cust, voucher); err != nil {
		s.observeApply("rejected")
		return err
	}
	s.observeApply("applied")
	return s.Sessions.Save(ctx, c)
}

// RemoveVoucher detaches the applied voucher and its allocations.
func (s *Service) RemoveVoucher(ctx context.Context, c *Cart) error {
	c.ClearVoucherAllocations()
	return s.Sessions.Save(ctx, c)
}

// attachVoucher runs the ordered validity checks and computes allocations.
func (s *Service) attachVoucher(ctx context.Context, c *Cart, cust customer.Customer, voucher *discount.Voucher) error {
	subtotal := c.Subtotal()
	ok, reason, err := voucher.IsValid(ctx, cust, subtotal, s.now(), s.Discounts)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", reason, reasonSentinel(reason))
	}
	offer := voucher.Offer
	if offer == nil {
		return fmt.Errorf("voucher %s has no offer: %w", voucher.Code, discount.ErrNotFound)
	}

	applied := &AppliedVoucher{
		VoucherID:    voucher.ID,
		Code:         voucher.Code,
		OfferID:      voucher.OfferID,
		Target:       offer.Target,
		DiscountType: offer.DiscountType,
	}

	var total money.Money
	var allocations map[string]discount.ItemDiscount
	switch offer.Target {
	case discount.TargetOrder:
		if !offer.ValidForOrder(cust, subtotal) {
			return fmt.Errorf("not eligible for this offer: %w", discount.ErrNotEligible)
		}
		applied.OrderDiscount = discount.AllocateOrder(offer, subtotal)
		total = applied.OrderDiscount
	default:
		if !offer.ValidForCustomer(cust) {
			return fmt.Errorf("customer does not qualify for this offer: %w", discount.ErrNotEligible)
		}
		allocations, total = discount.AllocateProduct(offer, voucher.ID, c.allocatorLines())
		if len(allocations) == 0 {
			return ErrNoEligibleItem
		}
	}

	// The shared budget is only spent at redemption, but an application that
	// could never settle is rejected up front.
	if offer.DiscountType != discount.FreeShipping &&
		offer.TotalDiscountOffered+total > offer.MaxDiscountAllowed {
		return fmt.Errorf("offer budget exhausted: %w", discount.ErrBudgetExceeded)
	}

	c.ClearVoucherAllocations()
	c.Voucher = applied
	for key, alloc := range allocations {
		item, ok := c.Items[key]
		if !ok {
			continue
		}
		if alloc.Type == discount.FreeShipping {
			item.ShippingWaived = true
		} else {
			item.VoucherDiscount = alloc.Amount
		}
	}
	return nil
}

// reapplyVoucher revalidates the attached voucher after a cart mutation. A
// voucher that no longer fits is dropped silently; totals simply lose it.
func (s *Service) reapplyVoucher(ctx context.Context, c *Cart, cust customer.Customer) error {
	if c.Voucher == nil {
		return nil
	}
	code := c.Voucher.Code
	voucher, err := s.Discounts.GetVoucherByCode(ctx, code)
	if err != nil {
		if errors.Is(err, discount.ErrNotFound) {
			c.ClearVoucherAllocations()
			return nil
		}
		return err
	}
	if err := s.attachVoucher(ctx, c, cust, voucher); err != nil {
		if isValidationErr(err) {
			s.Logger.Info().Str("code", code).Err(err).Msg("voucher dropped after cart change")
			c.ClearVoucherAllocations()
			return nil
		}
		return err
	}
	return nil
}

// priceLine applies the best automatic offer, if any, to a fresh line.
func (s *Service) priceLine(ctx context.Context, item *Item, cust customer.Customer, price money.Money) {
	offer, err := s.Catalog.BestOffer(ctx, discount.ProductRef{ID: item.ProductID, CategoryID: item.CategoryID}, cust, price, s.now())
	if err != nil {
		s.Logger.Warn().Err(err).Str("sku", item.SKU).Msg("offer lookup failed, selling at list price")
		return
	}
	if offer == nil {
		return
	}
	item.UnitPrice = offer.ApplyDiscount(price)
	item.OfferApplied = true
	item.ActiveOffer = &ActiveOffer{
		OfferID:         offer.ID,
		RequiresVoucher: offer.RequiresVoucher,
		IsValid:         true,
	}
}

func (s *Service) observeApply(result string) {
	if obs.VoucherApplyTotal != nil {
		obs.VoucherApplyTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) observeRefresh(force, changed bool) {
	if obs.CartRefreshTotal == nil {
		return
	}
	outcome := "noop"
	switch {
	case force:
		outcome = "forced"
	case changed:
		outcome = "changed"
	}
	obs.CartRefreshTotal.WithLabelValues(outcome).Inc()
}

func reasonSentinel(reason string) error {
	switch reason {
	case "usage limit reached":
		return discount.ErrUsageLimitReached
	case "voucher expired":
		return discount.ErrVoucherExpired
	case "order below minimum purchase":
		return discount.ErrBelowMinimum
	default:
		return discount.ErrNotEligible
	}
}

func isValidationErr(err error) bool {
	return errors.Is(err, discount.ErrNotEligible) ||
		errors.Is(err, discount.ErrUsageLimitReached) ||
		errors.Is(err, discount.ErrVoucherExpired) ||
		errors.Is(err, discount.ErrBelowMinimum) ||
		errors.Is(err, discount.ErrBudgetExceeded) ||
		errors.Is(err, ErrNoEligibleItem)
}
