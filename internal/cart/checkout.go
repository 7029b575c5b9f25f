package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pasarloka/keranjang/internal/customer"
	"github.com/pasarloka/keranjang/internal/events"
	"github.com/pasarloka/keranjang/internal/money"
)

// SnapshotLine is one order line in the exported snapshot. Amounts are decimal
// strings, the cart's external money representation.
type SnapshotLine struct {
	Key             string            `json:"key"`
	ProductID       string            `json:"productId"`
	VariantID       string            `json:"variantId"`
	SKU             string            `json:"sku"`
	Title           string            `json:"title"`
	Quantity        int               `json:"quantity"`
	UnitPrice       string            `json:"unitPrice"`
	OriginalPrice   string            `json:"originalPrice"`
	LineTotal       string            `json:"lineTotal"`
	VoucherDiscount string            `json:"voucherDiscount,omitempty"`
	Attrs           map[string]string `json:"attrs,omitempty"`
}

// OrderSnapshot is the immutable order payload exported at checkout. Once
// built, later catalog changes cannot touch it.
type OrderSnapshot struct {
	SessionID       string         `json:"sessionId"`
	CustomerID      string         `json:"customerId,omitempty"`
	Lines           []SnapshotLine `json:"lines"`
	Subtotal        string         `json:"subtotal"`
	ShippingTotal   string         `json:"shippingTotal"`
	VoucherCode     string         `json:"voucherCode,omitempty"`
	VoucherDiscount string         `json:"voucherDiscount,omitempty"`
	Total           string         `json:"total"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// Checkout settles the cart into an order snapshot. The cart must already be
// freshly refreshed by the caller. An applied voucher is redeemed here, inside
// the discount store's transactional counters, and the session is cleared on
// success.
func (s *Service) Checkout(ctx context.Context, c *Cart, cust customer.Customer) (OrderSnapshot, error) {
	if len(c.Items) == 0 {
		return OrderSnapshot{}, fmt.Errorf("cart is empty: %w", ErrInvalidInput)
	}

	snapshot := s.snapshot(c, cust)

	if c.Voucher != nil {
		if s.Redeemer == nil {
			return OrderSnapshot{}, fmt.Errorf("voucher redemption not configured: %w", ErrInvalidInput)
		}
		amount := c.TotalVoucherDiscount()
		if _, err := s.Redeemer.Redeem(ctx, c.Voucher.Code, cust, c.Subtotal(), amount); err != nil {
			return OrderSnapshot{}, err
		}
	}

	if err := s.Sessions.Delete(ctx, c.SessionID); err != nil {
		return OrderSnapshot{}, err
	}

	if s.Events != nil {
		// API-minted session ids are UUIDs; externally supplied ones get a
		// fresh aggregate id rather than failing the checkout.
		aggregate, err := uuid.Parse(c.SessionID)
		if err != nil {
			aggregate = uuid.New()
		}
		if err := s.Events.Emit(ctx, events.TopicCartCheckedOut, aggregate, snapshot); err != nil {
			s.Logger.Warn().Err(err).Str("session_id", c.SessionID).Msg("emit checkout event")
		}
	}
	return snapshot, nil
}

func (s *Service) snapshot(c *Cart, cust customer.Customer) OrderSnapshot {
	snap := OrderSnapshot{
		SessionID:     c.SessionID,
		Lines:         make([]SnapshotLine, 0, len(c.Items)),
		Subtotal:      money.String(c.Subtotal()),
		ShippingTotal: money.String(c.TotalShipping()),
		Total:         money.String(c.Total()),
		CreatedAt:     s.now(),
	}
	if !cust.Anonymous {
		snap.CustomerID = cust.ID
	}
	if c.Voucher != nil {
		snap.VoucherCode = c.Voucher.Code
		snap.VoucherDiscount = money.String(c.TotalVoucherDiscount())
	}
	for _, item := range c.Lines() {
		line := SnapshotLine{
			Key:           item.Key,
			ProductID:     item.ProductID.String(),
			VariantID:     item.VariantID.String(),
			SKU:           item.SKU,
			Title:         item.Title,
			Quantity:      item.Quantity,
			UnitPrice:     money.String(item.UnitPrice),
			OriginalPrice: money.String(item.OriginalPrice),
			LineTotal:     money.String(item.LineTotal()),
			Attrs:         item.Attrs,
		}
		if item.VoucherDiscount != 0 {
			line.VoucherDiscount = money.String(item.VoucherDiscount)
		}
		snap.Lines = append(snap.Lines, line)
	}
	return snap
}
