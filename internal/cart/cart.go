package cart

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pasarloka/keranjang/internal/discount"
	"github.com/pasarloka/keranjang/internal/money"
)

// AppliedVoucher is the voucher currently attached to the cart, together with
// the discount computed at application time. Per-item allocations live on the
// lines; OrderDiscount is only set for order-target offers.
type AppliedVoucher struct {
	VoucherID     uuid.UUID
	Code          string
	OfferID       uuid.UUID
	Target        discount.OfferTarget
	DiscountType  discount.DiscountType
	OrderDiscount money.Money
}

// FreeShipping reports whether the voucher grants free shipping. Order-target
// offers zero the whole cart's shipping; product-target offers waive fees on
// the eligible lines only, via per-line allocations.
func (v *AppliedVoucher) FreeShipping() bool {
	return v != nil && v.DiscountType == discount.FreeShipping
}

// Cart is one shopper session's cart. It lives in Redis between requests and
// is reconciled against the catalog when its pricing goes stale.
type Cart struct {
	SessionID     string
	Items         map[string]*Item
	Voucher       *AppliedVoucher
	LastRefreshed time.Time
}

// New returns an empty cart for the session.
func New(sessionID string) *Cart {
	return &Cart{SessionID: sessionID, Items: make(map[string]*Item)}
}

// Count is the number of units in the cart, summed over all lines.
func (c *Cart) Count() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Subtotal sums line totals at effective unit prices, before voucher discounts
// and shipping.
func (c *Cart) Subtotal() money.Money {
	var total money.Money
	for _, item := range c.Items {
		total += item.LineTotal()
	}
	return total
}

// TotalShipping sums per-line shipping fees after any voucher waivers. An
// order-target free-shipping voucher zeroes the whole cart; a product-target
// one only waives the eligible lines. It never goes negative.
func (c *Cart) TotalShipping() money.Money {
	if c.Voucher.FreeShipping() && c.Voucher.Target == discount.TargetOrder {
		return 0
	}
	var total money.Money
	for _, item := range c.Items {
		total += item.EffectiveShipping()
	}
	if total < 0 {
		return 0
	}
	return total
}

// TotalVoucherDiscount is the voucher's reduction on this cart: the summed
// per-line allocations for product-target offers, or the single order-level
// amount otherwise.
func (c *Cart) TotalVoucherDiscount() money.Money {
	if c.Voucher == nil {
		return 0
	}
	if c.Voucher.Target == discount.TargetOrder {
		return c.Voucher.OrderDiscount
	}
	var total money.Money
	for _, item := range c.Items {
		total += item.VoucherDiscount
	}
	return total
}

// Total is subtotal minus voucher discount plus shipping. It is reported as
// computed, without clamping.
func (c *Cart) Total() money.Money {
	return c.Subtotal() - c.TotalVoucherDiscount() + c.TotalShipping()
}

// Lines returns the cart's items ordered by key for stable iteration.
func (c *Cart) Lines() []*Item {
	out := make([]*Item, 0, len(c.Items))
	for _, item := range c.Items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ClearVoucherAllocations drops the applied voucher and every per-line
// allocation derived from it.
func (c *Cart) ClearVoucherAllocations() {
	c.Voucher = nil
	for _, item := range c.Items {
		item.VoucherDiscount = 0
		item.ShippingWaived = false
	}
}

// allocatorLines projects the cart into the allocator's input shape.
func (c *Cart) allocatorLines() []discount.Line {
	lines := make([]discount.Line, 0, len(c.Items))
	for _, item := range c.Lines() {
		lines = append(lines, discount.Line{
			Key:          item.Key,
			Product:      discount.ProductRef{ID: item.ProductID, CategoryID: item.CategoryID},
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			ShippingFee:  item.ShippingFee,
			OfferApplied: item.OfferApplied,
		})
	}
	return lines
}
