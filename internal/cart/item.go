package cart

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pasarloka/keranjang/internal/money"
)

// SelectedAttrs are the attribute choices the shopper made for a line, such as
// size or color. They are part of the line's identity: the same SKU with
// different selections occupies separate lines.
type SelectedAttrs map[string]string

// ItemKey builds the canonical line identifier from the product, the variant
// SKU, and the attribute selection. Attribute pairs are sorted so the key is
// stable regardless of map iteration order.
func ItemKey(productID uuid.UUID, sku string, attrs SelectedAttrs) string {
	var b strings.Builder
	b.WriteString(productID.String())
	b.WriteByte('/')
	b.WriteString(sku)
	if len(attrs) > 0 {
		keys := make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('/')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(attrs[k])
		}
	}
	return b.String()
}

// ActiveOffer records the automatic offer attached to a line when it entered
// the cart. IsValid is re-derived on refresh; the offer itself is never
// re-selected while the line lives.
type ActiveOffer struct {
	OfferID         uuid.UUID `json:"offerId"`
	RequiresVoucher bool      `json:"requiresVoucher"`
	IsValid         bool      `json:"isValid"`
}

// Item is one cart line. UnitPrice is the effective price after any automatic
// offer; OriginalPrice is the catalog price it was derived from. Both are
// reconciled against the catalog on refresh.
type Item struct {
	Key             string
	ProductID       uuid.UUID
	CategoryID      uuid.UUID
	VariantID       uuid.UUID
	SKU             string
	Title           string
	Quantity        int
	UnitPrice       money.Money
	OriginalPrice   money.Money
	ShippingFee     money.Money
	OfferApplied    bool
	ActiveOffer     *ActiveOffer
	VoucherDiscount money.Money
	ShippingWaived  bool
	Attrs           SelectedAttrs
}

// LineTotal is quantity times the effective unit price.
func (i *Item) LineTotal() money.Money {
	return money.Mul(i.UnitPrice, i.Quantity)
}

// EffectiveShipping is the line's shipping fee after any free-shipping
// voucher waiver.
func (i *Item) EffectiveShipping() money.Money {
	if i.ShippingWaived {
		return 0
	}
	return i.ShippingFee
}
