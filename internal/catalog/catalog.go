package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pasarloka/keranjang/internal/customer"
	"github.com/pasarloka/keranjang/internal/discount"
	"github.com/pasarloka/keranjang/internal/money"
)

// ErrVariantNotFound is returned when a SKU does not resolve to a sellable variant.
var ErrVariantNotFound = errors.New("variant not found")

// Variant is the sellable unit the cart references. Price and ShippingFee are
// the current catalog values in minor units; the cart keeps its own copies and
// reconciles them on refresh.
type Variant struct {
	ID          uuid.UUID         `json:"id"`
	ProductID   uuid.UUID         `json:"productId"`
	CategoryID  uuid.UUID         `json:"categoryId"`
	SKU         string            `json:"sku"`
	Title       string            `json:"title"`
	Price       money.Money       `json:"price"`
	ShippingFee money.Money       `json:"shippingFee"`
	StockLevel  int               `json:"stockLevel"`
	IsActive    bool              `json:"isActive"`
	Attrs       map[string]string `json:"attrs,omitempty"`
}

// Ref returns the product identity used by offer condition checks.
func (v Variant) Ref() discount.ProductRef {
	return discount.ProductRef{ID: v.ProductID, CategoryID: v.CategoryID}
}

// Sellable reports whether the variant can currently be added to a cart.
func (v Variant) Sellable() bool {
	return v.IsActive && v.StockLevel > 0
}

// Gateway is the catalog surface the cart engine consumes.
type Gateway interface {
	// Variant resolves a SKU to its current catalog state.
	Variant(ctx context.Context, sku string) (Variant, error)
	// BestOffer picks the automatic offer granting the largest reduction on
	// price for the given product and customer, or nil when none applies.
	BestOffer(ctx context.Context, product discount.ProductRef, cust customer.Customer, price money.Money, now time.Time) (*discount.Offer, error)
}
