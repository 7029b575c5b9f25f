package catalog

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pasarloka/keranjang/internal/common"
	"github.com/pasarloka/keranjang/internal/customer"
	"github.com/pasarloka/keranjang/internal/money"
)

// Handler exposes read-only variant lookups with effective pricing.
type Handler struct {
	Gateway   Gateway
	Customers customer.Provider
	Now       func() time.Time
}

// Mount registers catalog routes.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/variants/{sku}", h.getVariant)
}

type variantResponse struct {
	ID          string            `json:"id"`
	ProductID   string            `json:"productId"`
	SKU         string            `json:"sku"`
	Title       string            `json:"title"`
	Price       string            `json:"price"`
	FinalPrice  string            `json:"finalPrice"`
	ShippingFee string            `json:"shippingFee"`
	StockLevel  int               `json:"stockLevel"`
	InStock     bool              `json:"inStock"`
	Attrs       map[string]string `json:"attrs,omitempty"`
	OfferTitle  string            `json:"offerTitle,omitempty"`
}

func (h *Handler) getVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sku := chi.URLParam(r, "sku")

	v, err := h.Gateway.Variant(ctx, sku)
	if err != nil {
		if errors.Is(err, ErrVariantNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "variant not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load variant", nil)
		return
	}

	cust := h.resolveCustomer(r)
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}

	finalPrice := v.Price
	offerTitle := ""
	if offer, err := h.Gateway.BestOffer(ctx, v.Ref(), cust, v.Price, now); err == nil && offer != nil {
		finalPrice = offer.ApplyDiscount(v.Price)
		offerTitle = offer.Title
	}

	common.JSON(w, http.StatusOK, variantResponse{
		ID:          v.ID.String(),
		ProductID:   v.ProductID.String(),
		SKU:         v.SKU,
		Title:       v.Title,
		Price:       money.String(v.Price),
		FinalPrice:  money.String(finalPrice),
		ShippingFee: money.String(v.ShippingFee),
		StockLevel:  v.StockLevel,
		InStock:     v.Sellable(),
		Attrs:       v.Attrs,
		OfferTitle:  offerTitle,
	})
}

func (h *Handler) resolveCustomer(r *http.Request) customer.Customer {
	id, ok := common.CustomerID(r.Context())
	if !ok || id == "" {
		return customer.Guest()
	}
	if h.Customers == nil {
		return customer.Customer{ID: id}
	}
	cust, err := h.Customers.Resolve(r.Context(), id)
	if err != nil {
		return customer.Customer{ID: id}
	}
	return cust
}
