package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pasarloka/keranjang/internal/catalog"
	"github.com/pasarloka/keranjang/internal/common"
	"github.com/pasarloka/keranjang/internal/customer"
	"github.com/pasarloka/keranjang/internal/discount"
	"github.com/pasarloka/keranjang/internal/lock"
	"github.com/pasarloka/keranjang/internal/money"
)

const sessionCookie = "cart_session"

var validate = validator.New()

type addItemRequest struct {
	SKU      string            `json:"sku" validate:"required"`
	Quantity int               `json:"quantity" validate:"gte=0"`
	Attrs    map[string]string `json:"attrs"`
}

type updateItemRequest struct {
	// required rejects the zero value, so a no-op delta never reaches the service.
	Key   string `json:"key" validate:"required"`
	Delta int    `json:"delta" validate:"required"`
}

type applyVoucherRequest struct {
	Code string `json:"code" validate:"required"`
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// Handler wires the cart service to HTTP. Mutations run under a per-session
// Redis lock so concurrent requests from the same shopper serialize.
type Handler struct {
	Svc       *Service
	Customers customer.Provider
	Locks     lock.Locker
	LockTTL   time.Duration
}

// Mount registers cart routes. applyLimiter, when non-nil, guards the voucher
// apply endpoint.
func (h *Handler) Mount(r chi.Router, applyLimiter func(http.Handler) http.Handler) {
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items", h.updateItem)
	r.Delete("/items", h.removeItem)
	if applyLimiter != nil {
		r.With(applyLimiter).Post("/voucher", h.applyVoucher)
	} else {
		r.Post("/voucher", h.applyVoucher)
	}
	r.Delete("/voucher", h.removeVoucher)
	r.Post("/checkout", h.checkout)
}

// session extracts the shopper's session id, minting one when absent.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if id := strings.TrimSpace(r.Header.Get("X-Cart-Session")); id != "" {
		return id
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
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

// withCart loads the session cart and runs fn under the session lock. fn is
// responsible for persisting its changes through the service. Mutating
// handlers pass force so the cart is reconciled against the catalog before
// the mutation runs, regardless of the staleness window.
func (h *Handler) withCart(w http.ResponseWriter, r *http.Request, force bool, fn func(c *Cart, cust customer.Customer) error) {
	sessionID := h.session(w, r)
	cust := h.resolveCustomer(r)
	ttl := h.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	err := h.Locks.WithLock(r.Context(), lock.SessionKey(sessionID), ttl, func(ctx context.Context) error {
		c, err := h.Svc.Get(ctx, sessionID, cust, force)
		if err != nil {
			return err
		}
		return fn(c, cust)
	})
	if err != nil {
		h.writeError(w, err)
	}
}

type cartItemResponse struct {
	Key             string            `json:"key"`
	ProductID       string            `json:"productId"`
	SKU             string            `json:"sku"`
	Title           string            `json:"title"`
	Quantity        int               `json:"quantity"`
	UnitPrice       string            `json:"unitPrice"`
	OriginalPrice   string            `json:"originalPrice"`
	LineTotal       string            `json:"lineTotal"`
	ShippingFee     string            `json:"shippingFee"`
	OfferApplied    bool              `json:"offerApplied"`
	VoucherDiscount string            `json:"voucherDiscount,omitempty"`
	Attrs           map[string]string `json:"attrs,omitempty"`
}

type cartResponse struct {
	SessionID       string             `json:"sessionId"`
	Items           []cartItemResponse `json:"items"`
	Count           int                `json:"count"`
	Subtotal        string             `json:"subtotal"`
	ShippingTotal   string             `json:"shippingTotal"`
	VoucherCode     string             `json:"voucherCode,omitempty"`
	VoucherDiscount string             `json:"voucherDiscount,omitempty"`
	Total           string             `json:"total"`
	Message         string             `json:"message,omitempty"`
}

func renderCart(c *Cart, msg string) cartResponse {
	resp := cartResponse{
		SessionID:     c.SessionID,
		Items:         make([]cartItemResponse, 0, len(c.Items)),
		Count:         c.Count(),
		Subtotal:      money.String(c.Subtotal()),
		ShippingTotal: money.String(c.TotalShipping()),
		Total:         money.String(c.Total()),
		Message:       msg,
	}
	if c.Voucher != nil {
		resp.VoucherCode = c.Voucher.Code
		resp.VoucherDiscount = money.String(c.TotalVoucherDiscount())
	}
	for _, item := range c.Lines() {
		ir := cartItemResponse{
			Key:           item.Key,
			ProductID:     item.ProductID.String(),
			SKU:           item.SKU,
			Title:         item.Title,
			Quantity:      item.Quantity,
			UnitPrice:     money.String(item.UnitPrice),
			OriginalPrice: money.String(item.OriginalPrice),
			LineTotal:     money.String(item.LineTotal()),
			ShippingFee:   money.String(item.EffectiveShipping()),
			OfferApplied:  item.OfferApplied,
			Attrs:         item.Attrs,
		}
		if item.VoucherDiscount != 0 {
			ir.VoucherDiscount = money.String(item.VoucherDiscount)
		}
		resp.Items = append(resp.Items, ir)
	}
	return resp
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "true"
	h.withCart(w, r, force, func(c *Cart, _ customer.Customer) error {
		common.JSON(w, http.StatusOK, map[string]any{"data": renderCart(c, "")})
		return nil
	})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, false, func(c *Cart, _ customer.Customer) error {
		if err := h.Svc.Clear(r.Context(), c.SessionID); err != nil {
			return err
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": renderCart(New(c.SessionID), "")})
		return nil
	})
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var payload addItemRequest
	if err := decodeJSON(r, &payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if payload.Quantity == 0 {
		payload.Quantity = 1
	}
	h.withCart(w, r, true, func(c *Cart, cust customer.Customer) error {
		_, msg, err := h.Svc.AddItem(r.Context(), c, cust, strings.TrimSpace(payload.SKU), payload.Quantity, payload.Attrs)
		if err != nil {
			return err
		}
		common.JSON(w, http.StatusCreated, map[string]any{"data": renderCart(c, msg)})
		return nil
	})
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var payload updateItemRequest
	if err := decodeJSON(r, &payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "key and non-zero delta required", nil)
		return
	}
	h.withCart(w, r, true, func(c *Cart, cust customer.Customer) error {
		msg, err := h.Svc.UpdateQuantity(r.Context(), c, cust, payload.Key, payload.Delta)
		if err != nil {
			return err
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": renderCart(c, msg)})
		return nil
	})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "key query parameter required", nil)
		return
	}
	h.withCart(w, r, true, func(c *Cart, cust customer.Customer) error {
		if err := h.Svc.RemoveItem(r.Context(), c, cust, key); err != nil {
			return err
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": renderCart(c, "")})
		return nil
	})
}

func (h *Handler) applyVoucher(w http.ResponseWriter, r *http.Request) {
	var payload applyVoucherRequest
	if err := decodeJSON(r, &payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	h.withCart(w, r, true, func(c *Cart, cust customer.Customer) error {
		if err := h.Svc.ApplyVoucher(r.Context(), c, cust, payload.Code); err != nil {
			return err
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": renderCart(c, "voucher applied")})
		return nil
	})
}

func (h *Handler) removeVoucher(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, true, func(c *Cart, _ customer.Customer) error {
		if err := h.Svc.RemoveVoucher(r.Context(), c); err != nil {
			return err
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": renderCart(c, "")})
		return nil
	})
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	// Checkout always reconciles against the catalog first so the snapshot
	// never carries stale prices.
	h.withCart(w, r, true, func(c *Cart, cust customer.Customer) error {
		snapshot, err := h.Svc.Checkout(r.Context(), c, cust)
		if err != nil {
			return err
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": snapshot})
		return nil
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart item not found", nil)
	case errors.Is(err, catalog.ErrVariantNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "variant not found", nil)
	case errors.Is(err, discount.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "voucher not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, discount.ErrUsageLimitReached),
		errors.Is(err, discount.ErrVoucherExpired),
		errors.Is(err, discount.ErrBelowMinimum),
		errors.Is(err, discount.ErrBudgetExceeded),
		errors.Is(err, discount.ErrNotEligible),
		errors.Is(err, ErrNoEligibleItem):
		common.JSONError(w, http.StatusUnprocessableEntity, "VOUCHER_REJECTED", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
	}
}
