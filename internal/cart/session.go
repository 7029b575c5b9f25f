package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pasarloka/keranjang/internal/discount"
	"github.com/pasarloka/keranjang/internal/money"
)

// ErrSessionNotFound indicates there is no stored cart for the session.
var ErrSessionNotFound = errors.New("cart session not found")

// SessionStore persists carts in Redis, one JSON document per session. Every
// save re-arms the session TTL, so a cart disappears only after the full idle
// window passes without activity.
type SessionStore struct {
	Client *redis.Client
	TTL    time.Duration
	Logger zerolog.Logger
}

func sessionKey(sessionID string) string { return "cart:session:" + sessionID }

func (s *SessionStore) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 30 * time.Minute
	}
	return s.TTL
}

// Monetary amounts cross the persistence boundary as decimal strings; the
// snapshot is the only place the engine's minor-unit integers leave memory.
type itemSnapshot struct {
	Key             string            `json:"key"`
	ProductID       string            `json:"productId"`
	CategoryID      string            `json:"categoryId"`
	VariantID       string            `json:"variantId"`
	SKU             string            `json:"sku"`
	Title           string            `json:"title"`
	Quantity        int               `json:"quantity"`
	UnitPrice       string            `json:"unitPrice"`
	OriginalPrice   string            `json:"originalPrice"`
	ShippingFee     string            `json:"shippingFee"`
	OfferApplied    bool              `json:"offerApplied"`
	ActiveOffer     *ActiveOffer      `json:"activeOffer,omitempty"`
	VoucherDiscount string            `json:"voucherDiscount,omitempty"`
	Attrs           map[string]string `json:"attrs,omitempty"`
}

type voucherSnapshot struct {
	VoucherID     string `json:"voucherId"`
	Code          string `json:"code"`
	OfferID       string `json:"offerId"`
	Target        string `json:"target"`
	DiscountType  string `json:"discountType"`
	OrderDiscount string `json:"orderDiscount,omitempty"`
}

type cartSnapshot struct {
	SessionID     string           `json:"sessionId"`
	Items         []itemSnapshot   `json:"items"`
	Voucher       *voucherSnapshot `json:"voucher,omitempty"`
	LastRefreshed time.Time        `json:"lastRefreshed"`
}

// Load reads the session's cart. Lines that fail to parse are dropped rather
// than surfaced with a guessed price.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*Cart, error) {
	data, err := s.Client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load cart session: %w", err)
	}
	var snap cartSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode cart session: %w", err)
	}

	c := New(sessionID)
	c.LastRefreshed = snap.LastRefreshed
	for _, is := range snap.Items {
		item, err := decodeItem(is)
		if err != nil {
			s.Logger.Warn().Err(err).Str("session_id", sessionID).Str("key", is.Key).Msg("dropping unreadable cart line")
			continue
		}
		c.Items[item.Key] = item
	}
	if snap.Voucher != nil {
		voucher, err := decodeVoucher(*snap.Voucher)
		if err != nil {
			s.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("dropping unreadable voucher")
			for _, item := range c.Items {
				item.VoucherDiscount = 0
			}
		} else {
			c.Voucher = voucher
		}
	}
	return c, nil
}

// Save writes the cart and re-arms the TTL.
func (s *SessionStore) Save(ctx context.Context, c *Cart) error {
	snap := cartSnapshot{
		SessionID:     c.SessionID,
		Items:         make([]itemSnapshot, 0, len(c.Items)),
		LastRefreshed: c.LastRefreshed,
	}
	for _, item := range c.Lines() {
		snap.Items = append(snap.Items, encodeItem(item))
	}
	if c.Voucher != nil {
		vs := encodeVoucher(c.Voucher)
		snap.Voucher = &vs
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode cart session: %w", err)
	}
	if err := s.Client.Set(ctx, sessionKey(c.SessionID), data, s.ttl()).Err(); err != nil {
		return fmt.Errorf("save cart session: %w", err)
	}
	return nil
}

// Delete removes the session's cart.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.Client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete cart session: %w", err)
	}
	return nil
}

func encodeItem(item *Item) itemSnapshot {
	is := itemSnapshot{
		Key:           item.Key,
		ProductID:     item.ProductID.String(),
		CategoryID:    item.CategoryID.String(),
		VariantID:     item.VariantID.String(),
		SKU:           item.SKU,
		Title:         item.Title,
		Quantity:      item.Quantity,
		UnitPrice:     money.String(item.UnitPrice),
		OriginalPrice: money.String(item.OriginalPrice),
		ShippingFee:   money.String(item.ShippingFee),
		OfferApplied:  item.OfferApplied,
		ActiveOffer:   item.ActiveOffer,
		Attrs:         item.Attrs,
	}
	if item.VoucherDiscount != 0 {
		is.VoucherDiscount = money.String(item.VoucherDiscount)
	}
	return is
}

func decodeItem(is itemSnapshot) (*Item, error) {
	productID, err := uuid.Parse(is.ProductID)
	if err != nil {
		return nil, fmt.Errorf("parse product id: %w", err)
	}
	categoryID, err := uuid.Parse(is.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("parse category id: %w", err)
	}
	variantID, err := uuid.Parse(is.VariantID)
	if err != nil {
		return nil, fmt.Errorf("parse variant id: %w", err)
	}
	unitPrice, err := money.Parse(is.UnitPrice)
	if err != nil {
		return nil, err
	}
	originalPrice, err := money.Parse(is.OriginalPrice)
	if err != nil {
		return nil, err
	}
	shippingFee, err := money.Parse(is.ShippingFee)
	if err != nil {
		return nil, err
	}
	var voucherDiscount money.Money
	if is.VoucherDiscount != "" {
		voucherDiscount, err = money.Parse(is.VoucherDiscount)
		if err != nil {
			return nil, err
		}
	}
	if is.Quantity <= 0 {
		return nil, fmt.Errorf("non-positive quantity %d", is.Quantity)
	}
	return &Item{
		Key:             is.Key,
		ProductID:       productID,
		CategoryID:      categoryID,
		VariantID:       variantID,
		SKU:             is.SKU,
		Title:           is.Title,
		Quantity:        is.Quantity,
		UnitPrice:       unitPrice,
		OriginalPrice:   originalPrice,
		ShippingFee:     shippingFee,
		OfferApplied:    is.OfferApplied,
		ActiveOffer:     is.ActiveOffer,
		VoucherDiscount: voucherDiscount,
		Attrs:           is.Attrs,
	}, nil
}

func encodeVoucher(v *AppliedVoucher) voucherSnapshot {
	vs := voucherSnapshot{
		VoucherID:    v.VoucherID.String(),
		Code:         v.Code,
		OfferID:      v.OfferID.String(),
		Target:       string(v.Target),
		DiscountType: string(v.DiscountType),
	}
	if v.OrderDiscount != 0 {
		vs.OrderDiscount = money.String(v.OrderDiscount)
	}
	return vs
}

func decodeVoucher(vs voucherSnapshot) (*AppliedVoucher, error) {
	voucherID, err := uuid.Parse(vs.VoucherID)
	if err != nil {
		return nil, fmt.Errorf("parse voucher id: %w", err)
	}
	offerID, err := uuid.Parse(vs.OfferID)
	if err != nil {
		return nil, fmt.Errorf("parse offer id: %w", err)
	}
	var orderDiscount money.Money
	if vs.OrderDiscount != "" {
		orderDiscount, err = money.Parse(vs.OrderDiscount)
		if err != nil {
			return nil, err
		}
	}
	return &AppliedVoucher{
		VoucherID:     voucherID,
		Code:          vs.Code,
		OfferID:       offerID,
		Target:        discount.OfferTarget(vs.Target),
		DiscountType:  discount.DiscountType(vs.DiscountType),
		OrderDiscount: orderDiscount,
	}, nil
}
