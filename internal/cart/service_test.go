package cart

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pasarloka/keranjang/internal/catalog"
	"github.com/pasarloka/keranjang/internal/customer"
	"github.com/pasarloka/keranjang/internal/discount"
	"github.com/pasarloka/keranjang/internal/events"
	"github.com/pasarloka/keranjang/internal/money"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCatalog struct {
	variants map[string]catalog.Variant
	offers   []*discount.Offer
}

func (f *fakeCatalog) Variant(_ context.Context, sku string) (catalog.Variant, error) {
	v, ok := f.variants[sku]
	if !ok {
		return catalog.Variant{}, catalog.ErrVariantNotFound
	}
	return v, nil
}

func (f *fakeCatalog) BestOffer(_ context.Context, product discount.ProductRef, cust customer.Customer, price money.Money, now time.Time) (*discount.Offer, error) {
	var best *discount.Offer
	var bestAmount money.Money
	for _, offer := range f.offers {
		if !offer.IsActive || offer.IsExpired(now) || !offer.ValidForProduct(product, cust) {
			continue
		}
		amount := offer.DiscountAmount(price)
		if amount > bestAmount {
			best, bestAmount = offer, amount
		}
	}
	return best, nil
}

type fakeDiscounts struct {
	vouchers map[string]*discount.Voucher
	offers   map[uuid.UUID]*discount.Offer
	redeemed map[string]bool
}

func (f *fakeDiscounts) GetVoucherByCode(_ context.Context, code string) (*discount.Voucher, error) {
	v, ok := f.vouchers[code]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return v, nil
}

func (f *fakeDiscounts) HasRedeemed(_ context.Context, voucherID uuid.UUID, customerID string) (bool, error) {
	return f.redeemed[voucherID.String()+"/"+customerID], nil
}

func (f *fakeDiscounts) OfferByID(_ context.Context, id uuid.UUID) (*discount.Offer, error) {
	o, ok := f.offers[id]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return o, nil
}

type fakeRedeemer struct {
	result discount.RedemptionResult
	err    error
	calls  int
	amount money.Money
}

func (f *fakeRedeemer) Redeem(_ context.Context, code string, cust customer.Customer, orderValue, amount money.Money) (discount.RedemptionResult, error) {
	f.calls++
	f.amount = amount
	if f.err != nil {
		return discount.RedemptionResult{}, f.err
	}
	return f.result, nil
}

type fakeSink struct {
	topics []string
}

func (f *fakeSink) Emit(_ context.Context, topic string, _ uuid.UUID, _ any) error {
	f.topics = append(f.topics, topic)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeCatalog, *fakeDiscounts) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cat := &fakeCatalog{variants: map[string]catalog.Variant{}}
	disc := &fakeDiscounts{
		vouchers: map[string]*discount.Voucher{},
		offers:   map[uuid.UUID]*discount.Offer{},
		redeemed: map[string]bool{},
	}
	svc := &Service{
		Sessions:  &SessionStore{Client: client, TTL: 30 * time.Minute, Logger: zerolog.Nop()},
		Catalog:   cat,
		Discounts: disc,
		Staleness: 5 * time.Minute,
		Now:       func() time.Time { return testNow },
		Logger:    zerolog.Nop(),
	}
	return svc, cat, disc
}

func stubVariant(price money.Money, stock int) catalog.Variant {
	return catalog.Variant{
		ID:         uuid.New(),
		ProductID:  uuid.New(),
		CategoryID: uuid.New(),
		Price:      price,
		StockLevel: stock,
		IsActive:   true,
	}
}

func percentageOffer(bps money.Money) *discount.Offer {
	return &discount.Offer{
		ID:                 uuid.New(),
		Title:              "promo",
		Target:             discount.TargetProduct,
		DiscountType:       discount.Percentage,
		DiscountValue:      bps,
		ValidFrom:          testNow.Add(-time.Hour),
		ValidTo:            testNow.Add(time.Hour),
		IsActive:           true,
		MaxDiscountAllowed: 10_000_00,
	}
}

func voucherFor(offer *discount.Offer, code string) *discount.Voucher {
	return &discount.Voucher{
		ID:            uuid.New(),
		Code:          code,
		OfferID:       offer.ID,
		Offer:         offer,
		UsageType:     discount.UsageMultiple,
		MaxUsageLimit: 100,
		ValidFrom:     testNow.Add(-time.Hour),
		ValidTo:       testNow.Add(time.Hour),
	}
}

func TestAddItemAppliesBestOffer(t *testing.T) {
	ctx := context.Background()
	svc, cat, disc := newTestService(t)

	v := stubVariant(30_00, 10)
	v.SKU = "TSHIRT-M"
	cat.variants["TSHIRT-M"] = v
	offer := percentageOffer(1000)
	cat.offers = append(cat.offers, offer)
	disc.offers[offer.ID] = offer

	c := New("s1")
	item, msg, err := svc.AddItem(ctx, c, customer.Guest(), "TSHIRT-M", 2, nil)
	require.NoError(t, err)
	require.Empty(t, msg)
	require.Equal(t, money.Money(27_00), item.UnitPrice)
	require.Equal(t, money.Money(30_00), item.OriginalPrice)
	require.True(t, item.OfferApplied)
	require.NotNil(t, item.ActiveOffer)
	require.Equal(t, offer.ID, item.ActiveOffer.OfferID)
	require.True(t, item.ActiveOffer.IsValid)
	require.Equal(t, money.Money(54_00), c.Subtotal())
}

func TestAddItemReplacesQuantity(t *testing.T) {
	ctx := context.Background()
	svc, cat, _ := newTestService(t)
	v := stubVariant(10_00, 10)
	v.SKU = "A"
	cat.variants["A"] = v

	c := New("s1")
	_, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 2, nil)
	require.NoError(t, err)
	_, _, err = svc.AddItem(ctx, c, customer.Guest(), "A", 3, nil)
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	require.Equal(t, 3, c.Count(), "re-adding replaces the quantity, it does not accumulate")
}

func TestAddItemClampsToStock(t *testing.T) {
	ctx := context.Background()
	svc, cat, _ := newTestService(t)
	v := stubVariant(10_00, 4)
	v.SKU = "A"
	cat.variants["A"] = v

	c := New("s1")
	item, msg, err := svc.AddItem(ctx, c, customer.Guest(), "A", 9, nil)
	require.NoError(t, err)
	require.Equal(t, 4, item.Quantity)
	require.Equal(t, "only 4 available, quantity adjusted", msg)
}

func TestAddItemUnavailable(t *testing.T) {
	ctx := context.Background()
	svc, cat, _ := newTestService(t)
	v := stubVariant(10_00, 0)
	v.SKU = "A"
	cat.variants["A"] = v

	c := New("s1")
	_, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 1, nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = svc.AddItem(ctx, c, customer.Guest(), "GONE", 1, nil)
	require.ErrorIs(t, err, catalog.ErrVariantNotFound)
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	svc, cat, _ := newTestService(t)
	v := stubVariant(10_00, 5)
	v.SKU = "A"
	cat.variants["A"] = v

	c := New("s1")
	item, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 2, nil)
	require.NoError(t, err)

	msg, err := svc.UpdateQuantity(ctx, c, customer.Guest(), item.Key, 1)
	require.NoError(t, err)
	require.Empty(t, msg)
	require.Equal(t, 3, c.Items[item.Key].Quantity)

	msg, err = svc.UpdateQuantity(ctx, c, customer.Guest(), item.Key, 10)
	require.NoError(t, err)
	require.Equal(t, "only 5 available, quantity adjusted", msg)
	require.Equal(t, 5, c.Items[item.Key].Quantity)

	_, err = svc.UpdateQuantity(ctx, c, customer.Guest(), item.Key, -5)
	require.NoError(t, err)
	require.NotContains(t, c.Items, item.Key, "dropping to zero removes the line")

	_, err = svc.UpdateQuantity(ctx, c, customer.Guest(), "missing", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateQuantityRepricesAndReallocates(t *testing.T) {
	ctx := context.Background()
	svc, cat, disc := newTestService(t)

	v := stubVariant(10_00, 10)
	v.SKU = "A"
	cat.variants["A"] = v

	voucherOffer := percentageOffer(1000)
	voucherOffer.RequiresVoucher = true
	disc.vouchers["SAVE10"] = voucherFor(voucherOffer, "SAVE10")

	c := New("s1")
	item, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 1, nil)
	require.NoError(t, err)
	require.NoError(t, svc.ApplyVoucher(ctx, c, customer.Guest(), "SAVE10"))
	require.Equal(t, money.Money(1_00), c.Items[item.Key].VoucherDiscount)

	// Catalog price moves inside the staleness window.
	v.Price = 12_00
	cat.variants["A"] = v

	_, err = svc.UpdateQuantity(ctx, c, customer.Guest(), item.Key, 1)
	require.NoError(t, err)

	got := c.Items[item.Key]
	require.Equal(t, money.Money(12_00), got.UnitPrice)
	require.Equal(t, money.Money(12_00), got.OriginalPrice)
	require.Equal(t, money.Money(24_00), c.Subtotal())
	require.Equal(t, money.Money(2_40), got.VoucherDiscount, "voucher reallocates over the repriced line")
}

func TestGetReturnsEmptyCartForNewSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	c, err := svc.Get(context.Background(), "fresh", customer.Guest(), false)
	require.NoError(t, err)
	require.Empty(t, c.Items)
	require.Equal(t, "fresh", c.SessionID)
}

func TestGetRefreshesStaleCart(t *testing.T) {
	ctx := context.Background()
	svc, cat, _ := newTestService(t)

	kept := stubVariant(10_00, 5)
	kept.SKU = "KEPT"
	cat.variants["KEPT"] = kept
	gone := stubVariant(20_00, 5)
	gone.SKU = "GONE"
	cat.variants["GONE"] = gone
	scarce := stubVariant(5_00, 10)
	scarce.SKU = "SCARCE"
	cat.variants["SCARCE"] = scarce

	c := New("s1")
	_, _, err := svc.AddItem(ctx, c, customer.Guest(), "KEPT", 1, nil)
	require.NoError(t, err)
	_, _, err = svc.AddItem(ctx, c, customer.Guest(), "GONE", 1, nil)
	require.NoError(t, err)
	scarceItem, _, err := svc.AddItem(ctx, c, customer.Guest(), "SCARCE", 8, nil)
	require.NoError(t, err)

	// Catalog moves underneath the cart.
	delete(cat.variants, "GONE")
	kept.Price = 12_00
	cat.variants["KEPT"] = kept
	scarce.StockLevel = 3
	cat.variants["SCARCE"] = scarce

	// Cart is stale, so Get reconciles.
	c.LastRefreshed = testNow.Add(-10 * time.Minute)
	require.NoError(t, svc.Sessions.Save(ctx, c))

	refreshed, err := svc.Get(ctx, "s1", customer.Guest(), false)
	require.NoError(t, err)
	require.Len(t, refreshed.Items, 2)
	require.NotContains(t, refreshed.Items, ItemKey(gone.ProductID, "GONE", nil))

	keptItem := refreshed.Items[ItemKey(kept.ProductID, "KEPT", nil)]
	require.Equal(t, money.Money(12_00), keptItem.UnitPrice)
	require.Equal(t, money.Money(12_00), keptItem.OriginalPrice)

	require.Equal(t, 3, refreshed.Items[scarceItem.Key].Quantity, "quantity clamps to remaining stock")
	require.Equal(t, testNow, refreshed.LastRefreshed.UTC())
}

func TestGetSkipsFreshCart(t *testing.T) {
	ctx := context.Background()
	svc, cat, _ := newTestService(t)
	v := stubVariant(10_00, 5)
	v.SKU = "A"
	cat.variants["A"] = v

	c := New("s1")
	_, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 1, nil)
	require.NoError(t, err)
	c.LastRefreshed = testNow.Add(-time.Minute)
	require.NoError(t, svc.Sessions.Save(ctx, c))

	// Price changes are invisible until the staleness window lapses.
	v.Price = 99_00
	cat.variants["A"] = v

	loaded, err := svc.Get(ctx, "s1", customer.Guest(), false)
	require.NoError(t, err)
	require.Equal(t, money.Money(10_00), loaded.Items[ItemKey(v.ProductID, "A", nil)].UnitPrice)

	forced, err := svc.Get(ctx, "s1", customer.Guest(), true)
	require.NoError(t, err)
	require.Equal(t, money.Money(99_00), forced.Items[ItemKey(v.ProductID, "A", nil)].UnitPrice)
}

func TestRefreshInvalidatesOfferWithoutReselecting(t *testing.T) {
	ctx := context.Background()
	svc, cat, disc := newTestService(t)

	v := stubVariant(30_00, 10)
	v.SKU = "A"
	cat.variants["A"] = v
	offer := percentageOffer(1000)
	cat.offers = append(cat.offers, offer)
	disc.offers[offer.ID] = offer

	c := New("s1")
	item, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 1, nil)
	require.NoError(t, err)
	require.Equal(t, money.Money(27_00), item.UnitPrice)

	// The attached offer dies; a richer one appears. Refresh only re-derives
	// validity of the attached offer and falls back to list price.
	offer.IsActive = false
	richer := percentageOffer(5000)
	cat.offers = append(cat.offers, richer)
	disc.offers[richer.ID] = richer

	c.LastRefreshed = testNow.Add(-10 * time.Minute)
	require.NoError(t, svc.Sessions.Save(ctx, c))

	refreshed, err := svc.Get(ctx, "s1", customer.Guest(), false)
	require.NoError(t, err)
	got := refreshed.Items[item.Key]
	require.Equal(t, money.Money(30_00), got.UnitPrice)
	require.False(t, got.OfferApplied)
	require.NotNil(t, got.ActiveOffer)
	require.Equal(t, offer.ID, got.ActiveOffer.OfferID, "the original offer stays attached, invalid")
	require.False(t, got.ActiveOffer.IsValid)
}

func TestApplyVoucherProductTarget(t *testing.T) {
	ctx := context.Background()
	svc, cat, disc := newTestService(t)

	plain := stubVariant(40_00, 10)
	plain.SKU = "PLAIN"
	cat.variants["PLAIN"] = plain
	promo := stubVariant(30_00, 10)
	promo.SKU = "PROMO"
	cat.variants["PROMO"] = promo

	autoOffer := percentageOffer(1000)
	autoOffer.Conditions = []discount.OfferCondition{{
		Type:       discount.SpecificProducts,
		ProductIDs: []uuid.UUID{promo.ProductID},
	}}
	cat.offers = append(cat.offers, autoOffer)
	disc.offers[autoOffer.ID] = autoOffer

	voucherOffer := percentageOffer(2000)
	voucherOffer.RequiresVoucher = true
	voucher := voucherFor(voucherOffer, "HEMAT20")
	disc.vouchers["HEMAT20"] = voucher

	c := New("s1")
	_, _, err := svc.AddItem(ctx, c, customer.Guest(), "PLAIN", 1, nil)
	require.NoError(t, err)
	promoItem, _, err := svc.AddItem(ctx, c, customer.Guest(), "PROMO", 1, nil)
	require.NoError(t, err)
	require.True(t, promoItem.OfferApplied)

	require.NoError(t, svc.ApplyVoucher(ctx, c, customer.Guest(), "hemat20"))
	require.NotNil(t, c.Voucher)
	require.Equal(t, "HEMAT20", c.Voucher.Code)

	plainItem := c.Items[ItemKey(plain.ProductID, "PLAIN", nil)]
	require.Equal(t, money.Money(8_00), plainItem.VoucherDiscount)
	require.Equal(t, money.Money(0), promoItem.VoucherDiscount, "offer lines never stack a voucher on top")
	require.Equal(t, money.Money(8_00), c.TotalVoucherDiscount())
}

func TestApplyVoucherNoEligibleItem(t *testing.T) {
	ctx := context.Background()
	svc, cat, disc := newTestService(t)

	v := stubVariant(40_00, 10)
	v.SKU = "A"
	cat.variants["A"] = v

	voucherOffer := percentageOffer(2000)
	voucherOffer.RequiresVoucher = true
	voucherOffer.Conditions = []discount.OfferCondition{{
		Type:       discount.SpecificProducts,
		ProductIDs: []uuid.UUID{uuid.New()},
	}}
	disc.vouchers["NICHE"] = voucherFor(voucherOffer, "NICHE")

	c := New("s1")
	_, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 1, nil)
	require.NoError(t, err)

	err = svc.ApplyVoucher(ctx, c, customer.Guest(), "NICHE")
	require.ErrorIs(t, err, ErrNoEligibleItem)
	require.Nil(t, c.Voucher)
}

func freeShippingOffer() *discount.Offer {
	offer := percentageOffer(0)
	offer.DiscountType = discount.FreeShipping
	offer.RequiresVoucher = true
	return offer
}

func TestApplyVoucherFreeShippingNeedsEligibleItem(t *testing.T) {
	ctx := context.Background()
	svc, cat, disc := newTestService(t)

	v := stubVariant(20_00, 5)
	v.SKU = "A"
	v.ShippingFee = 7_00
	cat.variants["A"] = v

	offer := freeShippingOffer()
	offer.Conditions = []discount.OfferCondition{{
		Type:       discount.SpecificProducts,
		ProductIDs: []uuid.UUID{uuid.New()},
	}}
	disc.vouchers["SHIPFREE"] = voucherFor(offer, "SHIPFREE")

	c := New("s1")
	_, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 1, nil)
	require.NoError(t, err)

	err = svc.ApplyVoucher(ctx, c, customer.Guest(), "SHIPFREE")
	require.ErrorIs(t, err, ErrNoEligibleItem)
	require.Nil(t, c.Voucher)
	require.Equal(t, money.Money(7_00), c.TotalShipping())
}

func TestApplyVoucherFreeShippingWaivesEligibleLines(t *testing.T) {
	ctx := context.Background()
	svc, cat, disc := newTestService(t)

	a := stubVariant(20_00, 5)
	a.SKU = "A"
	a.ShippingFee = 7_00
	cat.variants["A"] = a
	b := stubVariant(15_00, 5)
	b.SKU = "B"
	b.ShippingFee = 3_00
	cat.variants["B"] = b

	offer := freeShippingOffer()
	offer.Conditions = []discount.OfferCondition{{
		Type:       discount.SpecificProducts,
		ProductIDs: []uuid.UUID{a.ProductID},
	}}
	disc.vouchers["SHIPFREE"] = voucherFor(offer, "SHIPFREE")

	c := New("s1")
	aItem, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 1, nil)
	require.NoError(t, err)
	bItem, _, err := svc.AddItem(ctx, c, customer.Guest(), "B", 1, nil)
	require.NoError(t, err)

	require.NoError(t, svc.ApplyVoucher(ctx, c, customer.Guest(), "SHIPFREE"))
	require.True(t, c.Items[aItem.Key].ShippingWaived)
	require.False(t, c.Items[bItem.Key].ShippingWaived)
	require.Equal(t, money.Money(3_00), c.TotalShipping(), "only the eligible line's fee is waived")
	require.Equal(t, money.Money(0), c.TotalVoucherDiscount(), "a shipping waiver is not a line discount")

	require.NoError(t, svc.RemoveVoucher(ctx, c))
	require.False(t, c.Items[aItem.Key].ShippingWaived)
	require.Equal(t, money.Money(10_00), c.TotalShipping())
}

func TestApplyVoucherOrderTarget(t *testing.T) {
	ctx := context.Background()
	svc, cat, disc := newTestService(t)

	v := stubVariant(60_00, 10)
	v.SKU = "A"
	cat.variants["A"] = v

	offer := percentageOffer(1000)
	offer.Target = discount.TargetOrder
	offer.RequiresVoucher = true
	disc.vouchers["ORDER10"] = voucherFor(offer, "ORDER10")

	c := New("s1")
	_, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 2, nil)
	require.NoError(t, err)

	require.NoError(t, svc.ApplyVoucher(ctx, c, customer.Guest(), "ORDER10"))
	require.Equal(t, money.Money(12_00), c.Voucher.OrderDiscount)
	require.Equal(t, money.Money(108_00), c.Total())
}

func TestApplyVoucherBudgetPreview(t *testing.T) {
	ctx := context.Background()
	svc, cat, disc := newTestService(t)

	v := stubVariant(100_00, 10)
	v.SKU = "A"
	cat.variants["A"] = v

	offer := percentageOffer(1000)
	offer.Target = discount.TargetOrder
	offer.RequiresVoucher = true
	offer.MaxDiscountAllowed = 50_00
	offer.TotalDiscountOffered = 45_00
	disc.vouchers["TIGHT"] = voucherFor(offer, "TIGHT")

	c := New("s1")
	_, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 1, nil)
	require.NoError(t, err)

	err = svc.ApplyVoucher(ctx, c, customer.Guest(), "TIGHT")
	require.ErrorIs(t, err, discount.ErrBudgetExceeded)
}

func TestApplyVoucherExpired(t *testing.T) {
	ctx := context.Background()
	svc, cat, disc := newTestService(t)

	v := stubVariant(40_00, 10)
	v.SKU = "A"
	cat.variants["A"] = v

	offer := percentageOffer(1000)
	offer.RequiresVoucher = true
	voucher := voucherFor(offer, "OLD")
	voucher.ValidTo = testNow.Add(-time.Hour)
	disc.vouchers["OLD"] = voucher

	c := New("s1")
	_, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 1, nil)
	require.NoError(t, err)

	err = svc.ApplyVoucher(ctx, c, customer.Guest(), "OLD")
	require.ErrorIs(t, err, discount.ErrVoucherExpired)
}

func TestVoucherDroppedWhenCartShrinks(t *testing.T) {
	ctx := context.Background()
	svc, cat, disc := newTestService(t)

	v := stubVariant(100_00, 10)
	v.SKU = "A"
	cat.variants["A"] = v

	offer := percentageOffer(1000)
	offer.Target = discount.TargetOrder
	offer.RequiresVoucher = true
	offer.Conditions = []discount.OfferCondition{{Type: discount.MinOrderValue, MinOrderValue: 150_00}}
	disc.vouchers["BIG"] = voucherFor(offer, "BIG")

	c := New("s1")
	item, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 2, nil)
	require.NoError(t, err)
	require.NoError(t, svc.ApplyVoucher(ctx, c, customer.Guest(), "BIG"))
	require.NotNil(t, c.Voucher)

	// Dropping below the minimum silently sheds the voucher.
	_, err = svc.UpdateQuantity(ctx, c, customer.Guest(), item.Key, -1)
	require.NoError(t, err)
	require.Nil(t, c.Voucher)
	require.Equal(t, money.Money(0), c.TotalVoucherDiscount())
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()
	svc, cat, disc := newTestService(t)
	redeemer := &fakeRedeemer{}
	sink := &fakeSink{}
	svc.Redeemer = redeemer
	svc.Events = sink

	v := stubVariant(60_00, 10)
	v.SKU = "A"
	v.ShippingFee = 5_00
	cat.variants["A"] = v

	offer := percentageOffer(1000)
	offer.Target = discount.TargetOrder
	offer.RequiresVoucher = true
	disc.vouchers["ORDER10"] = voucherFor(offer, "ORDER10")

	c := New("s1")
	_, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 2, nil)
	require.NoError(t, err)
	require.NoError(t, svc.ApplyVoucher(ctx, c, customer.Guest(), "ORDER10"))

	snapshot, err := svc.Checkout(ctx, c, customer.Customer{ID: "cust-1"})
	require.NoError(t, err)
	require.Equal(t, 1, redeemer.calls)
	require.Equal(t, money.Money(12_00), redeemer.amount)
	require.Equal(t, "120.00", snapshot.Subtotal)
	require.Equal(t, "5.00", snapshot.ShippingTotal)
	require.Equal(t, "ORDER10", snapshot.VoucherCode)
	require.Equal(t, "12.00", snapshot.VoucherDiscount)
	require.Equal(t, "113.00", snapshot.Total)
	require.Equal(t, "cust-1", snapshot.CustomerID)
	require.Len(t, snapshot.Lines, 1)
	require.Equal(t, "60.00", snapshot.Lines[0].UnitPrice)

	// The session is gone after checkout, and the event went out.
	_, err = svc.Sessions.Load(ctx, "s1")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.Equal(t, []string{events.TopicCartCheckedOut}, sink.topics)
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Checkout(context.Background(), New("s1"), customer.Guest())
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckoutRedemptionFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	svc, cat, disc := newTestService(t)
	redeemer := &fakeRedeemer{err: discount.ErrBudgetExceeded}
	svc.Redeemer = redeemer

	v := stubVariant(60_00, 10)
	v.SKU = "A"
	cat.variants["A"] = v

	offer := percentageOffer(1000)
	offer.Target = discount.TargetOrder
	offer.RequiresVoucher = true
	disc.vouchers["ORDER10"] = voucherFor(offer, "ORDER10")

	c := New("s1")
	_, _, err := svc.AddItem(ctx, c, customer.Guest(), "A", 1, nil)
	require.NoError(t, err)
	require.NoError(t, svc.ApplyVoucher(ctx, c, customer.Guest(), "ORDER10"))

	_, err = svc.Checkout(ctx, c, customer.Customer{ID: "cust-1"})
	require.ErrorIs(t, err, discount.ErrBudgetExceeded)

	// Cart survives so the shopper can retry without the voucher.
	loaded, err := svc.Sessions.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
}
