package discount

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pasarloka/keranjang/internal/customer"
)

type redemptionMap map[string]bool

func (m redemptionMap) HasRedeemed(_ context.Context, voucherID uuid.UUID, customerID string) (bool, error) {
	return m[voucherID.String()+"/"+customerID], nil
}

func testVoucher(t *testing.T, usage UsageType) *Voucher {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	offer := liveOffer(t)
	return &Voucher{
		ID:            uuid.New(),
		Code:          "MARET10",
		OfferID:       offer.ID,
		Offer:         offer,
		UsageType:     usage,
		MaxUsageLimit: 100,
		ValidFrom:     now.Add(-time.Hour),
		ValidTo:       now.Add(time.Hour),
	}
}

func TestNormalizeCode(t *testing.T) {
	require.Equal(t, "MARET10", NormalizeCode("  maret10 "))
	require.Equal(t, "", NormalizeCode("   "))
}

func TestVoucherSingleUse(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := testVoucher(t, UsageSingle)
	v.MaxUsageLimit = 1
	cust := customer.Customer{ID: "c1"}

	ok, reason, err := v.IsValid(ctx, cust, 100_00, now, redemptionMap{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "voucher is valid", reason)

	// A second redemption attempt sees the advanced counter and is refused.
	v.NumOfUsage = 1
	ok, reason, err = v.IsValid(ctx, cust, 100_00, now, redemptionMap{})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "usage limit reached", reason)
}

func TestVoucherOncePerCustomer(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := testVoucher(t, UsageOncePerCustomer)
	redeemed := redemptionMap{v.ID.String() + "/c1": true}

	ok, _, err := v.IsValid(ctx, customer.Customer{ID: "c1"}, 100_00, now, redeemed)
	require.NoError(t, err)
	require.False(t, ok, "customer already redeemed this voucher")

	ok, _, err = v.IsValid(ctx, customer.Customer{ID: "c2"}, 100_00, now, redeemed)
	require.NoError(t, err)
	require.True(t, ok, "a different customer still qualifies")

	ok, _, err = v.IsValid(ctx, customer.Guest(), 100_00, now, redeemed)
	require.NoError(t, err)
	require.False(t, ok, "anonymous sessions cannot hold per-customer vouchers")
}

func TestVoucherValidityWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := testVoucher(t, UsageMultiple)

	require.True(t, v.WithinValidityPeriod(now))
	require.False(t, v.WithinValidityPeriod(v.ValidFrom), "window opens strictly after valid_from")
	require.True(t, v.WithinValidityPeriod(v.ValidTo), "valid_to itself is inside the window")
	require.False(t, v.WithinValidityPeriod(v.ValidTo.Add(time.Second)))

	// A live voucher attached to an expired offer is unusable.
	v.Offer.ValidTo = now.Add(-time.Minute)
	require.False(t, v.WithinValidityPeriod(now))
}

func TestVoucherChecksRunInOrder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := testVoucher(t, UsageMultiple)
	v.NumOfUsage = v.MaxUsageLimit
	v.ValidTo = now.Add(-time.Hour)
	v.Offer.Conditions = []OfferCondition{{Type: MinOrderValue, MinOrderValue: 500_00}}

	// All three checks would fail here; the usage limit is reported because it
	// runs first.
	ok, reason, err := v.IsValid(ctx, customer.Guest(), 0, now, redemptionMap{})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "usage limit reached", reason)

	v.NumOfUsage = 0
	ok, reason, err = v.IsValid(ctx, customer.Guest(), 0, now, redemptionMap{})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "voucher expired", reason)

	v.ValidTo = now.Add(time.Hour)
	ok, reason, err = v.IsValid(ctx, customer.Guest(), 0, now, redemptionMap{})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "order below minimum purchase", reason)
}
