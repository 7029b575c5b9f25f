package discount

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pasarloka/keranjang/internal/customer"
	"github.com/pasarloka/keranjang/internal/money"
)

// NormalizeCode canonicalizes a voucher code the way it is stored: trimmed and
// upper-cased.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RedemptionChecker reports whether a customer has already redeemed a voucher.
// It backs the once_per_customer usage type.
type RedemptionChecker interface {
	HasRedeemed(ctx context.Context, voucherID uuid.UUID, customerID string) (bool, error)
}

// WithinUsageLimits checks the voucher's usage quota for the given customer.
func (v *Voucher) WithinUsageLimits(ctx context.Context, cust customer.Customer, redeemed RedemptionChecker) (bool, error) {
	if v.NumOfUsage >= v.MaxUsageLimit {
		return false, nil
	}
	switch v.UsageType {
	case UsageSingle:
		return v.NumOfUsage == 0, nil
	case UsageOncePerCustomer:
		if cust.Anonymous {
			return false, nil
		}
		if redeemed == nil {
			return false, nil
		}
		used, err := redeemed.HasRedeemed(ctx, v.ID, cust.ID)
		if err != nil {
			return false, err
		}
		return !used, nil
	default:
		return true, nil
	}
}

// WithinValidityPeriod reports whether the voucher and its parent offer are
// live. The window is half-open: valid strictly after ValidFrom, up to and
// including ValidTo.
func (v *Voucher) WithinValidityPeriod(now time.Time) bool {
	if v.Offer != nil && v.Offer.IsExpired(now) {
		return false
	}
	return v.ValidFrom.Before(now) && !v.ValidTo.Before(now)
}

// IsValid runs the ordered validity checks: usage limits first, then the
// validity window, then the minimum order value. The first failure wins and
// its reason is returned for the caller to surface.
func (v *Voucher) IsValid(ctx context.Context, cust customer.Customer, orderValue money.Money, now time.Time, redeemed RedemptionChecker) (bool, string, error) {
	ok, err := v.WithinUsageLimits(ctx, cust, redeemed)
	if err != nil {
		return false, "", err
	}
	if !ok {
		return false, "usage limit reached", nil
	}
	if !v.WithinValidityPeriod(now) {
		return false, "voucher expired", nil
	}
	if v.Offer != nil && !v.Offer.AboveMinPurchase(orderValue) {
		return false, "order below minimum purchase", nil
	}
	return true, "voucher is valid", nil
}
