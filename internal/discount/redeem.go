package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pasarloka/keranjang/internal/customer"
	"github.com/pasarloka/keranjang/internal/events"
	"github.com/pasarloka/keranjang/internal/money"
	"github.com/pasarloka/keranjang/internal/obs"
)

// EventSink receives domain events emitted after a successful redemption.
type EventSink interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) error
}

// RedemptionResult captures the outcome of a completed redemption.
type RedemptionResult struct {
	VoucherID uuid.UUID
	OfferID   uuid.UUID
	Amount    money.Money
}

// Redeemer settles a voucher at order time: it revalidates, advances the
// usage counter, spends the offer's shared budget, and records the redemption
// row, all inside one transaction. The counter updates are conditional so two
// concurrent redemptions can never jointly exceed maxUsageLimit or
// maxDiscountAllowed.
type Redeemer struct {
	Pool   *pgxpool.Pool
	Events EventSink
	Logger zerolog.Logger
	Now    func() time.Time
}

func (r *Redeemer) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

type txChecker struct{ tx pgx.Tx }

func (c txChecker) HasRedeemed(ctx context.Context, voucherID uuid.UUID, customerID string) (bool, error) {
	return hasRedeemed(ctx, c.tx, voucherID, customerID)
}

// Redeem finalizes a voucher for the given customer and discount amount.
// Validation failures come back as ErrNotEligible-family errors; the caller
// renders the message, nothing is thrown past this boundary.
func (r *Redeemer) Redeem(ctx context.Context, code string, cust customer.Customer, orderValue, amount money.Money) (RedemptionResult, error) {
	if r == nil || r.Pool == nil {
		return RedemptionResult{}, errors.New("discount: redeemer not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" {
		return RedemptionResult{}, fmt.Errorf("code is required: %w", ErrNotFound)
	}

	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return RedemptionResult{}, fmt.Errorf("begin redemption: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	voucher, err := getVoucherByCode(ctx, tx, normalized, true)
	if err != nil {
		r.observe("not_found")
		return RedemptionResult{}, err
	}

	ok, reason, err := voucher.IsValid(ctx, cust, orderValue, r.now(), txChecker{tx: tx})
	if err != nil {
		return RedemptionResult{}, err
	}
	if !ok {
		r.observe("invalid")
		return RedemptionResult{}, fmt.Errorf("%s: %w", reason, reasonErr(reason))
	}

	if err := incrementUsage(ctx, tx, voucher); err != nil {
		r.observe("usage_exhausted")
		return RedemptionResult{}, err
	}
	if err := spendBudget(ctx, tx, voucher.OfferID, amount); err != nil {
		r.observe("budget_exceeded")
		return RedemptionResult{}, err
	}
	if !cust.Anonymous {
		if err := insertRedemption(ctx, tx, voucher.ID, cust.ID); err != nil {
			return RedemptionResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return RedemptionResult{}, fmt.Errorf("commit redemption: %w", err)
	}

	r.observe("redeemed")
	if obs.DiscountGrantedCents != nil && amount > 0 {
		obs.DiscountGrantedCents.Add(float64(amount))
	}
	if r.Events != nil {
		payload := map[string]any{
			"voucher_id": voucher.ID.String(),
			"offer_id":   voucher.OfferID.String(),
			"code":       voucher.Code,
			"amount":     money.String(amount),
		}
		if err := r.Events.Emit(ctx, events.TopicVoucherRedeemed, voucher.ID, payload); err != nil {
			r.Logger.Warn().Err(err).Str("voucher", voucher.Code).Msg("emit redemption event")
		}
	}
	return RedemptionResult{VoucherID: voucher.ID, OfferID: voucher.OfferID, Amount: amount}, nil
}

func (r *Redeemer) observe(result string) {
	if obs.VoucherRedeemTotal != nil {
		obs.VoucherRedeemTotal.WithLabelValues(result).Inc()
	}
}

func reasonErr(reason string) error {
	switch reason {
	case "usage limit reached":
		return ErrUsageLimitReached
	case "voucher expired":
		return ErrVoucherExpired
	case "order below minimum purchase":
		return ErrBelowMinimum
	default:
		return ErrNotEligible
	}
}
