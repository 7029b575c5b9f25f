package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so the same queries can
// run inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store loads vouchers and offers from Postgres and performs the conditional
// counter updates that keep the shared budget and usage invariants intact.
type Store struct {
	Pool *pgxpool.Pool
}

func (s *Store) db() DBTX { return s.Pool }

// GetVoucherByCode loads a voucher with its parent offer and the offer's
// conditions. The code must already be normalized.
func (s *Store) GetVoucherByCode(ctx context.Context, code string) (*Voucher, error) {
	return getVoucherByCode(ctx, s.db(), code, false)
}

func getVoucherByCode(ctx context.Context, db DBTX, code string, forUpdate bool) (*Voucher, error) {
	query := `
		SELECT v.id, v.code, v.name, v.offer_id, v.usage_type, v.max_usage_limit, v.num_of_usage,
		       v.valid_from, v.valid_to,
		       o.title, o.target, o.discount_type, o.discount_value,
		       o.valid_from, o.valid_to, o.is_active, o.requires_voucher,
		       o.max_discount_allowed, o.total_discount_offered
		FROM vouchers v
		JOIN offers o ON o.id = v.offer_id
		WHERE v.code = $1`
	if forUpdate {
		query += " FOR UPDATE OF v, o"
	}
	var (
		v Voucher
		o Offer
	)
	row := db.QueryRow(ctx, query, code)
	err := row.Scan(
		&v.ID, &v.Code, &v.Name, &v.OfferID, &v.UsageType, &v.MaxUsageLimit, &v.NumOfUsage,
		&v.ValidFrom, &v.ValidTo,
		&o.Title, &o.Target, &o.DiscountType, &o.DiscountValue,
		&o.ValidFrom, &o.ValidTo, &o.IsActive, &o.RequiresVoucher,
		&o.MaxDiscountAllowed, &o.TotalDiscountOffered,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load voucher: %w", err)
	}
	o.ID = v.OfferID
	conditions, err := loadConditions(ctx, db, o.ID)
	if err != nil {
		return nil, err
	}
	o.Conditions = conditions
	v.Offer = &o
	return &v, nil
}

func loadConditions(ctx context.Context, db DBTX, offerID uuid.UUID) ([]OfferCondition, error) {
	rows, err := db.Query(ctx, `
		SELECT id, condition_type, COALESCE(min_order_value, 0), COALESCE(eligible_customers, '')
		FROM offer_conditions
		WHERE offer_id = $1
		ORDER BY created_at`, offerID)
	if err != nil {
		return nil, fmt.Errorf("load offer conditions: %w", err)
	}
	defer rows.Close()

	type condRow struct {
		id   uuid.UUID
		cond OfferCondition
	}
	var loaded []condRow
	for rows.Next() {
		var r condRow
		if err := rows.Scan(&r.id, &r.cond.Type, &r.cond.MinOrderValue, &r.cond.EligibleCustomers); err != nil {
			return nil, fmt.Errorf("scan offer condition: %w", err)
		}
		loaded = append(loaded, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]OfferCondition, 0, len(loaded))
	for _, r := range loaded {
		switch r.cond.Type {
		case SpecificProducts:
			ids, err := loadConditionIDs(ctx, db,
				`SELECT product_id FROM offer_condition_products WHERE condition_id = $1`, r.id)
			if err != nil {
				return nil, err
			}
			r.cond.ProductIDs = ids
		case SpecificCategories:
			ids, err := loadConditionIDs(ctx, db,
				`SELECT category_id FROM offer_condition_categories WHERE condition_id = $1`, r.id)
			if err != nil {
				return nil, err
			}
			r.cond.CategoryIDs = ids
		}
		out = append(out, r.cond)
	}
	return out, nil
}

func loadConditionIDs(ctx context.Context, db DBTX, query string, conditionID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.Query(ctx, query, conditionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// OfferByID loads a single offer with its conditions.
func (s *Store) OfferByID(ctx context.Context, id uuid.UUID) (*Offer, error) {
	var o Offer
	row := s.db().QueryRow(ctx, `
		SELECT id, title, target, discount_type, discount_value,
		       valid_from, valid_to, is_active, requires_voucher,
		       max_discount_allowed, total_discount_offered
		FROM offers
		WHERE id = $1`, id)
	err := row.Scan(
		&o.ID, &o.Title, &o.Target, &o.DiscountType, &o.DiscountValue,
		&o.ValidFrom, &o.ValidTo, &o.IsActive, &o.RequiresVoucher,
		&o.MaxDiscountAllowed, &o.TotalDiscountOffered,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load offer: %w", err)
	}
	conditions, err := loadConditions(ctx, s.db(), o.ID)
	if err != nil {
		return nil, err
	}
	o.Conditions = conditions
	return &o, nil
}

// ActiveProductOffers lists live automatic product-target offers, conditions
// included. Voucher-gated offers are excluded; those only apply through a code.
func (s *Store) ActiveProductOffers(ctx context.Context, now time.Time) ([]*Offer, error) {
	rows, err := s.db().Query(ctx, `
		SELECT id, title, target, discount_type, discount_value,
		       valid_from, valid_to, is_active, requires_voucher,
		       max_discount_allowed, total_discount_offered
		FROM offers
		WHERE is_active
		  AND NOT requires_voucher
		  AND target = 'product'
		  AND valid_from <= $1
		  AND valid_to >= $1
		ORDER BY discount_value DESC`, now)
	if err != nil {
		return nil, fmt.Errorf("list active offers: %w", err)
	}
	defer rows.Close()

	var offers []*Offer
	for rows.Next() {
		var o Offer
		if err := rows.Scan(
			&o.ID, &o.Title, &o.Target, &o.DiscountType, &o.DiscountValue,
			&o.ValidFrom, &o.ValidTo, &o.IsActive, &o.RequiresVoucher,
			&o.MaxDiscountAllowed, &o.TotalDiscountOffered,
		); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range offers {
		conditions, err := loadConditions(ctx, s.db(), o.ID)
		if err != nil {
			return nil, err
		}
		o.Conditions = conditions
	}
	return offers, nil
}

// HasRedeemed reports whether the customer already holds a redemption row for
// the voucher.
func (s *Store) HasRedeemed(ctx context.Context, voucherID uuid.UUID, customerID string) (bool, error) {
	return hasRedeemed(ctx, s.db(), voucherID, customerID)
}

func hasRedeemed(ctx context.Context, db DBTX, voucherID uuid.UUID, customerID string) (bool, error) {
	cid, err := uuid.Parse(customerID)
	if err != nil {
		return false, fmt.Errorf("parse customer id: %w", err)
	}
	var exists bool
	row := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM redeemed_vouchers WHERE voucher_id = $1 AND customer_id = $2)`,
		voucherID, cid)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// incrementUsage advances num_of_usage only while the quota holds; zero rows
// affected means the limit was hit by a concurrent redemption.
func incrementUsage(ctx context.Context, db DBTX, v *Voucher) error {
	tag, err := db.Exec(ctx, `
		UPDATE vouchers
		SET num_of_usage = num_of_usage + 1
		WHERE id = $1
		  AND num_of_usage < max_usage_limit
		  AND (usage_type <> 'single' OR num_of_usage = 0)`, v.ID)
	if err != nil {
		return fmt.Errorf("increment voucher usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUsageLimitReached
	}
	return nil
}

// spendBudget adds amount to the offer's running total only while the ceiling
// holds, so concurrent redemptions can never overshoot the shared budget.
func spendBudget(ctx context.Context, db DBTX, offerID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return nil
	}
	tag, err := db.Exec(ctx, `
		UPDATE offers
		SET total_discount_offered = total_discount_offered + $2
		WHERE id = $1
		  AND total_discount_offered + $2 <= max_discount_allowed`, offerID, amount)
	if err != nil {
		return fmt.Errorf("spend offer budget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBudgetExceeded
	}
	return nil
}

func insertRedemption(ctx context.Context, db DBTX, voucherID uuid.UUID, customerID string) error {
	cid, err := uuid.Parse(customerID)
	if err != nil {
		return fmt.Errorf("parse customer id: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO redeemed_vouchers (voucher_id, customer_id)
		VALUES ($1, $2)`, voucherID, cid)
	if err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}
