package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store reads variants straight from Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

// VariantBySKU loads one variant together with its product's category and
// active flags. Inactive products make every variant unsellable.
func (s *Store) VariantBySKU(ctx context.Context, sku string) (Variant, error) {
	var v Variant
	row := s.Pool.QueryRow(ctx, `
		SELECT v.id, v.product_id, p.category_id, v.sku, p.title,
		       v.price, v.shipping_fee, v.stock_level,
		       v.is_active AND p.is_active,
		       COALESCE(v.attrs, '{}'::jsonb)
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.sku = $1`, sku)
	err := row.Scan(
		&v.ID, &v.ProductID, &v.CategoryID, &v.SKU, &v.Title,
		&v.Price, &v.ShippingFee, &v.StockLevel,
		&v.IsActive,
		&v.Attrs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Variant{}, ErrVariantNotFound
		}
		return Variant{}, fmt.Errorf("load variant %s: %w", sku, err)
	}
	return v, nil
}
