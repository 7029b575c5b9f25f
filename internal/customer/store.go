package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the customer id does not exist.
var ErrNotFound = errors.New("customer not found")

// Store resolves customer identity flags from Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

// Resolve loads the customer and derives the first-time-buyer flag. A customer
// counts as a first-time buyer until their first order is recorded.
func (s *Store) Resolve(ctx context.Context, id string) (Customer, error) {
	if s == nil || s.Pool == nil {
		return Customer{}, errors.New("customer store not configured")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Customer{}, fmt.Errorf("parse customer id: %w", err)
	}
	var firstTime bool
	row := s.Pool.QueryRow(ctx,
		`SELECT first_order_at IS NULL FROM customers WHERE id = $1`, parsed)
	if err := row.Scan(&firstTime); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, err
	}
	return Customer{ID: parsed.String(), FirstTimeBuyer: firstTime}, nil
}
