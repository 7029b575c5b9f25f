package customer

import "context"

// Customer is the identity a cart operates on behalf of. Anonymous sessions
// carry no identifier and never qualify for customer-bound vouchers.
type Customer struct {
	ID             string
	Anonymous      bool
	FirstTimeBuyer bool
}

// Guest returns the identity used for unauthenticated sessions.
func Guest() Customer {
	return Customer{Anonymous: true}
}

// Provider resolves an authenticated customer's profile flags.
type Provider interface {
	Resolve(ctx context.Context, id string) (Customer, error)
}
