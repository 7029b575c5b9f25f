package discount

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pasarloka/keranjang/internal/money"
)

var (
	// ErrNotFound indicates the voucher code or offer does not exist.
	ErrNotFound = errors.New("voucher not found")
	// ErrNotEligible is returned when the voucher cannot be applied to the provided cart.
	ErrNotEligible = errors.New("voucher not eligible")
	// ErrUsageLimitReached indicates the voucher has exhausted its usage quota.
	ErrUsageLimitReached = errors.New("usage limit reached")
	// ErrVoucherExpired is returned when the voucher or its parent offer is outside the validity window.
	ErrVoucherExpired = errors.New("voucher expired")
	// ErrBelowMinimum indicates the order total did not meet the offer requirement.
	ErrBelowMinimum = errors.New("order below minimum purchase")
	// ErrBudgetExceeded indicates the offer's shared discount budget cannot cover the redemption.
	ErrBudgetExceeded = errors.New("offer discount budget exceeded")
)

// OfferTarget says whether an offer discounts individual products or the whole order.
type OfferTarget string

const (
	TargetProduct OfferTarget = "product"
	TargetOrder   OfferTarget = "order"
)

// DiscountType enumerates the supported discount mechanics.
type DiscountType string

const (
	Percentage   DiscountType = "percentage"
	Fixed        DiscountType = "fixed"
	FreeShipping DiscountType = "free_shipping"
)

// ConditionType enumerates offer condition kinds. Each (offer, type) pair is
// unique, so an offer carries at most one condition row per type.
type ConditionType string

const (
	SpecificProducts   ConditionType = "specific_products"
	SpecificCategories ConditionType = "specific_categories"
	CustomerGroups     ConditionType = "customer_groups"
	MinOrderValue      ConditionType = "min_order_value"
)

// CustomerGroup narrows an offer to a class of customers.
type CustomerGroup string

const (
	AllCustomers    CustomerGroup = "all_customers"
	FirstTimeBuyers CustomerGroup = "first_time_buyers"
)

// UsageType governs how often a voucher may be redeemed.
type UsageType string

const (
	UsageSingle          UsageType = "single"
	UsageMultiple        UsageType = "multiple"
	UsageOncePerCustomer UsageType = "once_per_customer"
)

// Offer is a discount campaign. TotalDiscountOffered is a running total shared
// across every customer and must never exceed MaxDiscountAllowed; it is only
// advanced through the store's conditional update at redemption time.
type Offer struct {
	ID                   uuid.UUID
	Title                string
	Target               OfferTarget
	DiscountType         DiscountType
	DiscountValue        money.Money
	ValidFrom            time.Time
	ValidTo              time.Time
	IsActive             bool
	RequiresVoucher      bool
	MaxDiscountAllowed   money.Money
	TotalDiscountOffered money.Money
	Conditions           []OfferCondition
}

// OfferCondition is one eligibility rule attached to an offer. Only the fields
// relevant to its Type are populated.
type OfferCondition struct {
	Type              ConditionType
	MinOrderValue     money.Money
	EligibleCustomers CustomerGroup
	ProductIDs        []uuid.UUID
	CategoryIDs       []uuid.UUID
}

// Voucher is a redeemable code bound to exactly one offer.
type Voucher struct {
	ID            uuid.UUID
	Code          string
	Name          string
	OfferID       uuid.UUID
	Offer         *Offer
	UsageType     UsageType
	MaxUsageLimit int32
	NumOfUsage    int32
	ValidFrom     time.Time
	ValidTo       time.Time
}

// ProductRef carries the product identity needed for condition checks.
type ProductRef struct {
	ID         uuid.UUID
	CategoryID uuid.UUID
}
