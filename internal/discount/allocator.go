package discount

import (
	"github.com/google/uuid"

	"github.com/pasarloka/keranjang/internal/money"
)

// Line is the slice of cart state the allocator needs for one item.
type Line struct {
	Key          string
	Product      ProductRef
	Quantity     int
	UnitPrice    money.Money
	ShippingFee  money.Money
	OfferApplied bool
}

// ItemDiscount is a computed voucher discount attached to a single line.
type ItemDiscount struct {
	VoucherID uuid.UUID
	Type      DiscountType
	Amount    money.Money
}

// AllocateProduct distributes a product-target voucher offer over cart lines.
// Lines already benefiting from an automatic offer are skipped so discounts
// never stack; remaining lines must satisfy the offer's product or category
// eligibility. Fixed discounts are capped at the line total. Free-shipping
// offers waive the eligible lines' shipping fees and record the waived fee as
// the allocation amount. Returns the per-line allocations keyed by line key
// and their sum.
func AllocateProduct(offer *Offer, voucherID uuid.UUID, lines []Line) (map[string]ItemDiscount, money.Money) {
	allocations := make(map[string]ItemDiscount)
	var total money.Money
	for _, line := range lines {
		if line.OfferApplied {
			continue
		}
		if !eligibleForOffer(offer, line.Product) {
			continue
		}
		if offer.DiscountType == FreeShipping {
			// A zero fee still counts as an eligible line, the waiver is a no-op.
			allocations[line.Key] = ItemDiscount{VoucherID: voucherID, Type: FreeShipping, Amount: line.ShippingFee}
			total += line.ShippingFee
			continue
		}
		lineTotal := money.Mul(line.UnitPrice, line.Quantity)
		if lineTotal <= 0 {
			continue
		}
		var amount money.Money
		switch offer.DiscountType {
		case Percentage:
			amount = money.Percent(lineTotal, offer.DiscountValue)
		case Fixed:
			amount = offer.DiscountValue
			if amount > lineTotal {
				amount = lineTotal
			}
		default:
			continue
		}
		if amount <= 0 {
			continue
		}
		allocations[line.Key] = ItemDiscount{VoucherID: voucherID, Type: offer.DiscountType, Amount: amount}
		total += amount
	}
	return allocations, total
}

// AllocateOrder computes a single discount over the cart subtotal for an
// order-target voucher offer, capped at the subtotal.
func AllocateOrder(offer *Offer, subtotal money.Money) money.Money {
	if subtotal <= 0 {
		return 0
	}
	var amount money.Money
	switch offer.DiscountType {
	case Percentage:
		amount = money.Percent(subtotal, offer.DiscountValue)
	case Fixed:
		amount = offer.DiscountValue
	default:
		return 0
	}
	if amount > subtotal {
		amount = subtotal
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// eligibleForOffer mirrors the product/category membership test without the
// customer-group check; the validator has already vetted the customer by the
// time allocation runs.
func eligibleForOffer(offer *Offer, product ProductRef) bool {
	prodCond := offer.condition(SpecificProducts)
	catCond := offer.condition(SpecificCategories)
	if prodCond == nil && catCond == nil {
		return true
	}
	if prodCond != nil && containsUUID(prodCond.ProductIDs, product.ID) {
		return true
	}
	if catCond != nil && containsUUID(catCond.CategoryIDs, product.CategoryID) {
		return true
	}
	return false
}
