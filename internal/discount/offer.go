package discount

import (
	"time"

	"github.com/google/uuid"

	"github.com/pasarloka/keranjang/internal/customer"
	"github.com/pasarloka/keranjang/internal/money"
)

// IsExpired reports whether now falls outside the offer's validity window.
func (o *Offer) IsExpired(now time.Time) bool {
	return now.Before(o.ValidFrom) || now.After(o.ValidTo)
}

// ApplyDiscount returns the price after the offer's discount. Fixed discounts
// never push a price below zero.
func (o *Offer) ApplyDiscount(price money.Money) money.Money {
	switch o.DiscountType {
	case FreeShipping:
		return 0
	case Percentage:
		return price - money.Percent(price, o.DiscountValue)
	case Fixed:
		discounted := price - o.DiscountValue
		if discounted < 0 {
			return 0
		}
		return discounted
	default:
		return price
	}
}

// DiscountAmount returns the absolute reduction the offer grants on price.
func (o *Offer) DiscountAmount(price money.Money) money.Money {
	switch o.DiscountType {
	case Percentage:
		return money.Percent(price, o.DiscountValue)
	case Fixed:
		if o.DiscountValue > price {
			return price
		}
		return o.DiscountValue
	default:
		return 0
	}
}

func (o *Offer) condition(kind ConditionType) *OfferCondition {
	for i := range o.Conditions {
		if o.Conditions[i].Type == kind {
			return &o.Conditions[i]
		}
	}
	return nil
}

// MinPurchase returns the offer's minimum order value, or zero when unset.
func (o *Offer) MinPurchase() money.Money {
	if cond := o.condition(MinOrderValue); cond != nil {
		return cond.MinOrderValue
	}
	return 0
}

// AboveMinPurchase reports whether orderValue meets the offer's minimum, if any.
func (o *Offer) AboveMinPurchase(orderValue money.Money) bool {
	minPurchase := o.MinPurchase()
	return minPurchase <= 0 || orderValue >= minPurchase
}

// ValidForCustomer checks the offer's customer-group condition, if present.
func (o *Offer) ValidForCustomer(cust customer.Customer) bool {
	cond := o.condition(CustomerGroups)
	if cond == nil {
		return true
	}
	switch cond.EligibleCustomers {
	case AllCustomers, "":
		return true
	case FirstTimeBuyers:
		return !cust.Anonymous && cust.FirstTimeBuyer
	default:
		return false
	}
}

// ValidForProduct checks product/category eligibility for the given customer.
// Offers with neither a product nor a category condition apply to all products.
func (o *Offer) ValidForProduct(product ProductRef, cust customer.Customer) bool {
	if !o.ValidForCustomer(cust) {
		return false
	}
	prodCond := o.condition(SpecificProducts)
	catCond := o.condition(SpecificCategories)
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

// ValidForOrder checks customer eligibility and any minimum order value.
func (o *Offer) ValidForOrder(cust customer.Customer, orderValue money.Money) bool {
	if !o.ValidForCustomer(cust) {
		return false
	}
	return o.AboveMinPurchase(orderValue)
}

// SatisfiesConditions checks whether the offer can apply in the given context:
// offer liveness, required target context, voucher binding, and the offer's
// condition list. The outcome of the condition list is decided by the first
// condition evaluated; offers carry one condition row per type and in practice
// a single row overall.
func (o *Offer) SatisfiesConditions(cust customer.Customer, product *ProductRef, orderValue *money.Money, voucher *Voucher, now time.Time) (bool, string) {
	if o.Target == TargetProduct && product == nil {
		return false, "product information is required for product-level offers"
	}
	if o.Target == TargetOrder && orderValue == nil {
		return false, "order information is required for order-level offers"
	}

	if o.RequiresVoucher {
		if voucher == nil {
			return false, "this offer requires a valid voucher code"
		}
		if voucher.OfferID != o.ID {
			return false, "invalid voucher for this offer"
		}
		if !voucher.WithinValidityPeriod(now) {
			return false, "voucher expired"
		}
		if o.Target == TargetOrder && !o.AboveMinPurchase(*orderValue) {
			return false, "order below minimum purchase"
		}
	}

	if !o.IsActive {
		return false, "offer is not currently active"
	}
	if o.IsExpired(now) {
		return false, "offer has expired"
	}

	for i := range o.Conditions {
		return o.checkCondition(&o.Conditions[i], cust, product, orderValue)
	}
	return true, "all conditions satisfied"
}

func (o *Offer) checkCondition(cond *OfferCondition, cust customer.Customer, product *ProductRef, orderValue *money.Money) (bool, string) {
	switch cond.Type {
	case CustomerGroups:
		if cond.EligibleCustomers == FirstTimeBuyers {
			if cust.Anonymous {
				return false, "offer is only valid for registered customers"
			}
			if !cust.FirstTimeBuyer {
				return false, "offer is only valid for first-time buyers"
			}
		}
		return true, "all conditions satisfied"
	case SpecificProducts:
		if o.Target != TargetProduct || product == nil {
			return false, "product conditions only apply to product-level offers"
		}
		if !containsUUID(cond.ProductIDs, product.ID) {
			return false, "product is not eligible for this offer"
		}
		return true, "all conditions satisfied"
	case SpecificCategories:
		if o.Target != TargetProduct || product == nil {
			return false, "category conditions only apply to product-level offers"
		}
		if !containsUUID(cond.CategoryIDs, product.CategoryID) {
			return false, "product category is not eligible for this offer"
		}
		return true, "all conditions satisfied"
	case MinOrderValue:
		if o.Target != TargetOrder || orderValue == nil {
			return false, "minimum order value only applies to order-level offers"
		}
		if *orderValue < cond.MinOrderValue {
			return false, "order below minimum purchase"
		}
		return true, "all conditions satisfied"
	default:
		return false, "unsupported offer condition"
	}
}

func containsUUID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
