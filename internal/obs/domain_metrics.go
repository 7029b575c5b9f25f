package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartRefreshTotal counts refresh runs by outcome (noop, changed, forced).
	CartRefreshTotal *prometheus.CounterVec
	// CartItemsPrunedTotal counts line items dropped during refresh because
	// their variant vanished, went inactive, or ran out of stock.
	CartItemsPrunedTotal prometheus.Counter
	// VoucherApplyTotal counts voucher application attempts by result.
	VoucherApplyTotal *prometheus.CounterVec
	// VoucherRedeemTotal counts redemption outcomes, including budget and
	// usage-limit rejections.
	VoucherRedeemTotal *prometheus.CounterVec
	// DiscountGrantedCents accumulates granted discount amounts in minor units.
	DiscountGrantedCents prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers cart-domain Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_refresh_total",
			Help:      "Count of cart refresh runs by outcome.",
		}, []string{"outcome"})
		CartItemsPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_items_pruned_total",
			Help:      "Line items removed during refresh due to missing or exhausted variants.",
		})
		VoucherApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_apply_total",
			Help:      "Count of voucher application attempts by result.",
		}, []string{"result"})
		VoucherRedeemTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_redeem_total",
			Help:      "Count of voucher redemption outcomes.",
		}, []string{"result"})
		DiscountGrantedCents = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_granted_cents_total",
			Help:      "Cumulative discount granted at redemption, in minor units.",
		})

		if v, ok := register(reg, CartRefreshTotal).(*prometheus.CounterVec); ok {
			CartRefreshTotal = v
		}
		if c, ok := register(reg, CartItemsPrunedTotal).(prometheus.Counter); ok {
			CartItemsPrunedTotal = c
		}
		if v, ok := register(reg, VoucherApplyTotal).(*prometheus.CounterVec); ok {
			VoucherApplyTotal = v
		}
		if v, ok := register(reg, VoucherRedeemTotal).(*prometheus.CounterVec); ok {
			VoucherRedeemTotal = v
		}
		if c, ok := register(reg, DiscountGrantedCents).(prometheus.Counter); ok {
			DiscountGrantedCents = c
		}
	})
}
