package events

// Topic constants for domain events emitted by the cart engine.
const (
	TopicVoucherRedeemed = "voucher.redeemed"
	TopicCartCheckedOut  = "cart.checked_out"
)
