package events

// Topics emitted by the pricing worker.
const (
	TopicOrderRecalculated        = "order.recalculated"
	TopicOrderRecalculationFailed = "order.recalculation_failed"
	TopicDiscountDetached         = "discount.detached"
)

// DefaultTopics returns every topic the worker may emit.
func DefaultTopics() []string {
	return []string{TopicOrderRecalculated, TopicOrderRecalculationFailed, TopicDiscountDetached}
}
