package events

// Topic constants for storefront domain events.
const (
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
	TopicOrderCancelled = "order.cancelled"
)

// DefaultTopics lists the topics that trigger notifications.
func DefaultTopics() []string {
	return []string{TopicOrderCreated, TopicOrderPaid, TopicOrderCancelled}
}
