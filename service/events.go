package service

// EventPublisher receives lifecycle events after a state change commits.
// kafka.Producer is the production implementation; tests plug in a recorder.
// Publishing is fire-and-forget: a broker hiccup never rolls back an order.
type EventPublisher interface {
	PublishOrderPaidEvent(event interface{})
	PublishOrderDeliveredEvent(event interface{})
	PublishOrderCancelledEvent(event interface{})
	PublishOrderRefundedEvent(event interface{})
	PublishPaymentSucceededEvent(event interface{})
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishOrderPaidEvent(interface{})        {}
func (NopPublisher) PublishOrderDeliveredEvent(interface{})   {}
func (NopPublisher) PublishOrderCancelledEvent(interface{})   {}
func (NopPublisher) PublishOrderRefundedEvent(interface{})    {}
func (NopPublisher) PublishPaymentSucceededEvent(interface{}) {}
