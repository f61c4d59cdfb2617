package webhook

import "github.com/stretchr/testify/mock"

// MatchQueueItem creates a custom matcher for queue item arguments in mocks
func MatchQueueItem(matcher func(QueueItem) bool) interface{} {
	return mock.MatchedBy(matcher)
}

// MatchDelivery creates a custom matcher for handler deliveries in mocks
func MatchDelivery(matcher func(Delivery) bool) interface{} {
	return mock.MatchedBy(matcher)
}
