package webhook

import "fmt"

/* Topic identifies the kind of platform notification
 * String values are the platform topic names, which are also the ingest paths
 */
type Topic int

const (
	OrderCreated Topic = iota + 1
	OrderUpdated
	ProductUpdated
	ProductDeleted
	AppUninstalled
	CustomerDataRequest
	CustomerRedact
	ShopRedact
)

var topicNames = map[Topic]string{
	OrderCreated:        "orders/create",
	OrderUpdated:        "orders/updated",
	ProductUpdated:      "products/update",
	ProductDeleted:      "products/delete",
	AppUninstalled:      "app/uninstalled",
	CustomerDataRequest: "customers/data_request",
	CustomerRedact:      "customers/redact",
	ShopRedact:          "shop/redact",
}

// Topics returns every supported topic in declaration order
func Topics() []Topic {
	return []Topic{
		OrderCreated,
		OrderUpdated,
		ProductUpdated,
		ProductDeleted,
		AppUninstalled,
		CustomerDataRequest,
		CustomerRedact,
		ShopRedact,
	}
}

// String returns the platform name of the topic
func (t Topic) String() string {
	if name, ok := topicNames[t]; ok {
		return name
	}
	return "unknown"
}

// NewTopic creates a Topic from its platform name. Unknown names yield the zero Topic.
func NewTopic(s string) Topic {
	for topic, name := range topicNames {
		if name == s {
			return topic
		}
	}
	return 0
}

// Validate checks if the topic is supported
func (t Topic) Validate() error {
	if _, ok := topicNames[t]; !ok {
		return fmt.Errorf("invalid topic: %d", t)
	}
	return nil
}

// IsCompliance reports whether the topic is one of the mandatory privacy topics
func (t Topic) IsCompliance() bool {
	return t == CustomerDataRequest || t == CustomerRedact || t == ShopRedact
}
