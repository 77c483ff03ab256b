package kafka

// TopicPrefix namespaces every topic the storefront publishes to.
const TopicPrefix = "filatelier"

// Topic returns the topic name for a domain event, e.g. "filatelier.checkout.completed".
func Topic(domain, action string) string {
	return TopicPrefix + "." + domain + "." + action
}
