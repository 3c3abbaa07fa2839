package events

// Topic constants for quote events.
const (
	TopicQuoteCreated         = "quote.created"
	TopicQuoteRecomputed      = "quote.recomputed"
	TopicQuoteValidityChanged = "quote.validity_changed"
	TopicQuoteDeleted         = "quote.deleted"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicQuoteCreated,
		TopicQuoteRecomputed,
		TopicQuoteValidityChanged,
		TopicQuoteDeleted,
	}
}
