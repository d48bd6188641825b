package types

// Event is the notification payload a pool action emits: a dotted type tag
// (for example "lendingpool.deposit") plus flat string attributes such as
// asset, user and amount. Amounts are carried in decimal string form so the
// payload stays JSON-safe at any magnitude.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attribute returns the named attribute, or the empty string when absent.
func (e *Event) Attribute(key string) string {
	if e == nil {
		return ""
	}
	return e.Attributes[key]
}
