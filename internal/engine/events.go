package engine

// Event is a live presentation signal pushed to subscribed UIs. Events are
// cosmetic: dropping one loses an animation, never currency.
type Event struct {
	Type      string `json:"type"` // "credit_earned", "level_up", "mining_complete", "boost_activated"
	Amount    int64  `json:"amount,omitempty"`
	Source    string `json:"source,omitempty"` // "tap", "mining", "daily", "level"
	Level     int    `json:"level,omitempty"`
	Gradient  string `json:"gradient,omitempty"`
	Timestamp int64  `json:"timestamp"` // Unix epoch
}

// Sink receives engine events for fan-out to live subscribers.
type Sink interface {
	Publish(Event)
}

// NopSink discards all events.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(Event) {}
