package bgrun

// Journaler describes an event logger. Implementations must be safe to use
// from multiple goroutines. See package journal for implementations that write
// to files and terminals.
type Journaler interface {
	Write(Event) error
}

type discardJournaler struct{}

// DiscardJournaler is a journaler that drops every event.
var DiscardJournaler Journaler = discardJournaler{}

func (discardJournaler) Write(Event) error { return nil }
