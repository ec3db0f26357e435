package events

//go:generate mockgen -destination=mock/mock_handler.go -package=mockevents -source=handler.go Handler

// Handler receives dispatched events. It runs on the loop goroutine and must
// return promptly; heavier work belongs off-thread or in a later tick.
//
// A returned error is classified by its severity (see internal/errors):
// Fatal stops the loop, Recoverable is broadcast as a HandlerError event and
// Warning is logged. Errors without a severity count as Recoverable.
type Handler interface {
	HandleEvent(event Event) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(event Event) error

// HandleEvent calls f(event)
func (f HandlerFunc) HandleEvent(event Event) error {
	return f(event)
}
