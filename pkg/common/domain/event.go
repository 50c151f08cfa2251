package domain

type Event interface {
	Type() string
}

type EventDispatcher interface {
	Dispatch(event Event) error
}

// Dispatchers fans an event out to every dispatcher and returns the first error.
// All dispatchers are invoked even if an earlier one fails.
type Dispatchers []EventDispatcher

func (d Dispatchers) Dispatch(event Event) error {
	var firstErr error
	for _, dispatcher := range d {
		if err := dispatcher.Dispatch(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
