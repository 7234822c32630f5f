package serialmux

import "sync"

// Subscriber is the part of SerialMux a LineSource needs.
type Subscriber interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
}

// LineSource is a non-blocking pull view of one mux subscription.
type LineSource struct {
	mux  Subscriber
	id   string
	ch   chan string
	once sync.Once
}

// NewLineSource subscribes to mux.
func NewLineSource(mux Subscriber) *LineSource {
	id, ch := mux.Subscribe()
	return &LineSource{mux: mux, id: id, ch: ch}
}

// TryNext returns the oldest pending line, or false when none is waiting or
// the subscription has closed.
func (l *LineSource) TryNext() (string, bool) {
	select {
	case line, ok := <-l.ch:
		return line, ok
	default:
		return "", false
	}
}

// Close ends the subscription.
func (l *LineSource) Close() error {
	l.once.Do(func() { l.mux.Unsubscribe(l.id) })
	return nil
}
