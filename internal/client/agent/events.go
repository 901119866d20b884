package agent

import "github.com/NordCoder/Crabiner/internal/domain/identity"

type EventKind int

const (
	EventRefreshed EventKind = iota + 1
	EventSignedOut
)

func (k EventKind) String() string {
	switch k {
	case EventRefreshed:
		return "refreshed"
	case EventSignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind     EventKind
	Identity *identity.Summary
	// Err is set on EventSignedOut when a refresh failure caused it.
	Err error
}

// Listener runs synchronously inside the refresh; it must not call back into
// EnsureFreshCredential or Do.
type Listener func(Event)

// Subscribe registers l and returns a func that removes it.
func (a *Agent) Subscribe(l Listener) (unsubscribe func()) {
	a.lmu.Lock()
	defer a.lmu.Unlock()
	id := a.nextListener
	a.nextListener++
	a.listeners[id] = l
	return func() {
		a.lmu.Lock()
		defer a.lmu.Unlock()
		delete(a.listeners, id)
	}
}

func (a *Agent) notify(ev Event) {
	a.lmu.Lock()
	ls := make([]Listener, 0, len(a.listeners))
	for _, l := range a.listeners {
		ls = append(ls, l)
	}
	a.lmu.Unlock()

	for _, l := range ls {
		l(ev)
	}
}
