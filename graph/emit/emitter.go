// Package emit delivers graph execution events to logs, traces and
// in-memory history.
package emit

// Emitter receives execution events. Implementations must be safe for
// concurrent use: nodes of the same superstep emit from separate goroutines.
type Emitter interface {
	Emit(event Event)
}

// Func adapts a function to the Emitter interface.
type Func func(Event)

// Emit implements Emitter.
func (f Func) Emit(event Event) { f(event) }

// Multi fans every event out to each non-nil emitter in order.
func Multi(emitters ...Emitter) Emitter {
	out := make(multi, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multi []Emitter

func (m multi) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
