package emit

import "sync"

// BufferedEmitter keeps the most recent events of each run in memory so
// they can be queried later (the HTTP API serves them per run).
type BufferedEmitter struct {
	mu     sync.RWMutex
	limit  int
	events map[string][]Event // runID -> events
	order  []string           // runIDs, oldest first
	runs   int
}

// HistoryFilter narrows History results. Zero fields do not filter.
type HistoryFilter struct {
	NodeID  string
	Msg     string
	MinStep int
}

// NewBufferedEmitter keeps up to perRun events for each of the last maxRuns
// runs. Zero values mean 1000 events and 256 runs.
func NewBufferedEmitter(perRun, maxRuns int) *BufferedEmitter {
	if perRun <= 0 {
		perRun = 1000
	}
	if maxRuns <= 0 {
		maxRuns = 256
	}
	return &BufferedEmitter{
		limit:  perRun,
		runs:   maxRuns,
		events: make(map[string][]Event),
	}
}

// Emit implements Emitter.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	evs, seen := b.events[event.RunID]
	if !seen {
		b.order = append(b.order, event.RunID)
		if len(b.order) > b.runs {
			delete(b.events, b.order[0])
			b.order = b.order[1:]
		}
	}
	evs = append(evs, event)
	if len(evs) > b.limit {
		evs = evs[len(evs)-b.limit:]
	}
	b.events[event.RunID] = evs
}

// History returns a copy of the events recorded for runID, filtered.
func (b *BufferedEmitter) History(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, len(b.events[runID]))
	for _, ev := range b.events[runID] {
		if filter.NodeID != "" && ev.NodeID != filter.NodeID {
			continue
		}
		if filter.Msg != "" && ev.Msg != filter.Msg {
			continue
		}
		if ev.Step < filter.MinStep {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Clear drops the history of runID, or of every run when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		b.order = nil
		return
	}
	delete(b.events, runID)
	for i, id := range b.order {
		if id == runID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}
