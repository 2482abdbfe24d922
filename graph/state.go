package graph

import (
	"encoding/json"
	"fmt"
)

// Reducer merges a node's partial update (delta) into the previous state.
//
// Reducers must be deterministic. Fields that accumulate across nodes
// (messages, retrieved context, written sections) should be appended, while
// scalar fields are usually replaced when the delta sets them.
type Reducer[S any] func(prev, delta S) S

// deepCopy creates an independent copy of state S using a JSON round trip.
// Every branch of a fan-out receives its own copy so that concurrently
// running nodes never share slices or maps.
//
// Unexported struct fields are not copied, and types that do not marshal
// to JSON (channels, functions) fail.
func deepCopy[S any](state S) (S, error) {
	var zero S

	data, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal state: %w", err)
	}

	var copied S
	if err := json.Unmarshal(data, &copied); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return copied, nil
}
