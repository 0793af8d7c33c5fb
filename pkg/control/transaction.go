package control

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/troupe-ai/troupe/pkg/logger"
)

// Execute runs a state-mutating call under transactional caching.
//
// With no simulation running, or inside an enclosing transaction, fn
// simply executes. Otherwise the call is matched against the cached
// trace: a hit replays the recorded simulation state and output
// without executing fn; a miss invalidates the rest of the cached
// trace, executes fn and records the new node in both traces.
//
// The cached output of a replayed call is decoded generically; use
// DecodeAs to convert it to a concrete type.
func Execute[T any](rt *Runtime, obj Entity, functionName string, args []any, fn func() (T, error)) (T, error) {
	var zero T

	sim := rt.Current()
	if sim == nil || sim.status != StatusStarted {
		return fn()
	}

	// Capture the target entity on first touch.
	if obj != nil && obj.SimulationID() == "" {
		if err := sim.Add(obj); err != nil {
			return zero, err
		}
	}

	if sim.underTransaction {
		// Nested transactions execute without memoization; only the
		// outermost call is traced.
		return fn()
	}

	sim.beginTransaction()
	defer sim.endTransaction()

	name := functionName
	if obj != nil {
		name = obj.Name() + "." + functionName
	}
	hash, err := eventHash(name, args)
	if err != nil {
		return zero, err
	}

	position := len(sim.executionTrace)
	log := logger.GetLogger()

	if position < len(sim.cachedTrace) && sim.cachedTrace[position].EventHash == hash {
		node := sim.cachedTrace[position]
		log.Debug("transaction cache hit", "event", name, "position", position)
		sim.cacheHits++

		if err := sim.decodeSimulationState(node.State); err != nil {
			return zero, err
		}
		output, err := decodeOutput(rt, node.Output)
		if err != nil {
			return zero, err
		}
		sim.executionTrace = append(sim.executionTrace, node)

		if sim.autoCheckpoint {
			if err := sim.Checkpoint(); err != nil {
				return zero, err
			}
		}
		return DecodeAs[T](output)
	}

	log.Debug("transaction cache miss", "event", name, "position", position)
	sim.cacheMisses++

	// The cached suffix no longer matches what the program does.
	if position < len(sim.cachedTrace) {
		sim.cachedTrace = sim.cachedTrace[:position]
	}

	result, err := fn()
	if err != nil {
		return zero, err
	}

	encodedResult, err := encodeOutput(anyOf(result))
	if err != nil {
		return zero, err
	}
	state, err := sim.encodeSimulationState()
	if err != nil {
		return zero, err
	}

	prevHash := ""
	if position > 0 {
		prevHash, err = sim.executionTrace[position-1].Hash()
		if err != nil {
			return zero, err
		}
	}

	node := TraceNode{
		PrevNodeHash: prevHash,
		EventHash:    hash,
		Output:       encodedResult,
		State:        state,
	}
	sim.executionTrace = append(sim.executionTrace, node)
	sim.cachedTrace = append(sim.cachedTrace, node)
	sim.hasUnsavedChanges = true

	if sim.autoCheckpoint {
		if err := sim.Checkpoint(); err != nil {
			return zero, err
		}
	}
	return result, nil
}

// anyOf strips typed nils so interfaces holding nil pointers encode
// as null.
func anyOf(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		if rv.IsNil() {
			return nil
		}
	}
	return v
}

// DecodeAs converts a decoded cache output into a concrete type. A
// direct type match is returned as-is; JSON-shaped values are
// round-tripped into T.
func DecodeAs[T any](output any) (T, error) {
	var zero T
	if output == nil {
		return zero, nil
	}
	if typed, ok := output.(T); ok {
		return typed, nil
	}

	data, err := json.Marshal(output)
	if err != nil {
		return zero, fmt.Errorf("converting cached output: %w", err)
	}
	var typed T
	if err := json.Unmarshal(data, &typed); err != nil {
		return zero, fmt.Errorf("converting cached output to %T: %w", zero, err)
	}
	return typed, nil
}
