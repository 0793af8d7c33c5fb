package control

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter is a minimal entity whose whole state is one number.
type counter struct {
	name  string
	simID string
	value int
	calls int
}

func newCounter(rt *Runtime, name string) *counter {
	c := &counter{name: name}
	if err := rt.RegisterEntity(c); err != nil {
		panic(err)
	}
	return c
}

func (c *counter) Name() string              { return c.name }
func (c *counter) Kind() string              { return KindAgent }
func (c *counter) SimulationID() string      { return c.simID }
func (c *counter) SetSimulationID(id string) { c.simID = id }

func (c *counter) EncodeCompleteState() (map[string]any, error) {
	return map[string]any{"name": c.name, "value": c.value}, nil
}

func (c *counter) DecodeCompleteState(state map[string]any) error {
	if v, ok := state["value"].(float64); ok {
		c.value = int(v)
	}
	return nil
}

// increment bumps the counter through a transaction and returns the
// new value.
func (c *counter) increment(rt *Runtime, by int) (int, error) {
	return Execute(rt, c, "increment", []any{by}, func() (int, error) {
		c.calls++
		c.value += by
		return c.value, nil
	})
}

func TestExecuteWithoutSimulationRunsDirectly(t *testing.T) {
	rt := NewRuntime()
	c := newCounter(rt, "c")

	v, err := c.increment(rt, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.calls)
	assert.Empty(t, c.simID)
}

func TestExecuteRecordsTrace(t *testing.T) {
	rt := NewRuntime()
	cachePath := filepath.Join(t.TempDir(), "trace.json")

	sim, err := rt.Begin("", cachePath, false)
	require.NoError(t, err)
	c := newCounter(rt, "c")

	_, err = c.increment(rt, 1)
	require.NoError(t, err)
	_, err = c.increment(rt, 10)
	require.NoError(t, err)

	assert.Len(t, sim.executionTrace, 2)
	assert.Equal(t, DefaultSimulationID, c.simID)

	hits, misses := sim.CacheStats()
	assert.Equal(t, 0, hits)
	assert.Equal(t, 2, misses)

	require.NoError(t, rt.End())
	_, err = os.Stat(cachePath)
	assert.NoError(t, err)
}

func TestExecuteReplaysFromCache(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "trace.json")

	// First process: execute for real and save the trace.
	rt1 := NewRuntime()
	_, err := rt1.Begin("", cachePath, false)
	require.NoError(t, err)
	c1 := newCounter(rt1, "c")
	_, err = c1.increment(rt1, 5)
	require.NoError(t, err)
	_, err = c1.increment(rt1, 7)
	require.NoError(t, err)
	require.NoError(t, rt1.End())

	// Second process: same program, fresh state. Everything replays.
	rt2 := NewRuntime()
	sim2, err := rt2.Begin("", cachePath, false)
	require.NoError(t, err)
	c2 := newCounter(rt2, "c")

	v, err := c2.increment(rt2, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	v, err = c2.increment(rt2, 7)
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	assert.Equal(t, 0, c2.calls, "cached transactions must not execute")
	assert.Equal(t, 12, c2.value, "state must come from the cached trace")

	hits, misses := sim2.CacheStats()
	assert.Equal(t, 2, hits)
	assert.Equal(t, 0, misses)
}

func TestExecuteDropsStaleSuffixOnMiss(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "trace.json")

	rt1 := NewRuntime()
	_, err := rt1.Begin("", cachePath, false)
	require.NoError(t, err)
	c1 := newCounter(rt1, "c")
	_, err = c1.increment(rt1, 1)
	require.NoError(t, err)
	_, err = c1.increment(rt1, 2)
	require.NoError(t, err)
	_, err = c1.increment(rt1, 3)
	require.NoError(t, err)
	require.NoError(t, rt1.End())

	// The program diverges at the second event.
	rt2 := NewRuntime()
	sim2, err := rt2.Begin("", cachePath, false)
	require.NoError(t, err)
	c2 := newCounter(rt2, "c")

	_, err = c2.increment(rt2, 1)
	require.NoError(t, err)
	v, err := c2.increment(rt2, 99)
	require.NoError(t, err)
	assert.Equal(t, 100, v)

	// The old suffix (the "+3" event) is gone from the cached trace.
	assert.Len(t, sim2.cachedTrace, 2)
	assert.Equal(t, 1, c2.calls)

	hits, misses := sim2.CacheStats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestNestedTransactionsAreNotMemoized(t *testing.T) {
	rt := NewRuntime()
	sim, err := rt.Begin("", filepath.Join(t.TempDir(), "trace.json"), false)
	require.NoError(t, err)
	c := newCounter(rt, "c")

	_, err = Execute(rt, c, "outer", nil, func() (int, error) {
		// Inner transactions run directly; only "outer" is traced.
		if _, err := c.increment(rt, 1); err != nil {
			return 0, err
		}
		if _, err := c.increment(rt, 2); err != nil {
			return 0, err
		}
		return c.value, nil
	})
	require.NoError(t, err)

	assert.Len(t, sim.executionTrace, 1)
	assert.Equal(t, 3, c.value)
	assert.Equal(t, 2, c.calls)
}

func TestAutoCheckpointWritesEveryEvent(t *testing.T) {
	rt := NewRuntime()
	cachePath := filepath.Join(t.TempDir(), "trace.json")
	_, err := rt.Begin("", cachePath, true)
	require.NoError(t, err)
	c := newCounter(rt, "c")

	_, err = c.increment(rt, 1)
	require.NoError(t, err)

	data, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	var nodes []TraceNode
	require.NoError(t, json.Unmarshal(data, &nodes))
	assert.Len(t, nodes, 1)
}

func TestBeginTwiceFails(t *testing.T) {
	rt := NewRuntime()
	_, err := rt.Begin("", filepath.Join(t.TempDir(), "a.json"), false)
	require.NoError(t, err)

	_, err = rt.Begin("", filepath.Join(t.TempDir(), "b.json"), false)
	assert.Error(t, err)
}

func TestOutputEncodingRoundTrip(t *testing.T) {
	rt := NewRuntime()
	c := newCounter(rt, "ref-me")

	raw, err := encodeOutput(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"AgentRef","name":"ref-me"}`, string(raw))

	decoded, err := decodeOutput(rt, raw)
	require.NoError(t, err)
	assert.Same(t, any(c), decoded)

	raw, err = encodeOutput(map[string]any{"k": "v"})
	require.NoError(t, err)
	decoded, err = decodeOutput(rt, raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, decoded)

	raw, err = encodeOutput(nil)
	require.NoError(t, err)
	decoded, err = decodeOutput(rt, raw)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeUnknownEntityIsFatal(t *testing.T) {
	rt := NewRuntime()

	_, err := decodeOutput(rt, json.RawMessage(`{"type":"AgentRef","name":"ghost"}`))
	assert.Error(t, err)
}

func TestTraceNodeJSONShape(t *testing.T) {
	node := TraceNode{
		PrevNodeHash: "prev",
		EventHash:    "event",
		Output:       json.RawMessage(`{"type":"JSON","value":1}`),
		State:        json.RawMessage(`{"agents":[]}`),
	}

	data, err := json.Marshal(node)
	require.NoError(t, err)

	var parts []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &parts))
	require.Len(t, parts, 4)

	var restored TraceNode
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, node.PrevNodeHash, restored.PrevNodeHash)
	assert.Equal(t, node.EventHash, restored.EventHash)
	assert.JSONEq(t, string(node.State), string(restored.State))
}

func TestFactoryEntity(t *testing.T) {
	rt := NewRuntime()

	f, err := NewFactory(rt, "")
	require.NoError(t, err)
	assert.Equal(t, "Factory 1", f.Name())
	assert.Equal(t, KindFactory, f.Kind())

	state, err := f.EncodeCompleteState()
	require.NoError(t, err)
	assert.Equal(t, "Factory 1", state["name"])
}
