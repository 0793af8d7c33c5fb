// Package memory implements the two memory systems agents carry: an
// episodic log of everything perceived and done, and a semantic store
// over ingested documents with similarity retrieval.
package memory

import (
	"github.com/troupe-ai/troupe/pkg/protocol"
)

// OmissionInfo is the content of the marker event standing in for
// elided history in windowed retrievals.
const OmissionInfo = "Info: there were other messages here, but they were omitted for brevity."

const (
	DefaultFixedPrefixLength = 100
	DefaultLookbackLength    = 100
)

// EpisodicMemory is an append-only log of events. Retrieval windows
// the log into a fixed prefix plus a recent tail so prompts stay
// bounded; the underlying storage is never truncated.
type EpisodicMemory struct {
	FixedPrefixLength int
	LookbackLength    int

	memory []protocol.Event
}

// NewEpisodicMemory creates an episodic memory with the default
// window lengths.
func NewEpisodicMemory() *EpisodicMemory {
	return NewEpisodicMemoryWithWindow(DefaultFixedPrefixLength, DefaultLookbackLength)
}

// NewEpisodicMemoryWithWindow creates an episodic memory with explicit
// prefix and lookback lengths.
func NewEpisodicMemoryWithWindow(fixedPrefixLength, lookbackLength int) *EpisodicMemory {
	return &EpisodicMemory{
		FixedPrefixLength: fixedPrefixLength,
		LookbackLength:    lookbackLength,
	}
}

// Store appends an event to the log.
func (m *EpisodicMemory) Store(event protocol.Event) {
	m.memory = append(m.memory, event)
}

// Count returns the number of stored events.
func (m *EpisodicMemory) Count() int {
	return len(m.memory)
}

// Clear removes all stored events.
func (m *EpisodicMemory) Clear() {
	m.memory = nil
}

// RetrieveAll returns a copy of the full log.
func (m *EpisodicMemory) RetrieveAll() []protocol.Event {
	out := make([]protocol.Event, len(m.memory))
	copy(out, m.memory)
	return out
}

// omissionEvent builds the marker event. Its timestamp is that of the
// last event preceding the elision, when known.
func (m *EpisodicMemory) omissionEvent(afterIndex int) protocol.Event {
	event := protocol.Event{
		Role:    "assistant",
		Content: protocol.EventContent{Info: OmissionInfo},
	}
	if afterIndex >= 0 && afterIndex < len(m.memory) {
		event.SimulationTimestamp = m.memory[afterIndex].SimulationTimestamp
	}
	return event
}

// RetrieveFirst returns the first n events. When events were elided
// and includeOmission is set, an omission marker is appended.
func (m *EpisodicMemory) RetrieveFirst(n int, includeOmission bool) []protocol.Event {
	if n >= len(m.memory) {
		return m.RetrieveAll()
	}
	out := make([]protocol.Event, 0, n+1)
	out = append(out, m.memory[:n]...)
	if includeOmission {
		out = append(out, m.omissionEvent(n-1))
	}
	return out
}

// RetrieveLast returns the last n events. When events were elided and
// includeOmission is set, an omission marker is prepended.
func (m *EpisodicMemory) RetrieveLast(n int, includeOmission bool) []protocol.Event {
	if n >= len(m.memory) {
		return m.RetrieveAll()
	}
	out := make([]protocol.Event, 0, n+1)
	if includeOmission {
		out = append(out, m.omissionEvent(len(m.memory)-n-1))
	}
	out = append(out, m.memory[len(m.memory)-n:]...)
	return out
}

// Retrieve returns the first firstN and last lastN events with a
// single omission marker between them. When the two windows cover the
// whole log they are merged without a marker.
func (m *EpisodicMemory) Retrieve(firstN, lastN int, includeOmission bool) []protocol.Event {
	if firstN+lastN >= len(m.memory) {
		return m.RetrieveAll()
	}
	out := make([]protocol.Event, 0, firstN+lastN+1)
	out = append(out, m.memory[:firstN]...)
	if includeOmission {
		out = append(out, m.omissionEvent(firstN-1))
	}
	out = append(out, m.memory[len(m.memory)-lastN:]...)
	return out
}

// RetrieveRecent returns the context window used to build prompts: the
// fixed prefix, an omission marker, and the most recent events up to
// the lookback length. The marker counts toward the prefix when
// computing how much lookback remains.
func (m *EpisodicMemory) RetrieveRecent(includeOmission bool) []protocol.Event {
	if len(m.memory) <= m.FixedPrefixLength {
		return m.RetrieveAll()
	}

	prefix := make([]protocol.Event, 0, m.FixedPrefixLength+1)
	prefix = append(prefix, m.memory[:m.FixedPrefixLength]...)
	if includeOmission {
		prefix = append(prefix, m.omissionEvent(m.FixedPrefixLength-1))
	}

	remaining := len(m.memory) - len(prefix)
	if remaining > m.LookbackLength {
		remaining = m.LookbackLength
	}
	if remaining <= 0 {
		return prefix
	}
	return append(prefix, m.memory[len(m.memory)-remaining:]...)
}

// EpisodicState is the serializable form of an episodic memory.
type EpisodicState struct {
	FixedPrefixLength int              `json:"fixed_prefix_length"`
	LookbackLength    int              `json:"lookback_length"`
	Memory            []protocol.Event `json:"memory"`
}

// EncodeState returns the serializable form of the memory.
func (m *EpisodicMemory) EncodeState() EpisodicState {
	return EpisodicState{
		FixedPrefixLength: m.FixedPrefixLength,
		LookbackLength:    m.LookbackLength,
		Memory:            m.RetrieveAll(),
	}
}

// DecodeState replaces the memory's contents with a previously encoded
// state.
func (m *EpisodicMemory) DecodeState(state EpisodicState) {
	if state.FixedPrefixLength > 0 {
		m.FixedPrefixLength = state.FixedPrefixLength
	}
	if state.LookbackLength > 0 {
		m.LookbackLength = state.LookbackLength
	}
	m.memory = make([]protocol.Event, len(state.Memory))
	copy(m.memory, state.Memory)
}
