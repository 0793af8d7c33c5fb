package world

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troupe-ai/troupe/pkg/agent"
	"github.com/troupe-ai/troupe/pkg/control"
	"github.com/troupe-ai/troupe/pkg/protocol"
)

func TestAddRelationAddsAgentsToWorld(t *testing.T) {
	rt := control.NewRuntime()
	alice := newTestAgent(t, rt, "Alice")
	bob := newTestAgent(t, rt, "Bob")

	n, err := NewSocialNetwork(rt, "Network", nil)
	require.NoError(t, err)
	require.NoError(t, n.AddRelation(alice, bob, "friends"))

	assert.Len(t, n.Agents(), 2)
	assert.True(t, n.IsInRelationWith(alice, bob, "friends"))
	assert.True(t, n.IsInRelationWith(bob, alice, ""), "relations are undirected")
	assert.False(t, n.IsInRelationWith(alice, bob, "coworkers"))
}

func TestStepRebuildsAccessibilityFromRelations(t *testing.T) {
	rt := control.NewRuntime()
	alice := newTestAgent(t, rt, "Alice")
	bob := newTestAgent(t, rt, "Bob")
	carol := newTestAgent(t, rt, "Carol")

	n, err := NewSocialNetwork(rt, "Network", []*agent.Agent{carol})
	require.NoError(t, err)
	require.NoError(t, n.AddRelation(alice, bob, ""))

	// Stale accessibility is wiped at the start of each step.
	require.NoError(t, carol.MakeAgentAccessible(alice, ""))

	_, err = n.Step(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, alice.AccessibleAgents(), 1)
	assert.Equal(t, "Bob", alice.AccessibleAgents()[0].Name())
	require.Len(t, bob.AccessibleAgents(), 1)
	assert.Equal(t, "Alice", bob.AccessibleAgents()[0].Name())
	assert.Empty(t, carol.AccessibleAgents())
}

func TestReachOutWithinRelationSucceeds(t *testing.T) {
	rt := control.NewRuntime()
	alice := newTestAgent(t, rt, "Alice",
		actionReply(protocol.ActionReachOut, "", "Bob"),
		actionReply(protocol.ActionDone, "", ""),
	)
	bob := newTestAgent(t, rt, "Bob")

	n, err := NewSocialNetwork(rt, "Network", nil)
	require.NoError(t, err)
	require.NoError(t, n.AddRelation(alice, bob, "friends"))

	_, err = n.Step(context.Background(), 0)
	require.NoError(t, err)

	social := stimuliOfType(bob, protocol.StimulusSocial)
	require.Len(t, social, 1)
	assert.Contains(t, social[0].Content, "reached out to you")
}

func TestReachOutAcrossRelationsIsRefused(t *testing.T) {
	rt := control.NewRuntime()
	alice := newTestAgent(t, rt, "Alice")
	bob := newTestAgent(t, rt, "Bob")
	carol := newTestAgent(t, rt, "Carol",
		actionReply(protocol.ActionReachOut, "", "Alice"),
		actionReply(protocol.ActionDone, "", ""),
	)

	n, err := NewSocialNetwork(rt, "Network", []*agent.Agent{carol})
	require.NoError(t, err)
	require.NoError(t, n.AddRelation(alice, bob, "friends"))

	_, err = n.Step(context.Background(), 0)
	require.NoError(t, err)

	// Only the sender learns about the refusal.
	social := stimuliOfType(carol, protocol.StimulusSocial)
	require.Len(t, social, 1)
	assert.Contains(t, social[0].Content, "cannot reach out")

	assert.Empty(t, stimuliOfType(alice, protocol.StimulusSocial))
	assert.Empty(t, carol.AccessibleAgents())
	for _, a := range []*agent.Agent{alice, bob} {
		require.Len(t, a.AccessibleAgents(), 1, a.Name())
	}
}
