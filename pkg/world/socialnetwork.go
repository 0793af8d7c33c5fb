package world

import (
	"context"
	"fmt"

	"github.com/troupe-ai/troupe/pkg/agent"
	"github.com/troupe-ai/troupe/pkg/control"
	"github.com/troupe-ai/troupe/pkg/logger"
)

// relation is a named undirected link between two agents.
type relation struct {
	a, b *agent.Agent
	name string
}

// DefaultRelationName is used when relations are added without one.
const DefaultRelationName = "default"

// SocialNetwork is a world where interaction follows explicit
// relations: agents only see each other when a relation links them,
// and reaching out across relation boundaries is refused.
type SocialNetwork struct {
	*World

	relations []relation
}

// NewSocialNetwork creates a relation-gated world.
func NewSocialNetwork(rt *control.Runtime, name string, agents []*agent.Agent, opts ...Option) (*SocialNetwork, error) {
	w, err := New(rt, name, agents, opts...)
	if err != nil {
		return nil, err
	}
	n := &SocialNetwork{World: w}
	w.beforeStep = n.updateAgentsContexts
	w.reachOutFunc = n.handleReachOut
	return n, nil
}

// AddRelation links two agents under a named relation, adding either
// agent to the world when not yet present. Relations are undirected.
func (n *SocialNetwork) AddRelation(a, b *agent.Agent, name string) error {
	if name == "" {
		name = DefaultRelationName
	}
	for _, other := range []*agent.Agent{a, b} {
		if _, in := n.GetAgentByName(other.Name()); !in {
			if err := n.AddAgent(other); err != nil {
				return err
			}
		}
	}
	n.relations = append(n.relations, relation{a: a, b: b, name: name})
	return nil
}

// IsInRelationWith reports whether the two agents share a relation.
// An empty relationName matches any relation.
func (n *SocialNetwork) IsInRelationWith(a, b *agent.Agent, relationName string) bool {
	for _, r := range n.relations {
		if relationName != "" && r.name != relationName {
			continue
		}
		if (r.a.Name() == a.Name() && r.b.Name() == b.Name()) ||
			(r.a.Name() == b.Name() && r.b.Name() == a.Name()) {
			return true
		}
	}
	return false
}

// updateAgentsContexts rebuilds accessibility from the relations at
// the start of every step, so relation changes take effect
// immediately.
func (n *SocialNetwork) updateAgentsContexts() {
	for _, a := range n.agents {
		if err := a.MakeAllAgentsInaccessible(); err != nil {
			logger.GetLogger().Error("failed to reset accessibility",
				"world", n.name, "agent", a.Name(), "error", err)
		}
	}
	for _, r := range n.relations {
		description := fmt.Sprintf("an agent you know through the relation '%s'", r.name)
		if err := r.a.MakeAgentAccessible(r.b, description); err != nil {
			logger.GetLogger().Error("failed to apply relation",
				"world", n.name, "relation", r.name, "error", err)
		}
		if err := r.b.MakeAgentAccessible(r.a, description); err != nil {
			logger.GetLogger().Error("failed to apply relation",
				"world", n.name, "relation", r.name, "error", err)
		}
	}
}

// handleReachOut only succeeds within a shared relation. A refused
// attempt is reported to the sender alone; the target never learns of
// it.
func (n *SocialNetwork) handleReachOut(ctx context.Context, source *agent.Agent, content, targetName string) error {
	target, ok := n.GetAgentByName(targetName)
	if !ok {
		logger.GetLogger().Warn("reach out to unknown agent",
			"world", n.name, "source", source.Name(), "target", targetName)
		return nil
	}

	if !n.IsInRelationWith(source, target, "") {
		return source.Socialize(fmt.Sprintf("%s is not in the same relation as you, so you cannot reach out to them.", target.Name()), n.name)
	}
	return n.World.handleReachOut(ctx, source, content, targetName)
}
