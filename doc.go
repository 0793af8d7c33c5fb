// Package troupe is a multi-agent simulation engine driven by large
// language models.
//
// Troupe simulates people: each agent carries a persona, an episodic
// memory of everything it perceived and did, and a semantic memory over
// documents it has read. Agents live in worlds that deliver stimuli,
// advance a simulated clock and route conversation between them.
//
// # Quick Start
//
// Build an agent and talk to it:
//
//	rt := control.NewRuntime()
//	client, _ := llms.NewClientFromConfig(cfg)
//
//	oscar, _ := agent.New(rt, client, "Oscar")
//	oscar.Define("occupation", "Architect")
//
//	actions, _ := oscar.ListenAndAct(ctx, "Tell me about your work.", "user")
//
// Put several agents in a world and let them interact:
//
//	office, _ := world.New(rt, "Office", []*agent.Agent{oscar, lisa})
//	office.MakeEveryoneAccessible()
//	office.Broadcast("Let's discuss the new project.")
//	office.RunMinutes(ctx, 5)
//
// # Deterministic re-runs
//
// Wrapping a session in a simulation makes it replayable: every
// state-mutating call is recorded in a trace file, and a later run of
// the same program replays cached results instead of calling the model
// again.
//
//	sim, _ := rt.Begin("", "", false)
//	// ... build agents, run worlds ...
//	rt.End()
//
// # Packages
//
//	import (
//	    "github.com/troupe-ai/troupe/pkg/agent"
//	    "github.com/troupe-ai/troupe/pkg/world"
//	    "github.com/troupe-ai/troupe/pkg/control"
//	    "github.com/troupe-ai/troupe/pkg/llms"
//	)
//
// # Key Features
//
//   - Persona-driven agents with act/listen/see/think primitives
//   - Episodic memory with bounded context windows
//   - Semantic memory over local documents and web pages
//   - Worlds with simulated clocks and social-network gating
//   - Transactional caching for cheap, deterministic re-runs
//   - OpenAI, Azure OpenAI and Ollama backends
package troupe
