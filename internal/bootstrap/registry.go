package bootstrap

import (
	"github.com/lyzr/flowengine/internal/condition"
	"github.com/lyzr/flowengine/internal/handlers"
	"github.com/lyzr/flowengine/internal/model"
)

// BuildRegistry wires the eight §4.4 node handlers against c's LLM
// client and config, registering the cognitive handler's dispatcher
// reference to itself so it can walk virtual workflows inline.
func (c *Components) BuildRegistry() *handlers.Registry {
	reg := handlers.NewRegistry()

	reg.Register(model.NodeStart, handlers.StartHandler{})
	reg.Register(model.NodeEnd, handlers.EndHandler{})
	reg.Register(model.NodeIfElse, handlers.IfElseHandler{})
	reg.Register(model.NodeFork, handlers.ForkHandler{})
	reg.Register(model.NodeUserApproval, handlers.UserApprovalHandler{})

	reg.Register(model.NodeAgent, handlers.AgentHandler{
		LLM:         c.LLM,
		Tools:       handlers.NoToolsCatalog{},
		Executor:    handlers.UnimplementedToolExecutor{},
		MaxToolLoop: c.Config.Engine.MaxToolCallLoop,
	})

	reg.Register(model.NodeGuardrails, handlers.GuardrailsHandler{
		LLM:   c.LLM,
		Model: c.Config.LLM.Model,
		CEL:   condition.NewCELEvaluator(),
	})

	reg.Register(model.NodeCognitive, handlers.CognitiveHandler{
		LLM:        c.LLM,
		Model:      c.Config.LLM.Model,
		Dispatcher: reg,
		MaxNodes:   c.Config.Engine.MaxCognitiveNodes,
	})

	return reg
}
