// Package validate implements graph validation (§4.9), invoked at
// workflow save-time and, with extra constraints, on LLM-generated
// virtual workflows produced by cognitive nodes (§4.4.8).
package validate

import (
	"fmt"

	"github.com/lyzr/flowengine/internal/model"
)

// Error describes one validation failure.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Warning describes a non-fatal validation finding (§4.9: a missing
// if_else branch is a warning, not a rejection).
type Warning struct {
	Message string
}

// Result collects validation errors and warnings for one workflow.
type Result struct {
	Errors   []Error
	Warnings []Warning
}

// OK reports whether the workflow has no errors (warnings are allowed).
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Options bounds validation for special contexts like cognitive-node
// virtual graphs, which are capped in size and forbid nesting.
type Options struct {
	MaxNodes           int  // 0 = unbounded
	ForbidCognitive    bool
}

// Validate checks a workflow against §3's invariants and §4.9's rules.
func Validate(wf *model.Workflow, opts Options) Result {
	var res Result

	starts := nodesOfType(wf, model.NodeStart)
	ends := nodesOfType(wf, model.NodeEnd)

	if len(starts) != 1 {
		res.Errors = append(res.Errors, Error{fmt.Sprintf("workflow must contain exactly one start node, found %d", len(starts))})
	}
	if len(ends) < 1 {
		res.Errors = append(res.Errors, Error{"workflow must contain at least one end node"})
	}

	if opts.MaxNodes > 0 && len(wf.Nodes) > opts.MaxNodes {
		res.Errors = append(res.Errors, Error{fmt.Sprintf("workflow has %d nodes, exceeds limit of %d", len(wf.Nodes), opts.MaxNodes)})
	}

	if opts.ForbidCognitive {
		for _, n := range wf.Nodes {
			if n.Type == model.NodeCognitive {
				res.Errors = append(res.Errors, Error{fmt.Sprintf("node %s: cognitive nodes may not nest inside a cognitive-generated graph", n.ID)})
			}
		}
	}

	nodeIDs := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		nodeIDs[n.ID] = true
	}
	for _, e := range wf.Edges {
		if !nodeIDs[e.SourceNode] {
			res.Errors = append(res.Errors, Error{fmt.Sprintf("edge %s references unknown source node %s", e.ID, e.SourceNode)})
		}
		if !nodeIDs[e.TargetNode] {
			res.Errors = append(res.Errors, Error{fmt.Sprintf("edge %s references unknown target node %s", e.ID, e.TargetNode)})
		}
	}

	if cyclic, cycleNode := hasCycle(wf); cyclic {
		res.Errors = append(res.Errors, Error{fmt.Sprintf("workflow graph contains a cycle reachable from node %s", cycleNode)})
	}

	if len(starts) == 1 {
		unreachable := unreachableNodes(wf, starts[0].ID)
		for _, id := range unreachable {
			res.Errors = append(res.Errors, Error{fmt.Sprintf("node %s is unreachable from start", id)})
		}
	}

	for _, n := range wf.Nodes {
		if n.Type != model.NodeIfElse {
			continue
		}
		hasTrue := len(nodesByHandle(wf, n.ID, "true")) > 0
		hasFalse := len(nodesByHandle(wf, n.ID, "false")) > 0
		if !hasTrue || !hasFalse {
			res.Warnings = append(res.Warnings, Warning{fmt.Sprintf("if_else node %s is missing a %s branch edge; that path terminates without successors", n.ID, missingBranch(hasTrue, hasFalse))})
		}
	}

	return res
}

func missingBranch(hasTrue, hasFalse bool) string {
	if !hasTrue && !hasFalse {
		return "true/false"
	}
	if !hasTrue {
		return "true"
	}
	return "false"
}

func nodesOfType(wf *model.Workflow, t model.NodeType) []model.Node {
	var out []model.Node
	for _, n := range wf.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

func nodesByHandle(wf *model.Workflow, nodeID, handle string) []string {
	var out []string
	for _, e := range wf.OutgoingEdges(nodeID) {
		if e.SourceHandle == handle {
			out = append(out, e.TargetNode)
		}
	}
	return out
}

// hasCycle runs a DFS with recursion-stack tracking to detect a cycle
// reachable from any node (graphs are statically rejected if cyclic, §1).
func hasCycle(wf *model.Workflow) (bool, string) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(wf.Nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		switch state[id] {
		case visiting:
			return true
		case done:
			return false
		}
		state[id] = visiting
		for _, e := range wf.OutgoingEdges(id) {
			if visit(e.TargetNode) {
				return true
			}
		}
		state[id] = done
		return false
	}

	for _, n := range wf.Nodes {
		if state[n.ID] == unvisited {
			if visit(n.ID) {
				return true, n.ID
			}
		}
	}
	return false, ""
}

// unreachableNodes returns the ids of nodes not reachable from startID
// by following edges forward.
func unreachableNodes(wf *model.Workflow, startID string) []string {
	reached := make(map[string]bool)
	queue := []string{startID}
	reached[startID] = true

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range wf.OutgoingEdges(id) {
			if !reached[e.TargetNode] {
				reached[e.TargetNode] = true
				queue = append(queue, e.TargetNode)
			}
		}
	}

	var unreached []string
	for _, n := range wf.Nodes {
		if !reached[n.ID] {
			unreached = append(unreached, n.ID)
		}
	}
	return unreached
}
