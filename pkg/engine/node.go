package engine

import (
	"github.com/rs/zerolog"

	"github.com/nicklasfrahm/ringctl/pkg/rexec"
)

// Node holds the state of one node during a run.
type Node struct {
	Name   string
	Logger zerolog.Logger

	// Result is set if the command ran to completion.
	Result *rexec.Result
	// Err is set if the session failed.
	Err error

	// output buffers lines while the engine lock is held.
	output []rexec.Event
}

// Failed reports whether the session failed or the command exited
// with a non-zero status.
func (node *Node) Failed() bool {
	return node.Err != nil || node.Result == nil || node.Result.ExitStatus != 0
}

// NewNodes creates the run state for the named nodes. Duplicate names
// are dropped.
func NewNodes(names []string) []*Node {
	seen := make(map[string]bool, len(names))
	nodes := make([]*Node, 0, len(names))

	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		nodes = append(nodes, &Node{Name: name})
	}

	return nodes
}
