package consistency

import (
	"fmt"

	"alchemist/internal/depgraph"
	"alchemist/internal/domain"
	"alchemist/internal/validation"
)

func (v Validator) unknownReferences(p pass) {
	clients := set(clientIDs(p.snap.Clients))
	tasks := set(taskIDs(p.snap.Tasks))
	for i, t := range p.snap.Tasks {
		key := validation.EntityKey(t.ID, i)
		if t.ClientID != "" && !clients[t.ClientID] {
			p.rec.Error(CheckUnknownReference, domain.EntityTask, key, "clientId",
				fmt.Sprintf("Referenced client '%s' does not exist", t.ClientID))
		}
		for _, dep := range t.Dependencies {
			if !tasks[dep] {
				p.rec.Error(CheckUnknownReference, domain.EntityTask, key, "dependencies",
					fmt.Sprintf("Referenced task dependency '%s' does not exist", dep))
			}
		}
	}
}

func (v Validator) requestedTaskReferences(p pass) {
	tasks := set(taskIDs(p.snap.Tasks))
	for i, c := range p.snap.Clients {
		key := validation.EntityKey(c.ID, i)
		for _, id := range c.RequestedTaskIDs {
			if !tasks[id] {
				p.rec.Error(CheckRequestedTask, domain.EntityClient, key, "requestedTaskIds",
					fmt.Sprintf("RequestedTaskID '%s' does not exist", id))
			}
		}
	}
}

// circularDependencies flags every task record with dependencies that lies on,
// or depends on, a cycle.
func (v Validator) circularDependencies(p pass) {
	cyclic := depgraph.Build(p.snap.Tasks).Cyclic()
	for i, t := range p.snap.Tasks {
		if len(t.Dependencies) == 0 || !cyclic[t.ID] {
			continue
		}
		p.rec.Error(CheckCircularDependency, domain.EntityTask, validation.EntityKey(t.ID, i), "dependencies",
			"Circular dependency detected in task chain")
	}
}
