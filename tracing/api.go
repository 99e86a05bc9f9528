// Package tracing follows the commands a channel issues and the commands a
// simulated device executes.
//
// A task starts, passes any number of steps, and ends. Tracers attached to
// a domain with CollectTrace see all three events. Domains without tracers
// pay nothing beyond a hook count.
package tracing

import (
	"fmt"

	"github.com/sarchlab/atapio/sim"
)

// Domain is where tasks happen. Channels and simulated devices are domains.
type Domain interface {
	sim.Named
	sim.Hookable
	InvokeHook(sim.HookCtx)
}

// Hook positions at which tracers are invoked.
var (
	HookPosTaskStart = &sim.HookPos{Name: "TaskStart"}
	HookPosTaskStep  = &sim.HookPos{Name: "TaskStep"}
	HookPosTaskEnd   = &sim.HookPos{Name: "TaskEnd"}
)

// StartTask announces that domain begins a task. The task is located at the
// domain.
func StartTask(
	id, parentID string,
	domain Domain,
	kind, what string,
	detail any,
) {
	if domain == nil {
		panic("tracing: task " + id + " has no domain")
	}

	StartTaskAt(domain.Name(), id, parentID, domain, kind, what, detail)
}

// StartTaskAt is StartTask for tasks that happen somewhere else than the
// domain reporting them, for example on one drive behind a controller.
func StartTaskAt(
	location string,
	id, parentID string,
	domain Domain,
	kind, what string,
	detail any,
) {
	t := Task{
		ID:       id,
		ParentID: parentID,
		Kind:     kind,
		What:     what,
		Location: location,
		Detail:   detail,
	}

	if err := t.validate(); err != nil {
		panic(err)
	}

	if domain == nil {
		panic(fmt.Sprintf("tracing: task %s has no domain", id))
	}

	notify(domain, HookPosTaskStart, t)
}

// AddTaskStep records that a task reached a milestone.
func AddTaskStep(id string, domain Domain, what string) {
	notify(domain, HookPosTaskStep, Task{
		ID:    id,
		Steps: []TaskStep{{What: what}},
	})
}

// EndTask announces that a task is over.
func EndTask(id string, domain Domain) {
	notify(domain, HookPosTaskEnd, Task{ID: id})
}

func notify(domain Domain, pos *sim.HookPos, t Task) {
	if domain.NumHooks() == 0 {
		return
	}

	domain.InvokeHook(sim.HookCtx{Domain: domain, Pos: pos, Item: t})
}
