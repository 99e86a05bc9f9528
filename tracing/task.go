package tracing

import (
	"fmt"

	"github.com/sarchlab/atapio/sim"
)

// Kinds of tasks.
const (
	// KindChannel tasks are driver operations on a channel.
	KindChannel = "ata"
	// KindDevice tasks are commands executed by a simulated device.
	KindDevice = "device"
)

// A TaskStep is a milestone of a task.
type TaskStep struct {
	Time sim.VTimeInSec `json:"time"`
	What string         `json:"what"`
}

// A Task is a unit of work of a domain, such as one read command on a
// channel.
type Task struct {
	ID        string         `json:"id"`
	ParentID  string         `json:"parent_id"`
	Kind      string         `json:"kind"`
	What      string         `json:"what"`
	Location  string         `json:"location"`
	StartTime sim.VTimeInSec `json:"start_time"`
	EndTime   sim.VTimeInSec `json:"end_time"`
	Steps     []TaskStep     `json:"steps"`
	Detail    any            `json:"-"`
}

// Duration returns how long an ended task took.
func (t Task) Duration() sim.VTimeInSec {
	return t.EndTime - t.StartTime
}

func (t Task) validate() error {
	var missing []string

	if t.ID == "" {
		missing = append(missing, "id")
	}

	if t.Kind == "" {
		missing = append(missing, "kind")
	}

	if t.What == "" {
		missing = append(missing, "what")
	}

	if t.Location == "" {
		missing = append(missing, "location")
	}

	if len(missing) > 0 {
		return fmt.Errorf("tracing: task %q misses %v", t.ID, missing)
	}

	return nil
}

// TaskFilter selects the tasks a tracer cares about.
type TaskFilter func(t Task) bool

// AllTasks is a TaskFilter that keeps every task.
func AllTasks(Task) bool {
	return true
}

// TasksWhat returns a filter that keeps tasks with the given what.
func TasksWhat(what string) TaskFilter {
	return func(t Task) bool {
		return t.What == what
	}
}

// TasksOfKind returns a filter that keeps tasks of the given kind.
func TasksOfKind(kind string) TaskFilter {
	return func(t Task) bool {
		return t.Kind == kind
	}
}
