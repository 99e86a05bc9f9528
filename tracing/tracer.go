package tracing

import (
	"sync"

	"github.com/sarchlab/atapio/sim"
)

// A Tracer is told about the tasks of the domains it is attached to.
type Tracer interface {
	StartTask(task Task)
	StepTask(task Task)
	EndTask(task Task)
}

// openTasks holds the tasks a tracer saw start and not end yet, with their
// times filled in from the clock. Without a clock all times are zero.
type openTasks struct {
	lock   sync.Mutex
	clock  sim.TimeTeller
	filter TaskFilter
	tasks  map[string]Task
}

func newOpenTasks(clock sim.TimeTeller, filter TaskFilter) *openTasks {
	if filter == nil {
		filter = AllTasks
	}

	return &openTasks{
		clock:  clock,
		filter: filter,
		tasks:  make(map[string]Task),
	}
}

func (o *openTasks) now() sim.VTimeInSec {
	if o.clock == nil {
		return 0
	}

	return o.clock.CurrentTime()
}

// open stamps the task and keeps it if the filter accepts it.
func (o *openTasks) open(task Task) bool {
	task.StartTime = o.now()
	if !o.filter(task) {
		return false
	}

	o.lock.Lock()
	o.tasks[task.ID] = task
	o.lock.Unlock()

	return true
}

// step appends the step carried by update to the open task with the same ID.
// It returns the task as it is after the step.
func (o *openTasks) step(update Task) (Task, bool) {
	if len(update.Steps) == 0 {
		return Task{}, false
	}

	o.lock.Lock()
	defer o.lock.Unlock()

	task, ok := o.tasks[update.ID]
	if !ok {
		return Task{}, false
	}

	s := update.Steps[0]
	s.Time = o.now()
	task.Steps = append(task.Steps, s)
	o.tasks[update.ID] = task

	return task, true
}

// close forgets the task and returns it with its end time.
func (o *openTasks) close(update Task) (Task, bool) {
	now := o.now()

	o.lock.Lock()
	defer o.lock.Unlock()

	task, ok := o.tasks[update.ID]
	if !ok {
		return Task{}, false
	}

	delete(o.tasks, update.ID)
	task.EndTime = now

	return task, true
}

func (o *openTasks) drop() {
	o.lock.Lock()
	o.tasks = make(map[string]Task)
	o.lock.Unlock()
}
