package tracing

import (
	"slices"
	"sync"
)

// StepCountTracer counts the steps reached by the tasks it follows, for
// example how many read commands needed a retry.
type StepCountTracer struct {
	open *openTasks

	lock  sync.Mutex
	names []string
	steps map[string]uint64
	tasks map[string]uint64
}

// NewStepCountTracer creates a StepCountTracer following the tasks the filter
// keeps.
func NewStepCountTracer(filter TaskFilter) *StepCountTracer {
	return &StepCountTracer{
		open:  newOpenTasks(nil, filter),
		steps: make(map[string]uint64),
		tasks: make(map[string]uint64),
	}
}

// GetStepNames returns the step names in the order they were first seen.
func (t *StepCountTracer) GetStepNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return slices.Clone(t.names)
}

// GetStepCount returns how many times a step was reached.
func (t *StepCountTracer) GetStepCount(stepName string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.steps[stepName]
}

// GetTaskCount returns how many tasks reached a step at least once.
func (t *StepCountTracer) GetTaskCount(stepName string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.tasks[stepName]
}

// StartTask starts following the task.
func (t *StepCountTracer) StartTask(task Task) {
	t.open.open(task)
}

// StepTask counts the step.
func (t *StepCountTracer) StepTask(task Task) {
	updated, ok := t.open.step(task)
	if !ok {
		return
	}

	what := updated.Steps[len(updated.Steps)-1].What

	t.lock.Lock()
	defer t.lock.Unlock()

	if _, seen := t.steps[what]; !seen {
		t.names = append(t.names, what)
	}
	t.steps[what]++

	if countSteps(updated, what) == 1 {
		t.tasks[what]++
	}
}

func countSteps(task Task, what string) int {
	n := 0
	for _, s := range task.Steps {
		if s.What == what {
			n++
		}
	}

	return n
}

// EndTask stops following the task.
func (t *StepCountTracer) EndTask(task Task) {
	t.open.close(task)
}
