package tracing

import (
	"sync"

	"github.com/sarchlab/atapio/sim"
)

// TotalTimeTracer sums up how long the tasks it follows took. Overlapping
// tasks are counted in full, so on a channel, where operations never overlap,
// the sum is the busy time.
type TotalTimeTracer struct {
	open *openTasks

	lock  sync.Mutex
	total sim.VTimeInSec
	count uint64
}

// NewTotalTimeTracer creates a TotalTimeTracer following the tasks the filter
// keeps.
func NewTotalTimeTracer(
	timeTeller sim.TimeTeller,
	filter TaskFilter,
) *TotalTimeTracer {
	return &TotalTimeTracer{open: newOpenTasks(timeTeller, filter)}
}

// TotalTime returns the time spent in finished tasks.
func (t *TotalTimeTracer) TotalTime() sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.total
}

// TaskCount returns the number of finished tasks.
func (t *TotalTimeTracer) TaskCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.count
}

// AverageTime returns the mean duration of finished tasks, or 0.
func (t *TotalTimeTracer) AverageTime() sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.count == 0 {
		return 0
	}

	return t.total / sim.VTimeInSec(t.count)
}

// StartTask starts timing the task.
func (t *TotalTimeTracer) StartTask(task Task) {
	t.open.open(task)
}

// StepTask ignores steps.
func (t *TotalTimeTracer) StepTask(Task) {}

// EndTask adds the duration of the task.
func (t *TotalTimeTracer) EndTask(task Task) {
	done, ok := t.open.close(task)
	if !ok {
		return
	}

	t.lock.Lock()
	t.total += done.Duration()
	t.count++
	t.lock.Unlock()
}
