package tracing

import (
	"fmt"
	"sync"

	"github.com/sarchlab/atapio/datarecording"
	"github.com/sarchlab/atapio/sim"
	"github.com/tebeka/atexit"
)

// Table names used by the DBTracer.
const (
	TaskTable = "trace"
	StepTable = "trace_steps"
)

// TaskEntry is a row of the task table.
type TaskEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	Detail    string
	StartTime float64
	EndTime   float64
}

// StepEntry is a row of the step table.
type StepEntry struct {
	TaskID string
	Time   float64
	What   string
}

// DBTracer writes finished tasks and their steps into a DataRecorder. Tasks
// that never end are not written.
type DBTracer struct {
	open    *openTasks
	backend datarecording.DataRecorder

	rangeLock          sync.RWMutex
	startTime, endTime sim.VTimeInSec
}

// NewDBTracer creates the task and step tables in the recorder and returns a
// tracer writing into them. The recorder is flushed when the program exits
// through atexit.
func NewDBTracer(
	timeTeller sim.TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable(TaskTable, TaskEntry{})
	dataRecorder.CreateTable(StepTable, StepEntry{})

	t := &DBTracer{backend: dataRecorder}
	t.open = newOpenTasks(timeTeller, t.startsInRange)

	atexit.Register(t.Terminate)

	return t
}

// SetTimeRange limits the tracer to tasks that overlap with the given time
// range. A zero bound is open.
func (t *DBTracer) SetTimeRange(startTime, endTime sim.VTimeInSec) {
	t.rangeLock.Lock()
	defer t.rangeLock.Unlock()

	t.startTime = startTime
	t.endTime = endTime
}

func (t *DBTracer) startsInRange(task Task) bool {
	t.rangeLock.RLock()
	defer t.rangeLock.RUnlock()

	return t.endTime == 0 || task.StartTime <= t.endTime
}

func (t *DBTracer) endsInRange(task Task) bool {
	t.rangeLock.RLock()
	defer t.rangeLock.RUnlock()

	return t.startTime == 0 || task.EndTime >= t.startTime
}

// StartTask starts following a task. Incomplete tasks panic.
func (t *DBTracer) StartTask(task Task) {
	if err := task.validate(); err != nil {
		panic(err)
	}

	t.open.open(task)
}

// StepTask records the time of a step.
func (t *DBTracer) StepTask(task Task) {
	t.open.step(task)
}

// EndTask writes the task and its steps.
func (t *DBTracer) EndTask(task Task) {
	done, ok := t.open.close(task)
	if !ok || !t.endsInRange(done) {
		return
	}

	t.backend.InsertData(TaskTable, entryOf(done))

	for _, s := range done.Steps {
		t.backend.InsertData(StepTable, StepEntry{
			TaskID: done.ID,
			Time:   float64(s.Time),
			What:   s.What,
		})
	}
}

func entryOf(task Task) TaskEntry {
	e := TaskEntry{
		ID:        task.ID,
		ParentID:  task.ParentID,
		Kind:      task.Kind,
		What:      task.What,
		Location:  task.Location,
		StartTime: float64(task.StartTime),
		EndTime:   float64(task.EndTime),
	}

	if task.Detail != nil {
		e.Detail = fmt.Sprintf("%+v", task.Detail)
	}

	return e
}

// Terminate drops unfinished tasks and flushes the backend.
func (t *DBTracer) Terminate() {
	t.open.drop()
	t.backend.Flush()
}
