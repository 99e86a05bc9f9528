package tracing

import (
	"log"
	"strings"

	"github.com/sarchlab/atapio/sim"
)

// LogTracer prints one line per finished task, with its duration and steps.
type LogTracer struct {
	sim.LogHookBase

	open *openTasks
}

// NewLogTracer creates a LogTracer writing into logger.
func NewLogTracer(logger *log.Logger, timeTeller sim.TimeTeller) *LogTracer {
	t := &LogTracer{open: newOpenTasks(timeTeller, AllTasks)}
	t.Logger = logger

	return t
}

// StartTask remembers the task.
func (t *LogTracer) StartTask(task Task) {
	t.open.open(task)
}

// StepTask adds the step to the remembered task.
func (t *LogTracer) StepTask(task Task) {
	t.open.step(task)
}

// EndTask prints the task.
func (t *LogTracer) EndTask(task Task) {
	done, ok := t.open.close(task)
	if !ok {
		return
	}

	steps := make([]string, 0, len(done.Steps))
	for _, s := range done.Steps {
		steps = append(steps, s.What)
	}

	t.Logger.Printf("%s %s@%s %+v %.6fs [%s]",
		done.ID, done.What, done.Location, done.Detail,
		float64(done.Duration()), strings.Join(steps, " "))
}
