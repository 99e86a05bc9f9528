package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("StepCountTracer", func() {
	var tracer *StepCountTracer

	BeforeEach(func() {
		tracer = NewStepCountTracer(AllTasks)
	})

	step := func(id, what string) Task {
		return Task{ID: id, Steps: []TaskStep{{What: what}}}
	}

	It("should count steps and tasks with steps", func() {
		tracer.StartTask(Task{ID: "1", What: "read_sectors"})
		tracer.StartTask(Task{ID: "2", What: "read_sectors"})

		tracer.StepTask(step("1", "retry"))
		tracer.StepTask(step("1", "retry"))
		tracer.StepTask(step("2", "command"))
		tracer.StepTask(step("3", "command"))

		tracer.EndTask(Task{ID: "1"})
		tracer.EndTask(Task{ID: "2"})

		Expect(tracer.GetStepNames()).To(Equal([]string{"retry", "command"}))
		Expect(tracer.GetStepCount("retry")).To(Equal(uint64(2)))
		Expect(tracer.GetTaskCount("retry")).To(Equal(uint64(1)))
		Expect(tracer.GetStepCount("command")).To(Equal(uint64(1)))
		Expect(tracer.GetTaskCount("command")).To(Equal(uint64(1)))
	})

	It("should stop counting after the task ends", func() {
		tracer.StartTask(Task{ID: "1", What: "flush"})
		tracer.EndTask(Task{ID: "1"})
		tracer.StepTask(step("1", "late"))

		Expect(tracer.GetStepNames()).To(BeEmpty())
	})
})
