package tracing

import (
	"fmt"

	"github.com/sarchlab/atapio/sim"
)

// CollectTrace attaches a tracer to a domain. Attaching the same tracer to
// the same domain twice panics, since every task would be seen twice.
func CollectTrace(domain Domain, tracer Tracer) {
	for _, h := range domain.Hooks() {
		if th, ok := h.(*traceHook); ok && th.tracer == tracer {
			panic(fmt.Sprintf("tracing: %s already traced by %T",
				domain.Name(), tracer))
		}
	}

	domain.AcceptHook(&traceHook{tracer: tracer})
}

// traceHook turns task hook calls into tracer calls.
type traceHook struct {
	tracer Tracer
}

func (h *traceHook) Func(ctx sim.HookCtx) {
	task, ok := ctx.Item.(Task)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosTaskStart:
		h.tracer.StartTask(task)
	case HookPosTaskStep:
		h.tracer.StepTask(task)
	case HookPosTaskEnd:
		h.tracer.EndTask(task)
	}
}
