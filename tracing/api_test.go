package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/atapio/sim"
)

var _ = Describe("API", func() {
	var (
		mockCtrl *gomock.Controller
		domain   *MockDomain
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		domain = NewMockDomain(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should panic if required fields are missing", func() {
		domain.EXPECT().Name().Return("Channel").AnyTimes()

		Expect(func() {
			StartTask("", "", domain, KindChannel, "read_sectors", nil)
		}).To(Panic())
		Expect(func() {
			StartTask("1", "", nil, KindChannel, "read_sectors", nil)
		}).To(Panic())
		Expect(func() {
			StartTask("1", "", domain, "", "read_sectors", nil)
		}).To(Panic())
		Expect(func() {
			StartTask("1", "", domain, KindChannel, "", nil)
		}).To(Panic())
	})

	It("should panic if the domain has no name", func() {
		domain.EXPECT().Name().Return("").AnyTimes()

		Expect(func() {
			StartTask("1", "", domain, KindChannel, "read_sectors", nil)
		}).To(Panic())
	})

	It("should not invoke hooks if there are no hooks", func() {
		domain.EXPECT().Name().Return("Channel").AnyTimes()
		domain.EXPECT().NumHooks().Return(0).Times(3)

		StartTask("1", "", domain, KindChannel, "read_sectors", nil)
		AddTaskStep("1", domain, "command")
		EndTask("1", domain)
	})

	It("should start a task", func() {
		domain.EXPECT().Name().Return("Channel").AnyTimes()
		domain.EXPECT().NumHooks().Return(1)
		domain.EXPECT().InvokeHook(gomock.Any()).Do(func(ctx sim.HookCtx) {
			Expect(ctx.Pos).To(BeIdenticalTo(HookPosTaskStart))

			task := ctx.Item.(Task)
			Expect(task.ID).To(Equal("1"))
			Expect(task.ParentID).To(Equal("0"))
			Expect(task.Kind).To(Equal(KindChannel))
			Expect(task.What).To(Equal("read_sectors"))
			Expect(task.Location).To(Equal("Channel"))
			Expect(task.Detail).To(Equal(42))
		})

		StartTask("1", "0", domain, KindChannel, "read_sectors", 42)
	})

	It("should start a task at another location", func() {
		domain.EXPECT().NumHooks().Return(1)
		domain.EXPECT().InvokeHook(gomock.Any()).Do(func(ctx sim.HookCtx) {
			task := ctx.Item.(Task)
			Expect(task.Location).To(Equal("Disk.slave"))
			Expect(task.Kind).To(Equal(KindDevice))
		})

		StartTaskAt("Disk.slave", "1", "", domain, KindDevice, "FLUSH CACHE", nil)
	})

	It("should add a step", func() {
		domain.EXPECT().NumHooks().Return(1)
		domain.EXPECT().InvokeHook(gomock.Any()).Do(func(ctx sim.HookCtx) {
			Expect(ctx.Pos).To(BeIdenticalTo(HookPosTaskStep))

			task := ctx.Item.(Task)
			Expect(task.ID).To(Equal("1"))
			Expect(task.Steps).To(HaveLen(1))
			Expect(task.Steps[0].What).To(Equal("command"))
		})

		AddTaskStep("1", domain, "command")
	})

	It("should end a task", func() {
		domain.EXPECT().NumHooks().Return(1)
		domain.EXPECT().InvokeHook(gomock.Any()).Do(func(ctx sim.HookCtx) {
			Expect(ctx.Pos).To(BeIdenticalTo(HookPosTaskEnd))
			Expect(ctx.Item.(Task).ID).To(Equal("1"))
		})

		EndTask("1", domain)
	})
})

type namedDomain struct {
	*sim.HookableBase
	name string
}

func (d namedDomain) Name() string {
	return d.name
}

var _ = Describe("CollectTrace", func() {
	var (
		mockCtrl *gomock.Controller
		tracer   *MockTracer
		domain   namedDomain
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		tracer = NewMockTracer(mockCtrl)
		domain = namedDomain{HookableBase: sim.NewHookableBase(), name: "Channel"}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should forward tasks to the tracer", func() {
		CollectTrace(domain, tracer)

		gomock.InOrder(
			tracer.EXPECT().StartTask(gomock.Any()).Do(func(task Task) {
				Expect(task.ID).To(Equal("t"))
			}),
			tracer.EXPECT().StepTask(gomock.Any()),
			tracer.EXPECT().EndTask(gomock.Any()),
		)

		StartTask("t", "", domain, KindChannel, "flush", nil)
		AddTaskStep("t", domain, "command")
		EndTask("t", domain)
	})

	It("should ignore hook calls that do not carry tasks", func() {
		CollectTrace(domain, tracer)

		domain.InvokeHook(sim.HookCtx{Domain: domain, Item: 5})
	})

	It("should panic when the same tracer is attached twice", func() {
		CollectTrace(domain, tracer)

		Expect(func() { CollectTrace(domain, tracer) }).To(Panic())
	})
})
