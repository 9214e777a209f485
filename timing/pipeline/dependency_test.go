package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2sim/insts"
	"github.com/sarchlab/m2sim/timing/pipeline"
)

var _ = Describe("DependencyTracker", func() {
	var t *pipeline.DependencyTracker

	BeforeEach(func() {
		t = pipeline.NewDependencyTracker()
	})

	It("starts empty", func() {
		Expect(t.Len()).To(Equal(0))
	})

	It("never tracks x0", func() {
		t.Insert(0, 0x1000, insts.OpADDI)
		Expect(t.Len()).To(Equal(0))
	})

	It("tracks an inserted destination at DEC", func() {
		t.Insert(5, 0x1000, insts.OpADDI)
		snap := t.Snapshot()
		Expect(snap).To(HaveLen(1))
		Expect(snap[0].Reg).To(Equal(uint8(5)))
		Expect(snap[0].Stage).To(Equal(pipeline.StageDEC))
	})

	It("advances stage and value on UpdateStage", func() {
		t.Insert(5, 0x1000, insts.OpADDI)
		t.UpdateStage(0x1000, pipeline.StageEX, 42)
		snap := t.Snapshot()
		Expect(snap[0].Stage).To(Equal(pipeline.StageEX))
		Expect(snap[0].Value).To(Equal(uint32(42)))
	})

	It("removes the entry for a retiring instruction", func() {
		t.Insert(5, 0x1000, insts.OpADDI)
		t.Remove(0x1000)
		Expect(t.Len()).To(Equal(0))
	})

	It("snapshot is a copy, unaffected by later mutation", func() {
		t.Insert(5, 0x1000, insts.OpADDI)
		snap := t.Snapshot()
		t.Remove(0x1000)
		Expect(snap).To(HaveLen(1))
		Expect(t.Len()).To(Equal(0))
	})

	It("tracks multiple in-flight destinations independently", func() {
		t.Insert(5, 0x1000, insts.OpADDI)
		t.Insert(6, 0x1004, insts.OpLW)
		t.UpdateStage(0x1004, pipeline.StageEX, 7)
		snap := t.Snapshot()
		Expect(snap).To(HaveLen(2))
	})
})
