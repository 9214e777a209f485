package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2sim/insts"
	"github.com/sarchlab/m2sim/timing/pipeline"
)

var _ = Describe("HazardUnit", func() {
	var h *pipeline.HazardUnit

	BeforeEach(func() {
		h = pipeline.NewHazardUnit()
	})

	Describe("DetectForwarding", func() {
		It("prefers EX over MEM for the same register", func() {
			snapshot := []pipeline.RegisterDependency{
				{Reg: 5, Stage: pipeline.StageEX, Value: 111},
				{Reg: 5, Stage: pipeline.StageMEM, Value: 222},
			}
			result := h.DetectForwarding(5, 0, 0, snapshot)
			Expect(result.ForwardRA).To(Equal(pipeline.ForwardFromEX))
			Expect(h.GetForwardedValue(result.ForwardRA, 5, 999, snapshot)).To(Equal(uint32(111)))
		})

		It("falls back to MEM when nothing is in EX for that register", func() {
			snapshot := []pipeline.RegisterDependency{
				{Reg: 6, Stage: pipeline.StageMEM, Value: 222},
			}
			result := h.DetectForwarding(0, 6, 0, snapshot)
			Expect(result.ForwardRB).To(Equal(pipeline.ForwardFromMEM))
			Expect(h.GetForwardedValue(result.ForwardRB, 6, 999, snapshot)).To(Equal(uint32(222)))
		})

		It("never forwards x0", func() {
			snapshot := []pipeline.RegisterDependency{
				{Reg: 0, Stage: pipeline.StageEX, Value: 111},
			}
			result := h.DetectForwarding(0, 0, 0, snapshot)
			Expect(result.ForwardRA).To(Equal(pipeline.ForwardNone))
		})

		It("leaves the original value alone when there is nothing to forward", func() {
			result := h.DetectForwarding(5, 0, 0, nil)
			Expect(result.ForwardRA).To(Equal(pipeline.ForwardNone))
			Expect(h.GetForwardedValue(result.ForwardRA, 5, 42, nil)).To(Equal(uint32(42)))
		})
	})

	Describe("DetectLoadUseHazard", func() {
		It("reports a hazard when a load is in EX and a consumer reads its destination", func() {
			snapshot := []pipeline.RegisterDependency{
				{Reg: 6, Stage: pipeline.StageEX, Op: insts.OpLW},
			}
			Expect(h.DetectLoadUseHazard(6, 0, 0, snapshot)).To(BeTrue())
		})

		It("does not stall for a non-load producer in EX", func() {
			snapshot := []pipeline.RegisterDependency{
				{Reg: 6, Stage: pipeline.StageEX, Op: insts.OpADD},
			}
			Expect(h.DetectLoadUseHazard(6, 0, 0, snapshot)).To(BeFalse())
		})

		It("does not stall once the load has advanced past EX", func() {
			snapshot := []pipeline.RegisterDependency{
				{Reg: 6, Stage: pipeline.StageMEM, Op: insts.OpLW},
			}
			Expect(h.DetectLoadUseHazard(6, 0, 0, snapshot)).To(BeFalse())
		})
	})

	Describe("HasForwardingOffHazard", func() {
		It("stalls for any in-flight producer in EX or MEM", func() {
			snapshot := []pipeline.RegisterDependency{
				{Reg: 7, Stage: pipeline.StageMEM, Op: insts.OpADDI},
			}
			Expect(h.HasForwardingOffHazard(0, 7, 0, snapshot)).To(BeTrue())
		})

		It("reports no hazard once the producer has retired", func() {
			Expect(h.HasForwardingOffHazard(7, 0, 0, nil)).To(BeFalse())
		})
	})
})
