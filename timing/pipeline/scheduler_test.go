package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2sim/emu"
	"github.com/sarchlab/m2sim/timing/pipeline"
)

// The following helpers hand-encode RV32I/M words the same way
// insts/decoder_test.go does, so these tests don't depend on the
// assembler.

func encADDI(rd, rs1 uint32, imm int32) uint32 {
	imm12 := uint32(imm) & 0xFFF
	return imm12<<20 | rs1<<15 | 0<<12 | rd<<7 | 0b0010011
}

func encADD(rd, rs1, rs2 uint32) uint32 {
	return 0<<25 | rs2<<20 | rs1<<15 | 0<<12 | rd<<7 | 0b0110011
}

func encDIV(rd, rs1, rs2 uint32) uint32 {
	return uint32(0x01)<<25 | rs2<<20 | rs1<<15 | 0x4<<12 | rd<<7 | 0b0110011
}

func encREM(rd, rs1, rs2 uint32) uint32 {
	return uint32(0x01)<<25 | rs2<<20 | rs1<<15 | 0x6<<12 | rd<<7 | 0b0110011
}

func encLW(rd, rs1 uint32, imm int32) uint32 {
	imm12 := uint32(imm) & 0xFFF
	return imm12<<20 | rs1<<15 | 0x2<<12 | rd<<7 | 0b0000011
}

func encLB(rd, rs1 uint32, imm int32) uint32 {
	imm12 := uint32(imm) & 0xFFF
	return imm12<<20 | rs1<<15 | 0x0<<12 | rd<<7 | 0b0000011
}

func encSH(rs1, rs2 uint32, imm int32) uint32 {
	imm12 := uint32(imm) & 0xFFF
	hi := (imm12 >> 5) & 0x7F
	lo := imm12 & 0x1F
	return hi<<25 | rs2<<20 | rs1<<15 | 0x1<<12 | lo<<7 | 0b0100011
}

func encBEQ(rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	bit12 := (u >> 12) & 0x1
	bit11 := (u >> 11) & 0x1
	bits10to5 := (u >> 5) & 0x3F
	bits4to1 := (u >> 1) & 0xF
	return bit12<<31 | bits10to5<<25 | rs2<<20 | rs1<<15 | 0x0<<12 | bits4to1<<8 | bit11<<7 | 0b1100011
}

func encJAL(rd uint32, imm int32) uint32 {
	u := uint32(imm)
	bit20 := (u >> 20) & 0x1
	bits19to12 := (u >> 12) & 0xFF
	bit11 := (u >> 11) & 0x1
	bits10to1 := (u >> 1) & 0x3FF
	return bit20<<31 | bits10to1<<21 | bit11<<20 | bits19to12<<12 | rd<<7 | 0b1101111
}

func encJALR(rd, rs1 uint32, imm int32) uint32 {
	imm12 := uint32(imm) & 0xFFF
	return imm12<<20 | rs1<<15 | 0<<12 | rd<<7 | 0b1100111
}

func loadProgram(mem *emu.Memory, words []uint32) {
	for i, w := range words {
		mem.SetText(emu.TextSegmentBase+uint32(i)*emu.InstructionWidth, w, "")
	}
}

func runToHalt(sched *pipeline.Scheduler) {
	sched.Run(10_000)
}

var _ = Describe("Scheduler", func() {
	var regFile *emu.RegFile
	var mem *emu.Memory

	BeforeEach(func() {
		regFile = emu.NewRegFile()
		mem = emu.NewMemory()
	})

	Describe("a dependent ADDI chain", func() {
		It("forwards results with no stalls and drains in 7 cycles", func() {
			loadProgram(mem, []uint32{
				encADDI(5, 0, 10), // x5 = 10
				encADDI(6, 5, 5),  // x6 = x5 + 5 = 15
				encADDI(7, 6, -3), // x7 = x6 - 3 = 12
			})
			sched := pipeline.NewScheduler(regFile, mem)
			runToHalt(sched)

			regs := sched.Registers()
			Expect(regs[5]).To(Equal(uint32(10)))
			Expect(regs[6]).To(Equal(uint32(15)))
			Expect(regs[7]).To(Equal(uint32(12)))
			Expect(sched.Stats().TotalCycles).To(Equal(uint64(7)))
			Expect(sched.Stats().DataHazardStalls).To(Equal(uint64(0)))
		})
	})

	Describe("a load followed immediately by its use", func() {
		It("stalls exactly one cycle and forwards the loaded value", func() {
			mem.Write32(emu.DataSegmentBase, 21)
			loadProgram(mem, []uint32{
				encADDI(4, 0, 1),         // x4 = 1, unrelated filler
				encLW(6, 3, 0),           // x6 = mem[x3+0] = 21 (x3 = DataSegmentBase)
				encADD(7, 6, 6),          // x7 = x6 + x6, depends on the load
				encADDI(8, 0, 99),        // trailing filler
			})
			sched := pipeline.NewScheduler(regFile, mem)
			runToHalt(sched)

			regs := sched.Registers()
			Expect(regs[7]).To(Equal(uint32(42)))
			Expect(sched.Stats().DataHazardStalls).To(Equal(uint64(1)))
			Expect(sched.Stats().StallBubbles).To(Equal(uint64(1)))
		})
	})

	Describe("a taken branch the predictor has never seen", func() {
		It("mispredicts once, flushes the wrong path, and lands on the target", func() {
			loadProgram(mem, []uint32{
				encADDI(5, 0, 0),     // pc=0: x5 = 0
				encBEQ(5, 0, 8),      // pc=4: branch taken, target = 4+8 = 12
				encADDI(6, 0, 99),    // pc=8: wrong path, must not execute
				encADDI(7, 0, 7),     // pc=12: correct target
			})
			sched := pipeline.NewScheduler(regFile, mem)
			runToHalt(sched)

			regs := sched.Registers()
			Expect(regs[6]).To(Equal(uint32(0)))
			Expect(regs[7]).To(Equal(uint32(7)))
			Expect(sched.Stats().ControlHazards).To(Equal(uint64(1)))
			Expect(sched.Stats().PipelineFlushes).To(Equal(uint64(1)))
		})
	})

	Describe("a cold branch that is not taken", func() {
		It("does not flush the correctly-fetched fall-through", func() {
			loadProgram(mem, []uint32{
				encADDI(5, 0, 1),  // pc=0: x5 = 1
				encBEQ(5, 0, 8),   // pc=4: not taken, x5 != 0
				encADDI(6, 0, 55), // pc=8: correct fall-through, must execute
			})
			sched := pipeline.NewScheduler(regFile, mem)
			runToHalt(sched)

			regs := sched.Registers()
			Expect(regs[6]).To(Equal(uint32(55)))
			Expect(sched.Stats().ControlHazards).To(Equal(uint64(0)))
			Expect(sched.Stats().PipelineFlushes).To(Equal(uint64(0)))
		})
	})

	Describe("JAL", func() {
		It("links the return address and redirects past the fall-through", func() {
			loadProgram(mem, []uint32{
				encJAL(1, 8),         // pc=0: x1 = 4, jump to pc=8
				encADDI(9, 0, 99),    // pc=4: dead code, never reached
				encADDI(10, 0, 55),   // pc=8: actual target
			})
			sched := pipeline.NewScheduler(regFile, mem)
			runToHalt(sched)

			regs := sched.Registers()
			Expect(regs[1]).To(Equal(uint32(4)))
			Expect(regs[9]).To(Equal(uint32(0)))
			Expect(regs[10]).To(Equal(uint32(55)))
			Expect(sched.Stats().PipelineFlushes).To(Equal(uint64(1)))
		})
	})

	Describe("JALR", func() {
		It("redirects to a register-computed target, skipping the fall-through", func() {
			loadProgram(mem, []uint32{
				encADDI(1, 0, 12),    // pc=0: x1 = 12
				encJALR(2, 1, 0),     // pc=4: x2 = 8, jump to x1&^1 = 12
				encADDI(9, 0, 99),    // pc=8: dead code, never reached
				encADDI(10, 0, 42),   // pc=12: actual target
			})
			sched := pipeline.NewScheduler(regFile, mem)
			runToHalt(sched)

			regs := sched.Registers()
			Expect(regs[2]).To(Equal(uint32(8)))
			Expect(regs[9]).To(Equal(uint32(0)))
			Expect(regs[10]).To(Equal(uint32(42)))
		})
	})

	Describe("DIV and REM by zero", func() {
		It("returns all-ones for DIV and the dividend for REM", func() {
			loadProgram(mem, []uint32{
				encADDI(5, 0, 7),
				encADDI(6, 0, 0),
				encDIV(7, 5, 6),
				encREM(8, 5, 6),
			})
			sched := pipeline.NewScheduler(regFile, mem)
			runToHalt(sched)

			regs := sched.Registers()
			Expect(regs[7]).To(Equal(uint32(0xFFFFFFFF)))
			Expect(regs[8]).To(Equal(uint32(7)))
		})
	})

	Describe("SH followed by LB", func() {
		It("sign-extends the low byte of the stored halfword", func() {
			loadProgram(mem, []uint32{
				encADDI(5, 0, 0xCD), // x5 = 0xCD (205)
				encSH(3, 5, 0),      // mem16[x3+0] = 0x00CD (x3 = DataSegmentBase)
				encLB(6, 3, 0),      // x6 = sign-extend(mem8[x3+0]) = 0xFFFFFFCD
			})
			sched := pipeline.NewScheduler(regFile, mem)
			runToHalt(sched)

			regs := sched.Registers()
			Expect(regs[6]).To(Equal(uint32(0xFFFFFFCD)))
		})
	})

	Describe("forwarding disabled", func() {
		It("still produces correct results, at the cost of stalls", func() {
			loadProgram(mem, []uint32{
				encADDI(5, 0, 10),
				encADDI(6, 5, 5),
				encADDI(7, 6, -3),
			})
			sched := pipeline.NewScheduler(regFile, mem, pipeline.WithForwarding(false))
			runToHalt(sched)

			regs := sched.Registers()
			Expect(regs[5]).To(Equal(uint32(10)))
			Expect(regs[6]).To(Equal(uint32(15)))
			Expect(regs[7]).To(Equal(uint32(12)))
			Expect(sched.Stats().DataHazardStalls).To(BeNumerically(">", 0))
		})
	})

	Describe("an unrecognized opcode", func() {
		It("halts the run instead of executing it as a no-op", func() {
			loadProgram(mem, []uint32{
				encADDI(5, 0, 10),
				0x7F, // no valid opcode has all seven low bits set
			})
			sched := pipeline.NewScheduler(regFile, mem)
			runToHalt(sched)

			Expect(sched.Halted()).To(BeTrue())
			Expect(sched.HaltReason()).To(Equal("decode failure"))
			Expect(sched.Registers()[5]).To(Equal(uint32(10)))
		})
	})

	Describe("pipelining disabled", func() {
		It("drains each instruction fully before fetching the next", func() {
			loadProgram(mem, []uint32{
				encADDI(5, 0, 10),
				encADDI(6, 5, 5),
			})
			sched := pipeline.NewScheduler(regFile, mem, pipeline.WithPipelining(false))
			runToHalt(sched)

			regs := sched.Registers()
			Expect(regs[5]).To(Equal(uint32(10)))
			Expect(regs[6]).To(Equal(uint32(15)))
			Expect(sched.Stats().TotalCycles).To(Equal(uint64(10)))
		})
	})
})
