package bpfloader

import (
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
)

const (
	programName   = "oomguard_fork"
	trackedName   = "oomguard_pids"
	eventsName    = "oomguard_events"
	trackedLimit  = 16384
	ringBufferLen = 1 << 20
)

// ForkRecord is the ring buffer payload emitted for each tracked fork.
type ForkRecord struct {
	Parent uint32
	Child  uint32
	KTime  uint64
}

// ForkRecordSize is the encoded size of a ForkRecord.
const ForkRecordSize = 16

func trackedSpec() *ebpf.MapSpec {
	return &ebpf.MapSpec{
		Name:       trackedName,
		Type:       ebpf.LRUHash,
		KeySize:    4,
		ValueSize:  4,
		MaxEntries: trackedLimit,
	}
}

func eventsSpec() *ebpf.MapSpec {
	return &ebpf.MapSpec{
		Name:       eventsName,
		Type:       ebpf.RingBuf,
		MaxEntries: ringBufferLen,
	}
}

// forkInstructions assembles the tracepoint handler.
//
//	if !tracked[ctx.parent_pid] { return 0 }
//	tracked[ctx.child_pid] = 1
//	rec = ringbuf_reserve(events, 16)
//	if rec { rec = {parent, child, ktime_get_ns()}; ringbuf_submit(rec) }
//	return 0
func forkInstructions(format ForkFormat, trackedFD, eventsFD int) asm.Instructions {
	parentOff := int16(format.ParentPID) //nolint:gosec // tracepoint offsets are small
	childOff := int16(format.ChildPID)   //nolint:gosec // tracepoint offsets are small

	return asm.Instructions{
		asm.Mov.Reg(asm.R6, asm.R1),

		// tracked lookup on the parent
		asm.LoadMem(asm.R7, asm.R6, parentOff, asm.Word),
		asm.StoreMem(asm.RFP, -4, asm.R7, asm.Word),
		asm.LoadMapPtr(asm.R1, trackedFD),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -4),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "exit"),

		// adopt the child
		asm.LoadMem(asm.R7, asm.R6, childOff, asm.Word),
		asm.StoreMem(asm.RFP, -8, asm.R7, asm.Word),
		asm.StoreImm(asm.RFP, -12, 1, asm.Word),
		asm.LoadMapPtr(asm.R1, trackedFD),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -8),
		asm.Mov.Reg(asm.R3, asm.RFP),
		asm.Add.Imm(asm.R3, -12),
		asm.Mov.Imm(asm.R4, 0),
		asm.FnMapUpdateElem.Call(),

		// emit the record
		asm.LoadMapPtr(asm.R1, eventsFD),
		asm.Mov.Imm(asm.R2, ForkRecordSize),
		asm.Mov.Imm(asm.R3, 0),
		asm.FnRingbufReserve.Call(),
		asm.JEq.Imm(asm.R0, 0, "exit"),
		asm.Mov.Reg(asm.R8, asm.R0),
		asm.LoadMem(asm.R1, asm.R6, parentOff, asm.Word),
		asm.StoreMem(asm.R8, 0, asm.R1, asm.Word),
		asm.LoadMem(asm.R1, asm.R6, childOff, asm.Word),
		asm.StoreMem(asm.R8, 4, asm.R1, asm.Word),
		asm.FnKtimeGetNs.Call(),
		asm.StoreMem(asm.R8, 8, asm.R0, asm.DWord),
		asm.Mov.Reg(asm.R1, asm.R8),
		asm.Mov.Imm(asm.R2, 0),
		asm.FnRingbufSubmit.Call(),

		asm.Mov.Imm(asm.R0, 0).WithSymbol("exit"),
		asm.Return(),
	}
}

func programSpec(insns asm.Instructions) *ebpf.ProgramSpec {
	return &ebpf.ProgramSpec{
		Name:         programName,
		Type:         ebpf.TracePoint,
		License:      "GPL",
		Instructions: insns,
	}
}
