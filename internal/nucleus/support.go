package nucleus

// This file implements the per-process support structure (spec.md §3) and
// the support-level dispatcher and terminate/TOD/print/terminal syscalls
// (spec.md §4.H, §4.I). The teacher's nearest analogue is the boot-time
// per-core state in kernel.go; here the "per core" unit is a user process
// instead, so the pool is sized by max user processes rather than CPU count.

// PageTableSize is the fixed number of entries in a process's private page
// table (spec.md §3).
const PageTableSize = 32

// PassUpContext is a saved (stack pointer, status, PC) triple, the context a
// pass-up handler resumes into (spec.md §4.D, §6).
type PassUpContext struct {
	SP     Word
	Status Word
	PC     Word
}

// ExceptKind distinguishes the two pass-up slots a support structure owns.
type ExceptKind int

const (
	PageFaultExcept ExceptKind = iota
	GeneralExcept
)

// SupportStructure is the per-user-process data the support level owns
// (spec.md §3): an ASID, two saved exception states and two pass-up
// contexts (one pair per ExceptKind), a private page table, and a private
// semaphore the delay facility blocks the process on.
type SupportStructure struct {
	ASID int

	ExceptState  [2]ProcessorState  // indexed by ExceptKind
	PassUp       [2]PassUpContext   // indexed by ExceptKind
	PageTable    [PageTableSize]TLBEntry

	PrivateSem Semaphore // initially 0; the delay facility's V/P rendezvous
	MasterSem  *Semaphore // V'd by terminate to signal the process's launcher

	owner Handle // the PCB this structure is attached to
	inUse bool
}

// AllocSupport reserves a free support structure for asid (1..len(pool)),
// wires its pass-up contexts, and attaches it to owner. Returns nil if the
// pool is exhausted.
func (n *Nucleus) AllocSupport(asid int, owner Handle, master *Semaphore, pageFaultPassUp, generalPassUp PassUpContext) *SupportStructure {
	for i := range n.supportFree {
		if !n.supportFree[i] {
			continue
		}
		n.supportFree[i] = false
		s := &n.supportPool[i]
		*s = SupportStructure{ASID: asid, owner: owner, MasterSem: master, inUse: true}
		s.PassUp[PageFaultExcept] = pageFaultPassUp
		s.PassUp[GeneralExcept] = generalPassUp
		return s
	}
	return nil
}

// FreeSupport returns s to the pool. It is a no-op if s is nil.
func (n *Nucleus) FreeSupport(s *SupportStructure) {
	if s == nil {
		return
	}
	for i := range n.supportPool {
		if &n.supportPool[i] == s {
			n.supportFree[i] = true
			n.supportPool[i] = SupportStructure{}
			return
		}
	}
}

// DispatchSupport implements spec.md §4.H: read the cause code out of the
// general-exception slot; code 8 routes to the support-level syscall
// handler, anything else terminates via syscall 9.
func (n *Nucleus) DispatchSupport(h Handle) {
	pcb := n.PCBs.Get(h)
	s := pcb.Support
	cause := s.ExceptState[GeneralExcept].Cause
	if CauseCode(cause) == ExcSyscall {
		n.DispatchSupportSyscall(h)
		return
	}
	n.SyscallTerminate(h)
}

// DispatchSupportSyscall implements spec.md §4.I's dispatch table (syscalls
// 9-13) plus the DMA syscalls (14-17) and delay (18), sharing one dispatch
// point since all are numbered out of the same a0 register. Any number
// outside 9..18 runs the support-level program-trap handler, which also
// terminates (spec.md §4.I).
func (n *Nucleus) DispatchSupportSyscall(h Handle) {
	pcb := n.PCBs.Get(h)
	s := pcb.Support
	state := &s.ExceptState[GeneralExcept]
	state.PC += 4 // advance past the syscall instruction before resuming (§4.H)
	switch int32(state.A0()) {
	case 9:
		n.SyscallTerminate(h)
	case 10:
		n.SyscallGetTOD(h)
	case 11:
		n.SyscallWriteToPrinter(h)
	case 12:
		n.SyscallWriteToTerminal(h)
	case 13:
		n.SyscallReadFromTerminal(h)
	case 14, 15:
		n.SyscallDiskIO(h, int32(state.A0()) == 15)
	case 16, 17:
		n.SyscallFlashIO(h, int32(state.A0()) == 17)
	case 18:
		n.SyscallDelay(h)
	default:
		n.SyscallTerminate(h)
	}
}

// SyscallTerminate implements spec.md §4.I syscall 9: release held
// support-level device semaphores, invalidate every mapped page and update
// the TLB, signal the launcher, return the support structure to the pool,
// and invoke the Nucleus-level terminateProcess (syscall 2).
//
// "Held" is interpreted as "currently 0" (spec.md §9 open question): a
// semaphore initialized to 1 and never acquired is untouched; one a prior
// syscall P'd to 0 and never V'd back is released on the victim's behalf.
func (n *Nucleus) SyscallTerminate(h Handle) {
	pcb := n.PCBs.Get(h)
	s := pcb.Support
	if s == nil {
		n.SyscallTerminateProcess(h)
		return
	}
	for i := range n.supportSems {
		if n.supportSems[i].Value == 0 {
			n.V(&n.supportSems[i])
		}
	}
	for i := range s.PageTable {
		if s.PageTable[i].Valid {
			hi := s.PageTable[i].EntryHI
			s.PageTable[i] = TLBEntry{}
			n.TLB.UpdateAfterPageTableWrite(hi, 0)
		}
	}
	n.Swap.ReleaseOwner(s.ASID)
	if s.MasterSem != nil {
		n.V(s.MasterSem)
	}
	n.FreeSupport(s)
	pcb.Support = nil
	n.SyscallTerminateProcess(h)
}

// SyscallGetTOD implements syscall 10: return the time-of-day clock.
func (n *Nucleus) SyscallGetTOD(h Handle) {
	pcb := n.PCBs.Get(h)
	pcb.Support.ExceptState[GeneralExcept].SetV0(int32(n.now))
}

// SyscallWriteToPrinter implements syscall 11: write len characters from
// addr to the ASID's printer, one at a time under mutual exclusion on the
// printer's support-level semaphore, stopping at the first device error.
func (n *Nucleus) SyscallWriteToPrinter(h Handle) {
	n.writeToDevice(h, LinePrinter, false)
}

// SyscallWriteToTerminal implements syscall 12: as writeToPrinter, but to
// the terminal's transmit sub-device.
func (n *Nucleus) SyscallWriteToTerminal(h Handle) {
	n.writeToDevice(h, LineTerminal, true)
}

func (n *Nucleus) writeToDevice(h Handle, line int, isTerminal bool) {
	pcb := n.PCBs.Get(h)
	s := pcb.Support
	state := &s.ExceptState[GeneralExcept]
	addr, length := state.A1(), int(int32(state.A2()))
	buf, ok := n.ResolveUserAddr(addr, length)
	if !ok {
		n.SyscallTerminate(h)
		return
	}
	dev := s.ASID - 1
	kind := supportKindPrinter
	if isTerminal {
		kind = supportKindTerminalTransmit
	}
	sem := n.supportSemFor(kind, dev)
	n.P(sem, h)
	defer n.V(sem)

	written := 0
	for _, c := range buf {
		var status Word
		if isTerminal {
			n.Bus.Terminals[dev].WriteByte(c)
			status = n.completeDeviceOp(h, line, dev, true, StatusTerminalChar)
		} else {
			opStatus := StatusReady
			if _, err := n.Bus.Printers[dev].WriteByte(c); err != nil {
				opStatus = 2 // generic device error
			}
			status = n.completeDeviceOp(h, line, dev, false, opStatus)
		}
		if int32(status) != int32(StatusReady) && int32(status) != int32(StatusTerminalChar) {
			state.SetV0(-int32(status))
			return
		}
		written++
	}
	state.SetV0(int32(written))
}

// SyscallReadFromTerminal implements syscall 13: read characters one at a
// time into *addr++ until newline or device error.
func (n *Nucleus) SyscallReadFromTerminal(h Handle) {
	pcb := n.PCBs.Get(h)
	s := pcb.Support
	state := &s.ExceptState[GeneralExcept]
	addr := state.A1()
	dev := s.ASID - 1
	sem := n.supportSemFor(supportKindTerminalRecv, dev)
	n.P(sem, h)
	defer n.V(sem)

	count := 0
	for {
		buf, ok := n.ResolveUserAddr(addr+Word(count), 1)
		if !ok {
			state.SetV0(-1)
			return
		}
		b, present := n.Bus.Terminals[dev].ReadByte()
		status := StatusTerminalChar
		if !present {
			status = 2 // no more input: device reports an error status
		}
		result := n.completeDeviceOp(h, LineTerminal, dev, false, status)
		if int32(result) != int32(StatusTerminalChar) {
			state.SetV0(-int32(result))
			return
		}
		buf[0] = b
		count++
		if b == '\n' {
			state.SetV0(int32(count))
			return
		}
	}
}

// Support-level device semaphore kinds (spec.md §5: "each device ... has a
// support-level binary semaphore initialized to 1").
const (
	supportKindPrinter = iota
	supportKindTerminalTransmit
	supportKindTerminalRecv
	supportKindDisk
	supportKindFlash
	numSupportKinds
)

// supportSemFor returns the per-(kind, device-number) support-level
// semaphore cell.
func (n *Nucleus) supportSemFor(kind, dev int) *Semaphore {
	return &n.supportSems[kind*DevicesPerLine+dev]
}
