package nucleus

// This file implements the eight Nucleus syscalls (spec.md §4.E) plus the
// kernel-mode half of the exception dispatcher's syscall routing (spec.md
// §4.D). The Nucleus never executes real MIPS load/store instructions (out
// of scope per spec.md §1), so there is no flat memory a1..a3 register
// values could be dereferenced against for pointer-shaped arguments
// (createProcess's initial state, P/V's semaphore address); SyscallArgs
// plays the role those registers would, already decoded into Go types by
// whatever drives the Nucleus (a test harness standing in for the CPU).
type SyscallArgs struct {
	Num     int32
	State   *ProcessorState  // createProcess
	Support *SupportStructure // createProcess
	Sem     *Semaphore        // P, V
	Line    int               // waitIO
	Dev     int               // waitIO
	Transmit bool             // waitIO (readFlag, inverted: transmit vs receive)
}

// RegSP is the stack-pointer register, used when loading a pass-up context.
const RegSP = 29

// StatusUserModeBit marks a saved Status word as user mode. The Nucleus
// simulates one bit of the real KUc/KUp/KUo mode stack rather than the full
// MIPS Status layout, since kernel/user is the only protection domain in
// scope (spec.md §1 Non-goals: "no protection domains beyond kernel/user").
const StatusUserModeBit Word = 0x00000008

func IsUserMode(status Word) bool { return status&StatusUserModeBit != 0 }

// Dispatch implements spec.md §4.D: the single exception entry point. It
// reads the cause out of h's saved state and routes to the interrupt,
// TLB-fault, syscall, or program-trap handler.
func (n *Nucleus) Dispatch(h Handle) {
	pcb := n.PCBs.Get(h)
	code := CauseCode(pcb.State.Cause)
	switch {
	case code == ExcInterrupt:
		n.HandleInterrupt()
	case code >= ExcTLBModify && code <= ExcTLBStore:
		n.HandleTLBFault(h)
	case code == ExcSyscall:
		n.dispatchSyscallException(h)
	default:
		n.ProgramTrap(h)
	}
}

// dispatchSyscallException implements spec.md §4.E's mode check: a kernel-
// mode syscall instruction is dispatched to DispatchSyscall by the caller
// (who supplies the decoded SyscallArgs); a user-mode one — whatever its
// number — is passed up as a general exception for the support dispatcher
// to route (spec.md §4.H), since numbers 9..18 are only meaningful there.
func (n *Nucleus) dispatchSyscallException(h Handle) {
	pcb := n.PCBs.Get(h)
	if IsUserMode(pcb.State.Status) {
		n.passUp(h, GeneralExcept)
		return
	}
	// A kernel-mode syscall instruction with no decoded args reaching here
	// (rather than through DispatchSyscall directly) is a bare trap with
	// nothing to do but advance past it; callers that know the arguments
	// should call DispatchSyscall directly instead.
	pcb.State.PC += 4
}

// DispatchSyscall implements spec.md §4.E for kernel-mode callers: advance
// PC by one word, then reject out-of-range numbers or user-mode invocations
// as a reserved-instruction trap, else run the numbered syscall.
func (n *Nucleus) DispatchSyscall(h Handle, args SyscallArgs) {
	pcb := n.PCBs.Get(h)
	pcb.State.PC += 4
	if IsUserMode(pcb.State.Status) {
		n.reservedInstructionTrap(h)
		return
	}
	if args.Num < 1 || args.Num > 8 {
		n.reservedInstructionTrap(h)
		return
	}
	switch args.Num {
	case 1:
		child, ok := n.SyscallCreateProcess(h, *args.State, args.Support)
		if !ok {
			pcb.State.SetV0(-1)
			return
		}
		pcb.State.SetV0(0)
		_ = child
	case 2:
		n.SyscallTerminateProcess(h)
	case 3:
		if n.P(args.Sem, h) {
			n.SwitchProcess()
		}
	case 4:
		n.V(args.Sem)
	case 5:
		if n.SyscallWaitIO(h, args.Line, args.Dev, args.Transmit) {
			n.SwitchProcess()
		}
	case 6:
		n.SyscallGetCPUTime(h)
	case 7:
		if n.SyscallWaitClock(h) {
			n.SwitchProcess()
		}
	case 8:
		_ = n.SyscallGetSupportData(h)
	}
}

// reservedInstructionTrap implements the "invalid syscall number or
// kernel-only syscall from user mode" rule (spec.md §4.E): rewrite the
// cause to reserved-instruction and funnel to the program-trap handler.
func (n *Nucleus) reservedInstructionTrap(h Handle) {
	pcb := n.PCBs.Get(h)
	pcb.State.Cause = ExcReserved << 2
	n.ProgramTrap(h)
}

// ProgramTrap implements the default branch of spec.md §4.D: pass up as a
// general exception, or terminate if the process has no support structure.
func (n *Nucleus) ProgramTrap(h Handle) {
	n.passUp(h, GeneralExcept)
}

// passUp implements spec.md §4.D's "pass up or die": if h's process has a
// support structure, save its exception state into the matching slot and
// load the saved pass-up context (stack pointer, status, PC); the saved
// context is a fresh register-less entry point, not a full restore, exactly
// as the real pass-up vector only ever resumes at a handler's entry.
// Without a support structure there is nowhere to pass up to, so the
// process dies instead (spec.md §7).
func (n *Nucleus) passUp(h Handle, kind ExceptKind) {
	pcb := n.PCBs.Get(h)
	s := pcb.Support
	if s == nil {
		n.SyscallTerminateProcess(h)
		return
	}
	s.ExceptState[kind] = pcb.State
	ctx := s.PassUp[kind]
	pcb.State.PC = ctx.PC
	pcb.State.Status = ctx.Status
	pcb.State.Reg[RegSP] = ctx.SP
}

// terminateForExhaustion implements spec.md §7's "other exhaustions
// terminate the offending user process via syscall 9" rule.
func (n *Nucleus) terminateForExhaustion(h Handle) {
	pcb := n.PCBs.Get(h)
	if pcb.Support != nil {
		n.SyscallTerminate(h)
		return
	}
	n.SyscallTerminateProcess(h)
}

// P implements spec.md §4.E syscall 3: decrement *sem; if it goes negative,
// the caller's processor state (already live in its PCB) is charged its
// elapsed quantum and the PCB is enqueued on the ASL. Returns true if h
// became blocked, so callers that need to reschedule can detect it.
func (n *Nucleus) P(sem *Semaphore, h Handle) bool {
	sem.Value--
	if sem.Value >= 0 {
		return false
	}
	n.ChargeCurrent(n.ElapsedSinceQuantumStart())
	if ok := n.ASL.InsertBlocked(KeyOf(sem), h); !ok {
		n.terminateForExhaustion(h)
		return true
	}
	if h == n.current {
		n.current = NilHandle
	}
	return true
}

// V implements spec.md §4.E syscall 4: increment *sem; if it is now <= 0,
// pop the head of its blocked queue and enqueue it ready. Returns the
// unblocked handle, or NilHandle if nobody was waiting.
func (n *Nucleus) V(sem *Semaphore) Handle {
	sem.Value++
	if sem.Value > 0 {
		return NilHandle
	}
	h := n.ASL.RemoveBlocked(KeyOf(sem))
	if h != NilHandle {
		n.ReadyEnqueue(h)
	}
	return h
}

// SyscallCreateProcess implements syscall 1: allocate a PCB, copy in the
// given state and support pointer, attach as a child of parent, enqueue
// ready. Returns (NilHandle, false) if the pool is exhausted.
func (n *Nucleus) SyscallCreateProcess(parent Handle, initial ProcessorState, support *SupportStructure) (Handle, bool) {
	h, ok := n.PCBs.Alloc()
	if !ok {
		return NilHandle, false
	}
	pcb := n.PCBs.Get(h)
	pcb.State = initial
	pcb.Support = support
	n.PCBs.InsertChild(parent, h)
	n.ReadyEnqueue(h)
	n.processCount++
	return h, true
}

// SyscallTerminateProcess implements syscall 2: detach h from its parent,
// recursively terminate its descendants (spec.md §9's "detach-then-recurse"
// resolution of the two-drafts ambiguity), release any semaphore it was
// blocked on per the cancellation policy (spec.md §5), decrement process
// count, and reschedule if h was (or contained) the running process.
func (n *Nucleus) SyscallTerminateProcess(h Handle) {
	n.terminateSubtree(h)
	if n.current == NilHandle {
		n.SwitchProcess()
	}
}

func (n *Nucleus) terminateSubtree(h Handle) {
	n.PCBs.OutChild(h)
	for child := n.PCBs.FirstChild(h); child != NilHandle; child = n.PCBs.FirstChild(h) {
		n.terminateSubtree(child)
	}
	n.releaseFromSchedulingState(h)
	n.PCBs.Free(h)
	n.processCount--
}

// releaseFromSchedulingState implements spec.md §5's cancellation policy:
// detach h from whichever queue holds it, releasing a held non-device
// semaphore (without waking the next waiter) or simply decrementing
// soft-block count for a device/clock semaphore (the pending I/O still
// completes; its V will just find an empty queue).
func (n *Nucleus) releaseFromSchedulingState(h Handle) {
	pcb := n.PCBs.Get(h)
	if pcb == nil {
		return
	}
	if h == n.current {
		n.current = NilHandle
		return
	}
	if out := n.PCBs.OutQueue(&n.ready, h); out != NilHandle {
		return
	}
	if pcb.Blocked == 0 {
		return
	}
	addr := pcb.Blocked
	n.ASL.OutBlocked(h)
	if n.IsDeviceOrClockSemaphore(addr) {
		n.softBlockCount--
		return
	}
	if sem := semaphoreAt(addr); sem != nil {
		sem.Value++
	}
}

// SyscallWaitIO implements syscall 5: increment soft-block count, then P on
// the device semaphore computed per spec.md §4.E's index formula. Returns
// whether the caller blocked.
func (n *Nucleus) SyscallWaitIO(h Handle, line, dev int, transmit bool) bool {
	n.softBlockCount++
	return n.P(n.DeviceSemaphore(line, dev, transmit), h)
}

// SyscallGetCPUTime implements syscall 6: accumulated CPU time plus elapsed
// time in the current quantum.
func (n *Nucleus) SyscallGetCPUTime(h Handle) uint64 {
	pcb := n.PCBs.Get(h)
	total := pcb.CPUTime + n.ElapsedSinceQuantumStart()
	pcb.State.SetV0(int32(total))
	return total
}

// SyscallWaitClock implements syscall 7: increment soft-block count, P on
// the pseudo-clock semaphore. Returns whether the caller blocked.
func (n *Nucleus) SyscallWaitClock(h Handle) bool {
	n.softBlockCount++
	return n.P(&n.clockSem, h)
}

// SyscallGetSupportData implements syscall 8: return the caller's support
// structure pointer.
func (n *Nucleus) SyscallGetSupportData(h Handle) *SupportStructure {
	return n.PCBs.Get(h).Support
}
