package nucleus

// This file implements the scheduler (spec.md §4.C). The teacher's
// equivalent handoff is goroutine.go's SimpleChannel: a busy-wait
// send/receive pair used to resume one piece of work at a time. The
// Nucleus has no real MIPS core to execute, so "dispatching" a PCB means
// making it Current and charging it for CPU time as it runs; there is
// nothing further to "jump to" (spec.md §1 puts instruction execution out
// of scope), so SwitchProcess returns to its caller instead of the
// teacher's true never-returning LDST, and every exit path is recorded on
// the Nucleus rather than left as a spin loop, so tests can observe it.

// HaltKind distinguishes why the machine stopped running user processes.
type HaltKind int

const (
	NotHalted HaltKind = iota
	HaltNormal          // process count reached zero
	HaltDeadlock        // ready queue empty, soft-block count zero, processes remain
	HaltWaiting         // ready queue empty, soft-block count > 0: waiting for I/O/clock
)

// SwitchProcess implements spec.md §4.C: pop the ready queue; if a PCB is
// found, make it Current and arm the quantum. If the ready queue is empty,
// classify why (halt / wait-for-interrupt / deadlock) instead of picking
// a process.
func (n *Nucleus) SwitchProcess() HaltKind {
	h := n.PCBs.RemoveQueue(&n.ready)
	if h != NilHandle {
		n.current = h
		n.quantumStart = n.now
		n.halt = NotHalted
		return NotHalted
	}
	n.current = NilHandle
	switch {
	case n.processCount == 0:
		n.halt = HaltNormal
	case n.softBlockCount > 0:
		n.halt = HaltWaiting
	default:
		n.halt = HaltDeadlock
		n.Log.Error("scheduler: deadlock (ready queue empty, no soft-blocked processes, processes remain)")
	}
	return n.halt
}

// Current returns the handle of the running PCB, or NilHandle if none.
func (n *Nucleus) Current() Handle { return n.current }

// ChargeCurrent adds micros of CPU time to whichever PCB is current,
// reflecting the rule that syscalls, page faults and trap handling are
// charged to the caller (spec.md §4.C); interval-timer service is charged
// to no one and device-interrupt service is charged to the process the
// interrupt unblocks, both handled by their own call sites instead of here.
func (n *Nucleus) ChargeCurrent(micros uint64) {
	if pcb := n.PCBs.Get(n.current); pcb != nil {
		pcb.CPUTime += micros
	}
}

// ElapsedSinceQuantumStart is how long Current has been running since it was
// last dispatched, used by getCPUTime (syscall 6) and the local-timer
// handler.
func (n *Nucleus) ElapsedSinceQuantumStart() uint64 {
	if n.now < n.quantumStart {
		return 0
	}
	return n.now - n.quantumStart
}

// ReadyEnqueue appends h to the ready queue.
func (n *Nucleus) ReadyEnqueue(h Handle) { n.PCBs.InsertQueue(&n.ready, h) }
