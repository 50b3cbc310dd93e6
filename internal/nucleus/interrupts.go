package nucleus

// This file implements the interrupt handler (spec.md §4.F): the local
// timer, the 100ms interval timer, and the five device lines. The teacher's
// nearest analogue is gic_qemu.go's IRQ dispatch, which also isolates the
// lowest-numbered pending source and services exactly one before returning;
// the Nucleus keeps that shape but drives it from two boolean timer flags
// and the Bus's per-line pending bitmaps instead of real GICD registers.

// Interrupt line numbers used by the handler; lines 3..7 are the five
// device lines already named in hardware.go.
const (
	LineLocalTimer    = 1
	LineIntervalTimer = 2
)

// ArmLocalTimer and ArmIntervalTimer stand in for writing the hardware
// timer's countdown register. The Nucleus has no real clock ticking down,
// so arming only matters as a record of "this timer is live" for a test
// harness driving RaiseLocalTimerInterrupt/RaiseIntervalTimerInterrupt.
func (n *Nucleus) ArmLocalTimer()    { n.localTimerPending = false }
func (n *Nucleus) ArmIntervalTimer() { n.intervalTimerPending = false }

// RaiseLocalTimerInterrupt and RaiseIntervalTimerInterrupt mark the
// corresponding timer as having fired, the harness's stand-in for the
// hardware countdown reaching zero.
func (n *Nucleus) RaiseLocalTimerInterrupt()    { n.localTimerPending = true }
func (n *Nucleus) RaiseIntervalTimerInterrupt() { n.intervalTimerPending = true }

// pendingLinesMask assembles the bitmap HandleInterrupt isolates the lowest
// set bit of: bit 1 for the local timer, bit 2 for the interval timer, bits
// 3..7 for the device lines (terminal counted pending if either its recv or
// transmit half has a waiting device).
func (n *Nucleus) pendingLinesMask() Word {
	var m Word
	if n.localTimerPending {
		m |= 1 << LineLocalTimer
	}
	if n.intervalTimerPending {
		m |= 1 << LineIntervalTimer
	}
	for line := LineDisk; line <= LinePrinter; line++ {
		if n.Bus.PendingMask(line) != 0 {
			m |= 1 << uint(line)
		}
	}
	if n.Bus.TermRecvPending() != 0 || n.Bus.TermTransmitPending() != 0 {
		m |= 1 << LineTerminal
	}
	return m
}

// HandleInterrupt implements spec.md §4.F: isolate the highest-priority
// (lowest-numbered) pending line and service exactly it.
func (n *Nucleus) HandleInterrupt() {
	line := LowestSetBit(n.pendingLinesMask())
	switch line {
	case LineLocalTimer:
		n.handleLocalTimer()
	case LineIntervalTimer:
		n.handleIntervalTimer()
	case LineDisk, LineFlash, LineNetwork, LinePrinter:
		n.handleDeviceLine(line)
	case LineTerminal:
		n.handleTerminalLine()
	default:
		// Spurious: nothing pending. Resume current, or schedule if idle.
		if n.current == NilHandle {
			n.SwitchProcess()
		}
	}
}

// handleLocalTimer: re-arm, save the preempted process's state, charge it
// for the quantum it used, put it back on ready, and schedule.
func (n *Nucleus) handleLocalTimer() {
	n.ArmLocalTimer()
	if h := n.current; h != NilHandle {
		n.ChargeCurrent(n.ElapsedSinceQuantumStart())
		n.current = NilHandle
		n.ReadyEnqueue(h)
	}
	n.SwitchProcess()
}

// handleIntervalTimer: reload, drain every PCB blocked on the pseudo-clock
// semaphore to ready, reset it to 0, and resume current (or schedule if
// idle). Interval-timer service is charged to no PCB (spec.md §4.C).
func (n *Nucleus) handleIntervalTimer() {
	n.ArmIntervalTimer()
	for {
		h := n.ASL.RemoveBlocked(KeyOf(&n.clockSem))
		if h == NilHandle {
			break
		}
		n.ReadyEnqueue(h)
		n.softBlockCount--
	}
	n.clockSem.Value = 0
	if n.current == NilHandle {
		n.SwitchProcess()
	}
}

// handleDeviceLine services one non-terminal device line (disk, flash,
// network, printer): find the lowest-numbered interrupting device, read and
// ACK its status, V its semaphore, stash the status in the unblocked PCB's
// v0, decrement soft-block count, then resume current or schedule.
func (n *Nucleus) handleDeviceLine(line int) {
	dev := LowestSetBit(n.Bus.PendingMask(line))
	if dev < 0 {
		return
	}
	status := n.Bus.Status(line, dev)
	n.Bus.Ack(line, dev) // ACK precedes V to avoid spurious re-interrupt (spec.md §4.F)
	n.signalDevice(n.DeviceSemaphore(line, dev, false), status)
}

// handleTerminalLine services the terminal line, distinguishing its
// receive and transmit halves (spec.md §4.F).
func (n *Nucleus) handleTerminalLine() {
	if recv := n.Bus.TermRecvPending(); recv != 0 {
		dev := LowestSetBit(recv)
		status := n.Bus.RecvStatus(dev)
		n.Bus.AckRecv(dev)
		n.signalDevice(n.DeviceSemaphore(LineTerminal, dev, false), status)
		return
	}
	dev := LowestSetBit(n.Bus.TermTransmitPending())
	if dev < 0 {
		return
	}
	status := n.Bus.TransmStatus(dev)
	n.Bus.AckTransmit(dev)
	n.signalDevice(n.DeviceSemaphore(LineTerminal, dev, true), status)
}

// signalDevice implements the common tail of device-line service: V the
// semaphore, deliver the captured status to whichever PCB that unblocks,
// decrement soft-block count, and resume current or schedule.
func (n *Nucleus) signalDevice(sem *Semaphore, status Word) {
	h := n.V(sem)
	if h != NilHandle {
		if pcb := n.PCBs.Get(h); pcb != nil {
			pcb.State.SetV0(int32(status))
		}
		n.softBlockCount--
	}
	if n.current == NilHandle {
		n.SwitchProcess()
	}
}

// ackDevice ACKs the right sub-register for a (line, dev) pair, used by
// completeDeviceOp's synchronous device-op shortcut.
func (n *Nucleus) ackDevice(line, dev int, transmit bool) {
	if line != LineTerminal {
		n.Bus.Ack(line, dev)
		return
	}
	if transmit {
		n.Bus.AckTransmit(dev)
	} else {
		n.Bus.AckRecv(dev)
	}
}

// completeDeviceOp collapses "block waiting for a device, the device
// interrupts, the handler services it, the waiter resumes" into one call.
// The support-level syscalls (writeToPrinter, writeToTerminal,
// readFromTerminal, the DMA syscalls) issue a command and the Bus's
// register state already reflects its outcome by the time they call this,
// since the Nucleus has no real concurrency for the device to complete
// independently in; HandleInterrupt/signalDevice remain the path a harness
// uses to test actual asynchronous device completion.
func (n *Nucleus) completeDeviceOp(h Handle, line, dev int, transmit bool, status Word) Word {
	sem := n.DeviceSemaphore(line, dev, transmit)
	n.softBlockCount++
	n.P(sem, h) // always blocks: device semaphores start at 0, h is the only waiter
	n.ackDevice(line, dev, transmit)
	unblocked := n.V(sem)
	if unblocked != NilHandle {
		if pcb := n.PCBs.Get(unblocked); pcb != nil {
			pcb.State.SetV0(int32(status))
		}
		n.softBlockCount--
		n.PCBs.OutQueue(&n.ready, unblocked)
	}
	n.current = h
	return status
}
