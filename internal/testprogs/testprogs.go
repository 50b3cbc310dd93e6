// Package testprogs reimplements the testable scenarios of spec.md §8 as Go
// harness programs (pandos/phase4/testers/*.c in the original), each driving
// a single simulated user process directly through the Support syscall API.
// The Nucleus never executes real MIPS instructions (spec.md §1), so there
// is no compiled binary for these programs to trap out of; instead each
// function here issues the same numbered syscalls, in the same order, that a
// compiled tester would have trapped into, standing in for the CPU the way
// SyscallArgs already does for DispatchSyscall's kernel-mode callers.
package testprogs

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"pandos/internal/nucleus"
)

// ramSegment is how much of the flat simulated RAM each spawned process gets
// to itself, so two processes' scratch buffers never alias (spec.md §3's RAM
// is one shared array; segmenting by ASID keeps these harness programs from
// needing their own allocator).
const ramSegment = 0x1000

// maxDelayTicks bounds SleepThenPrint's wait loop: without it a process whose
// delay descriptor never drains (a daemon bug, or a pool too small) would
// spin the harness forever instead of failing its test.
const maxDelayTicks = 1000

// Process is a spawned user process plus the bookkeeping a test program
// needs to drive it: its handle, its support structure, the buffer its
// terminal's transmit half writes to, and a private RAM cursor.
type Process struct {
	H       nucleus.Handle
	Support *nucleus.SupportStructure
	Out     *bytes.Buffer

	n       *nucleus.Nucleus
	ramNext uint32
}

// Spawn creates a user-mode process with ASID asid, attaches a terminal fed
// by input on device asid-1, and dispatches it ready. Returns nil if the
// support or PCB pool is exhausted.
func Spawn(n *nucleus.Nucleus, asid int, input string) *Process {
	out := &bytes.Buffer{}
	n.Bus.AttachTerminal(asid-1, nucleus.NewTerminal(input, out))

	var master nucleus.Semaphore
	sup := n.AllocSupport(asid, nucleus.NilHandle, &master, nucleus.PassUpContext{}, nucleus.PassUpContext{})
	if sup == nil {
		return nil
	}
	h, ok := n.SyscallCreateProcess(nucleus.NilHandle, nucleus.ProcessorState{Status: nucleus.StatusUserModeBit}, sup)
	if !ok {
		n.FreeSupport(sup)
		return nil
	}
	base := n.Cfg.Support.UserSpaceBase + uint32(asid)*ramSegment
	return &Process{H: h, Support: sup, Out: out, n: n, ramNext: base}
}

// alloc carves off size fresh bytes of this process's RAM segment.
func (p *Process) alloc(size int) uint32 {
	addr := p.ramNext
	p.ramNext += uint32(size)
	return addr
}

func (p *Process) writeString(s string) uint32 {
	addr := p.alloc(len(s))
	off := addr - p.n.Cfg.Support.UserSpaceBase
	copy(p.n.RAM[off:], s)
	return addr
}

func (p *Process) readString(addr uint32, length int) string {
	off := addr - p.n.Cfg.Support.UserSpaceBase
	return string(p.n.RAM[off : off+uint32(length)])
}

// call loads a0..a3 with a support-level syscall number and its arguments,
// dispatches it, and returns the resulting v0 (spec.md §4.I).
func (p *Process) call(num int32, a1, a2, a3 uint32) int32 {
	state := &p.Support.ExceptState[nucleus.GeneralExcept]
	state.Reg[nucleus.RegA0] = uint32(num)
	state.Reg[nucleus.RegA1] = a1
	state.Reg[nucleus.RegA2] = a2
	state.Reg[nucleus.RegA3] = a3
	p.n.DispatchSupportSyscall(p.H)
	return int32(state.Reg[nucleus.RegV0])
}

func (p *Process) print(s string) {
	addr := p.writeString(s)
	p.call(12, addr, uint32(len(s)), 0) // writeToTerminal
}

// terminated reports whether a prior syscall killed this process (an
// invalid address, an out-of-range sector/block, negative delay seconds).
// Once terminated, p.Support points at a zeroed, recycled struct and must
// not be touched again.
func (p *Process) terminated() bool {
	return p.n.PCBs.Get(p.H).Support == nil
}

func (p *Process) readLine() string {
	buf := p.alloc(p.n.Cfg.Support.MaxWriteLen)
	n := p.call(13, buf, 0, 0) // readFromTerminal
	if n < 0 {
		return ""
	}
	return strings.TrimRight(p.readString(buf, int(n)), "\n")
}

// AddTwoNumbers implements the first tester (pandos/testers/addtwo-ish):
// prompt for two integers over the terminal, print their sum, terminate.
// input supplies the two lines the terminal's receive side will yield.
func AddTwoNumbers(n *nucleus.Nucleus, input string) (sum int, transcript string) {
	p := Spawn(n, 1, input)
	n.SwitchProcess()

	p.print("Enter the first integer: ")
	a, _ := strconv.Atoi(strings.TrimSpace(p.readLine()))
	p.print("Enter the second integer: ")
	b, _ := strconv.Atoi(strings.TrimSpace(p.readLine()))

	sum = a + b
	p.print(fmt.Sprintf("%d\n", sum))
	p.call(9, 0, 0, 0) // terminate
	return sum, p.Out.String()
}

// FlashRoundTrip implements the flash tester: write two distinct messages to
// two flash blocks, scribble over the local buffer, then read each block
// back and confirm the device — not the stale buffer — produced the bytes.
func FlashRoundTrip(n *nucleus.Nucleus) (block8, block10 string, err error) {
	p := Spawn(n, 2, "")
	n.SwitchProcess()
	dev := uint32(p.Support.ASID - 1)

	dmaLen := n.Cfg.Devices.DMABufferBytes
	buf := p.alloc(dmaLen)
	off := buf - n.Cfg.Support.UserSpaceBase

	writeBlock := func(msg string, block uint32) error {
		copy(n.RAM[off:off+uint32(dmaLen)], msg)
		for i := len(msg); i < dmaLen; i++ {
			n.RAM[int(off)+i] = 0
		}
		status := p.call(17, buf, dev, block)
		if p.terminated() {
			return fmt.Errorf("write block %d: no such flash device", block)
		}
		if status < 0 {
			return fmt.Errorf("write block %d: status %d", block, status)
		}
		return nil
	}
	readBlock := func(length int, block uint32) (string, error) {
		for i := range n.RAM[off : off+uint32(dmaLen)] {
			n.RAM[int(off)+i] = '?' // poison the buffer so a stale read can't fake a match
		}
		status := p.call(16, buf, dev, block)
		if p.terminated() {
			return "", fmt.Errorf("read block %d: no such flash device", block)
		}
		if status < 0 {
			return "", fmt.Errorf("read block %d: status %d", block, status)
		}
		return p.readString(buf, length), nil
	}

	msg1, msg2 := "hello world!", "OS is fun!"
	if err := writeBlock(msg1, 8); err != nil {
		return "", "", err
	}
	if err := writeBlock(msg2, 10); err != nil {
		return "", "", err
	}
	block8, err = readBlock(len(msg1), 8)
	if err != nil {
		return "", "", err
	}
	block10, err = readBlock(len(msg2), 10)
	if err != nil {
		return "", "", err
	}
	p.call(9, 0, 0, 0)
	return block8, block10, nil
}

// StringConcat implements the string tester: read two lines, print their
// concatenation.
func StringConcat(n *nucleus.Nucleus, first, second string) (result string) {
	p := Spawn(n, 3, first+"\n"+second+"\n")
	n.SwitchProcess()

	a := p.readLine()
	b := p.readLine()
	result = a + b
	p.print(result + "\n")
	p.call(9, 0, 0, 0)
	return result
}

// SortInts implements the sort tester: read a line of up to 20
// whitespace-separated integers, sort them ascending, print the result.
// Tokens that don't parse as an int32 are skipped rather than aborting the
// whole line, matching the original's "bad token, keep going" tolerance.
func SortInts(n *nucleus.Nucleus, input string) (sorted []int) {
	p := Spawn(n, 4, input+"\n")
	n.SwitchProcess()

	line := p.readLine()
	for _, tok := range strings.Fields(line) {
		v, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			continue
		}
		sorted = append(sorted, int(v))
		if len(sorted) == 20 {
			break
		}
	}
	sort.Ints(sorted)

	var b strings.Builder
	for _, v := range sorted {
		fmt.Fprintf(&b, "%d ", v)
	}
	b.WriteByte('\n')
	p.print(b.String())
	p.call(9, 0, 0, 0)
	return sorted
}

// SleepThenPrint implements the delay tester: call syscall 18 with the given
// number of seconds, drive the simulated clock and delay daemon forward
// until the process wakes, then print a confirmation line. Returns the
// simulated time-of-day before and after the sleep; if seconds is negative
// the call terminates the process immediately and after equals before.
func SleepThenPrint(n *nucleus.Nucleus, seconds int32) (before, after uint64) {
	p := Spawn(n, 5, "")
	n.SwitchProcess()

	before = n.Now()
	p.call(18, uint32(seconds), 0, 0)
	if p.terminated() {
		return before, before // negative seconds terminated the caller (spec.md §4.I)
	}

	for tick := 0; n.Current() != p.H && tick < maxDelayTicks; tick++ {
		n.Advance(n.Cfg.Timing.IntervalMicros)
		n.DelayDaemonTick()
		if n.Current() == nucleus.NilHandle {
			n.SwitchProcess()
		}
	}
	after = n.Now()
	p.print("delay done\n")
	p.call(9, 0, 0, 0)
	return before, after
}

// PreemptionFairness implements the scheduler tester: two CPU-bound
// kernel-mode processes, neither ever blocking, alternate under the local
// timer for the given number of rounds. Equal CPU time for both at the end
// demonstrates the round-robin quantum is charged fairly (spec.md §4.C).
// Kernel mode is used here rather than a support structure because these
// processes never call a support-level syscall; getCPUTime (syscall 6) is a
// Nucleus syscall in its own right (spec.md §4.E).
func PreemptionFairness(n *nucleus.Nucleus, rounds int) (cpuA, cpuB uint64) {
	ha, _ := n.SyscallCreateProcess(nucleus.NilHandle, nucleus.ProcessorState{}, nil)
	hb, _ := n.SyscallCreateProcess(nucleus.NilHandle, nucleus.ProcessorState{}, nil)
	n.SwitchProcess() // dispatches ha, the first to join the ready queue

	quantum := n.Cfg.Timing.QuantumMicros
	for i := 0; i < rounds*2; i++ {
		cur := n.Current()
		n.DispatchSyscall(cur, nucleus.SyscallArgs{Num: 6}) // getCPUTime, charged to the caller
		n.Advance(quantum)
		n.RaiseLocalTimerInterrupt()
		n.HandleInterrupt() // charges the elapsed quantum, requeues cur, dispatches the other
	}

	cpuA, cpuB = n.PCBs.Get(ha).CPUTime, n.PCBs.Get(hb).CPUTime
	n.SyscallTerminateProcess(ha)
	n.SyscallTerminateProcess(hb)
	return cpuA, cpuB
}
