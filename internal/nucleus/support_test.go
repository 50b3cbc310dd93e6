package nucleus

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocSupportExhaustion(t *testing.T) {
	n := testNucleus(t)
	cap := n.Cfg.Pools.MaxUserProcs
	var master Semaphore
	for i := 0; i < cap; i++ {
		s := n.AllocSupport(i+1, NilHandle, &master, PassUpContext{}, PassUpContext{})
		require.NotNil(t, s)
	}
	assert.Nil(t, n.AllocSupport(cap+1, NilHandle, &master, PassUpContext{}, PassUpContext{}), "pool sized to max_user_procs is now exhausted")
}

func TestFreeSupportReturnsSlotToPool(t *testing.T) {
	n := testNucleus(t)
	var master Semaphore
	s := n.AllocSupport(1, NilHandle, &master, PassUpContext{}, PassUpContext{})
	require.NotNil(t, s)
	n.FreeSupport(s)
	s2 := n.AllocSupport(1, NilHandle, &master, PassUpContext{}, PassUpContext{})
	assert.NotNil(t, s2)
}

func TestSyscallGetTODReturnsNow(t *testing.T) {
	n := testNucleus(t)
	h, s := testSpawnUser(n, 1)
	n.SwitchProcess()
	n.Advance(9999)
	n.SyscallGetTOD(h)
	assert.Equal(t, int32(9999), int32(s.ExceptState[GeneralExcept].Reg[RegV0]))
}

func TestWriteToPrinterWritesBufferAndReportsCount(t *testing.T) {
	n := testNucleus(t)
	var out bytes.Buffer
	n.Bus.AttachPrinter(0, NewPrinter(&out))
	h, s := testSpawnUser(n, 1)
	n.SwitchProcess()

	base := n.Cfg.Support.UserSpaceBase
	msg := "hi"
	copy(n.RAM[:len(msg)], msg)
	state := &s.ExceptState[GeneralExcept]
	state.Reg[RegA1] = base
	state.Reg[RegA2] = uint32(len(msg))

	n.SyscallWriteToPrinter(h)
	assert.Equal(t, int32(len(msg)), int32(state.Reg[RegV0]))
	assert.Equal(t, msg, out.String())
}

func TestWriteToPrinterTerminatesOnBadAddress(t *testing.T) {
	n := testNucleus(t)
	n.Bus.AttachPrinter(0, NewPrinter(&bytes.Buffer{}))
	h, s := testSpawnUser(n, 1)
	n.SwitchProcess()
	state := &s.ExceptState[GeneralExcept]
	state.Reg[RegA1] = 0 // below user-space base
	state.Reg[RegA2] = 1

	before := n.ProcessCount()
	n.SyscallWriteToPrinter(h)
	assert.Equal(t, before-1, n.ProcessCount(), "an invalid address terminates the caller")
}

func TestReadFromTerminalStopsAtNewline(t *testing.T) {
	n := testNucleus(t)
	n.Bus.AttachTerminal(0, NewTerminal("ok\nmore", &bytes.Buffer{}))
	h, s := testSpawnUser(n, 1)
	n.SwitchProcess()

	base := n.Cfg.Support.UserSpaceBase
	state := &s.ExceptState[GeneralExcept]
	state.Reg[RegA1] = base

	n.SyscallReadFromTerminal(h)
	assert.Equal(t, int32(3), int32(state.Reg[RegV0]), "'o','k','\\n' read before stopping")
	got, ok := n.ResolveUserAddr(base, 3)
	require.True(t, ok)
	assert.Equal(t, "ok\n", string(got))
}

func TestSupportSemForSeparatesKindsAndDevices(t *testing.T) {
	n := testNucleus(t)
	p := n.supportSemFor(supportKindPrinter, 0)
	tTx := n.supportSemFor(supportKindTerminalTransmit, 0)
	tRx := n.supportSemFor(supportKindTerminalRecv, 0)
	disk := n.supportSemFor(supportKindDisk, 0)
	flash := n.supportSemFor(supportKindFlash, 0)
	assert.NotSame(t, p, tTx)
	assert.NotSame(t, tTx, tRx)
	assert.NotSame(t, disk, flash)

	p1 := n.supportSemFor(supportKindPrinter, 1)
	assert.NotSame(t, p, p1, "distinct devices of the same kind get distinct cells")
}

func TestSyscallTerminateReleasesHeldSupportSemaphoresAndSignalsMaster(t *testing.T) {
	n := testNucleus(t)
	h, s := testSpawnUser(n, 1)
	n.SwitchProcess()
	var master Semaphore
	master.Value = 0
	s.MasterSem = &master

	sem := n.supportSemFor(supportKindPrinter, 0)
	n.P(sem, h) // hold it
	assert.Equal(t, int32(0), sem.Value)

	n.SyscallTerminate(h)
	assert.Equal(t, int32(1), sem.Value, "held support semaphore released on terminate")
	assert.Equal(t, int32(1), master.Value, "terminate signals the launcher's master semaphore")
}

func TestDispatchSupportRoutesSyscallCauseToSyscallDispatch(t *testing.T) {
	n := testNucleus(t)
	h, s := testSpawnUser(n, 1)
	n.SwitchProcess()
	state := &s.ExceptState[GeneralExcept]
	state.Cause = ExcSyscall << 2
	state.Reg[RegA0] = 10 // getTOD
	n.Advance(42)

	n.DispatchSupport(h)
	assert.Equal(t, int32(42), int32(state.Reg[RegV0]))
}

func TestDispatchSupportTerminatesOnNonSyscallCause(t *testing.T) {
	n := testNucleus(t)
	h, _ := testSpawnUser(n, 1)
	n.SwitchProcess()
	s := n.PCBs.Get(h).Support
	s.ExceptState[GeneralExcept].Cause = ExcTLBLoad << 2

	before := n.ProcessCount()
	n.DispatchSupport(h)
	assert.Equal(t, before-1, n.ProcessCount())
}

func TestDispatchSupportSyscallOutOfRangeTerminates(t *testing.T) {
	n := testNucleus(t)
	h, s := testSpawnUser(n, 1)
	n.SwitchProcess()
	s.ExceptState[GeneralExcept].Reg[RegA0] = 99

	before := n.ProcessCount()
	n.DispatchSupportSyscall(h)
	assert.Equal(t, before-1, n.ProcessCount())
}
