package nucleus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayListInsertIsSortedByWakeTime(t *testing.T) {
	d := NewDelayList(5)
	var s1, s2, s3 SupportStructure
	require.True(t, d.Insert(&s2, 20))
	require.True(t, d.Insert(&s1, 10))
	require.True(t, d.Insert(&s3, 30))

	woken := d.DrainDue(25)
	require.Len(t, woken, 2)
	assert.Same(t, &s1, woken[0], "earliest wake time drains first")
	assert.Same(t, &s2, woken[1])
}

func TestDelayListDrainDueLeavesLaterEntries(t *testing.T) {
	d := NewDelayList(5)
	var s1, s2 SupportStructure
	d.Insert(&s1, 10)
	d.Insert(&s2, 100)

	woken := d.DrainDue(50)
	require.Len(t, woken, 1)
	assert.Same(t, &s1, woken[0])

	assert.Empty(t, d.DrainDue(50), "already-drained entries do not reappear")
	woken = d.DrainDue(200)
	require.Len(t, woken, 1)
	assert.Same(t, &s2, woken[0])
}

func TestDelayListCapacityExhaustion(t *testing.T) {
	// capacity 3: two sentinels plus one usable descriptor.
	d := NewDelayList(3)
	var s1, s2 SupportStructure
	require.True(t, d.Insert(&s1, 5))
	assert.False(t, d.Insert(&s2, 6), "pool exhausted after the single usable slot is taken")
}

func TestSyscallDelayNegativeSecondsTerminates(t *testing.T) {
	n := testNucleus(t)
	h, s := testSpawnUser(n, 1)
	n.SwitchProcess()
	s.ExceptState[GeneralExcept].Reg[RegA1] = uint32(int32(-1))

	before := n.ProcessCount()
	n.SyscallDelay(h)
	assert.Equal(t, before-1, n.ProcessCount(), "negative delay terminates the caller")
}

func TestSyscallDelayZeroSecondsReturnsImmediately(t *testing.T) {
	n := testNucleus(t)
	h, s := testSpawnUser(n, 1)
	n.SwitchProcess()
	s.ExceptState[GeneralExcept].Reg[RegA1] = 0

	n.SyscallDelay(h)
	assert.Equal(t, h, n.Current(), "a zero-second delay does not block the caller")
	assert.Equal(t, int32(0), int32(s.ExceptState[GeneralExcept].Reg[RegV0]))
}

func TestSyscallDelayBlocksAndDaemonWakes(t *testing.T) {
	n := testNucleus(t)
	h, s := testSpawnUser(n, 1)
	n.SwitchProcess()
	s.ExceptState[GeneralExcept].Reg[RegA1] = 3 // seconds

	n.SyscallDelay(h)
	assert.NotEqual(t, h, n.Current(), "the caller blocked on its private semaphore")
	assert.Equal(t, int32(-1), s.PrivateSem.Value)

	n.Advance(3_000_000)
	n.DelayDaemonTick()
	assert.Equal(t, int32(0), s.PrivateSem.Value, "the daemon V'd the private semaphore once due")
	assert.Equal(t, h, n.PCBs.HeadQueue(n.ready), "the woken process is back on the ready queue")
}
