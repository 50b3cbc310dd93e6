package testprogs

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pandos/internal/config"
	"pandos/internal/nucleus"
)

func bootNucleus(t *testing.T) *nucleus.Nucleus {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return nucleus.New(config.Default(), nucleus.NewBus(), log)
}

func TestAddTwoNumbersSumsTerminalInput(t *testing.T) {
	n := bootNucleus(t)
	sum, transcript := AddTwoNumbers(n, "4\n5\n")
	assert.Equal(t, 9, sum)
	assert.Contains(t, transcript, "Enter the first integer")
	assert.Contains(t, transcript, "Enter the second integer")
	assert.Contains(t, transcript, "9")
	assert.Equal(t, 0, n.ProcessCount(), "terminate returns the process to the pool")
}

func TestFlashRoundTripPreservesDistinctBlocks(t *testing.T) {
	n := bootNucleus(t)
	n.Bus.AttachFlash(1, nucleus.NewFlash(n.Cfg.Devices.FlashBlockCount))

	got8, got10, err := FlashRoundTrip(n)
	require.NoError(t, err)
	assert.Equal(t, "hello world!", got8)
	assert.Equal(t, "OS is fun!", got10)
}

func TestFlashRoundTripFailsWithoutAnAttachedDevice(t *testing.T) {
	n := bootNucleus(t)
	_, _, err := FlashRoundTrip(n)
	assert.Error(t, err, "device 1 was never attached; the caller should get an error, not a hang")
}

func TestStringConcatJoinsTwoLines(t *testing.T) {
	n := bootNucleus(t)
	result := StringConcat(n, "foo", "bar")
	assert.Equal(t, "foobar", result)
}

func TestSortIntsSortsAscendingAndSkipsBadTokens(t *testing.T) {
	n := bootNucleus(t)
	sorted := SortInts(n, "5 -3 oops 10 2")
	assert.Equal(t, []int{-3, 2, 5, 10}, sorted)
}

func TestSortIntsCapsAtTwenty(t *testing.T) {
	n := bootNucleus(t)
	tokens := ""
	for i := 0; i < 25; i++ {
		tokens += "1 "
	}
	sorted := SortInts(n, tokens)
	assert.Len(t, sorted, 20)
}

func TestSleepThenPrintAdvancesClockBeforeWaking(t *testing.T) {
	n := bootNucleus(t)
	before, after := SleepThenPrint(n, 1)
	assert.Greater(t, after, before)
	assert.GreaterOrEqual(t, after-before, uint64(1_000_000))
}

func TestSleepThenPrintNegativeSecondsTerminatesImmediately(t *testing.T) {
	n := bootNucleus(t)
	before, after := SleepThenPrint(n, -1)
	assert.Equal(t, before, after)
}

func TestPreemptionFairnessChargesEqualQuantumToBoth(t *testing.T) {
	n := bootNucleus(t)
	cpuA, cpuB := PreemptionFairness(n, 50)
	assert.Equal(t, cpuA, cpuB)
	assert.Equal(t, uint64(50)*n.Cfg.Timing.QuantumMicros, cpuA)
}
