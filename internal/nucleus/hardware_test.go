package nucleus

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskCHSRoundTrip(t *testing.T) {
	d := NewDisk(4, 2, 3) // 24 sectors total
	assert.Equal(t, uint32(24), d.MaxSectorNumber())
	for sector := uint32(0); sector < d.MaxSectorNumber(); sector++ {
		cyl, head, sect := d.CHS(sector)
		assert.Less(t, cyl, uint32(4))
		assert.Less(t, head, uint32(2))
		assert.Less(t, sect, uint32(3))
		assert.Equal(t, sector, cyl*2*3+head*3+sect, "cylinder/head/sector recombine to the linear sector")
	}
}

func TestDiskReadWriteBlockRoundTrip(t *testing.T) {
	d := NewDisk(4, 2, 3)
	want := []byte{1, 2, 3, 4}
	d.WriteBlock(5, want)

	got := make([]byte, 4)
	d.ReadBlock(5, got)
	assert.Equal(t, want, got)

	// WriteBlock copies; mutating the caller's slice afterward must not
	// affect the stored block.
	want[0] = 99
	got2 := make([]byte, 4)
	d.ReadBlock(5, got2)
	assert.Equal(t, byte(1), got2[0])
}

func TestFlashReadWriteBlockRoundTrip(t *testing.T) {
	f := NewFlash(32)
	want := []byte{9, 9, 9}
	f.WriteBlock(10, want)
	got := make([]byte, 3)
	f.ReadBlock(10, got)
	assert.Equal(t, want, got)
}

func TestTerminalReadByteExhaustsInput(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal("hi\n", &out)
	b, ok := term.ReadByte()
	require.True(t, ok)
	assert.Equal(t, byte('h'), b)
	b, ok = term.ReadByte()
	require.True(t, ok)
	assert.Equal(t, byte('i'), b)
	b, ok = term.ReadByte()
	require.True(t, ok)
	assert.Equal(t, byte('\n'), b)
	_, ok = term.ReadByte()
	assert.False(t, ok, "input exhausted")
}

func TestTerminalWriteByteGoesToSink(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal("", &out)
	term.WriteByte('x')
	term.WriteByte('y')
	assert.Equal(t, "xy", out.String())
}

func TestBusRaiseAndAckClearsPendingBit(t *testing.T) {
	b := NewBus()
	b.RaiseInterrupt(LineDisk, 2, StatusReady)
	assert.Equal(t, Word(1<<2), b.PendingMask(LineDisk))
	assert.Equal(t, 2, LowestSetBit(b.PendingMask(LineDisk)))

	b.Ack(LineDisk, 2)
	assert.Equal(t, Word(0), b.PendingMask(LineDisk))
	assert.Equal(t, CmdAck, b.Regs[lineIndex(LineDisk)][2].Command)
}

func TestBusTerminalRecvAndTransmitAreIndependent(t *testing.T) {
	b := NewBus()
	b.RaiseTerminalRecv(1, StatusTerminalChar)
	assert.Equal(t, Word(1<<1), b.TermRecvPending())
	assert.Equal(t, Word(0), b.TermTransmitPending())

	b.RaiseTerminalTransmit(1, StatusReady)
	assert.Equal(t, Word(1<<1), b.TermTransmitPending(), "transmit pending set independently of recv")

	b.AckRecv(1)
	assert.Equal(t, Word(0), b.TermRecvPending())
	assert.Equal(t, Word(1<<1), b.TermTransmitPending(), "acking recv does not touch transmit")

	b.AckTransmit(1)
	assert.Equal(t, Word(0), b.TermTransmitPending())
}

func TestLowestSetBitEmptyMask(t *testing.T) {
	assert.Equal(t, -1, LowestSetBit(0))
}

func TestTLBProbeWriteIndexWriteRandom(t *testing.T) {
	tlb := NewTLB(2)
	_, ok := tlb.Probe(0x1000)
	assert.False(t, ok)

	tlb.WriteIndex(0, 0x1000, 0xAB)
	idx, ok := tlb.Probe(0x1000)
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	tlb.WriteRandom(0x2000, 0xCD)
	_, ok = tlb.Probe(0x2000)
	assert.True(t, ok)
}

func TestTLBUpdateAfterPageTableWriteOnlyTouchesCachedEntry(t *testing.T) {
	tlb := NewTLB(2)
	tlb.UpdateAfterPageTableWrite(0x3000, 0x99) // not cached: no-op
	_, ok := tlb.Probe(0x3000)
	assert.False(t, ok)

	tlb.WriteIndex(0, 0x3000, 0x11)
	tlb.UpdateAfterPageTableWrite(0x3000, 0x22)
	idx, ok := tlb.Probe(0x3000)
	require.True(t, ok)
	assert.Equal(t, Word(0x22), tlb.entries[idx].EntryLO)
}

func TestDMABufferIsStablePerDevice(t *testing.T) {
	b := NewBus()
	buf1 := b.DMABuffer(LineDisk, 0, 4096)
	buf1[0] = 7
	buf2 := b.DMABuffer(LineDisk, 0, 4096)
	assert.Equal(t, byte(7), buf2[0], "same (line, dev) returns the same backing buffer")

	buf3 := b.DMABuffer(LineDisk, 1, 4096)
	assert.Equal(t, byte(0), buf3[0], "a different device gets its own buffer")
}
