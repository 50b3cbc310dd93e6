package nucleus

// This file implements the DMA device syscalls (spec.md §4.J, syscalls
// 14-17): block-level disk and flash I/O through a fixed per-device DMA
// buffer. It's grounded on the same register-block contract hardware.go
// models for the other devices, with the SEEK/READ/WRITE command sequence
// run through completeDeviceOp exactly as the printer/terminal syscalls in
// support.go do.

// SyscallDiskIO implements syscalls 14 (read) / 15 (write): validate the
// user address and sector number, SEEK, then READ or WRITE through the
// disk's DMA buffer.
func (n *Nucleus) SyscallDiskIO(h Handle, isWrite bool) {
	pcb := n.PCBs.Get(h)
	s := pcb.Support
	state := &s.ExceptState[GeneralExcept]
	addr, dev, sector := state.A1(), int(state.A2()), state.A3()

	disk := n.Bus.Disks[dev]
	if disk == nil || sector >= disk.MaxSectorNumber() {
		n.SyscallTerminate(h)
		return
	}
	buf, ok := n.ResolveUserRegion(addr, n.Cfg.Devices.DMABufferBytes)
	if !ok {
		n.SyscallTerminate(h)
		return
	}

	sem := n.supportSemFor(supportKindDisk, dev)
	n.P(sem, h)
	defer n.V(sem)

	dma := n.Bus.DMABuffer(LineDisk, dev, n.Cfg.Devices.DMABufferBytes)
	if isWrite {
		copy(dma, buf)
	}

	cyl, _, _ := disk.CHS(sector)
	n.Bus.Regs[lineIndex(LineDisk)][dev].Command = SeekCommand(cyl)
	n.Bus.RaiseInterrupt(LineDisk, dev, StatusReady)
	if status := n.completeDeviceOp(h, LineDisk, dev, false, StatusReady); int32(status) != int32(StatusReady) {
		state.SetV0(-int32(status))
		return
	}

	if isWrite {
		disk.WriteBlock(sector, dma)
	} else {
		disk.ReadBlock(sector, dma)
	}
	var cmd Word = CmdCharOp // READ
	if isWrite {
		cmd = CmdWrite
	}
	n.Bus.Regs[lineIndex(LineDisk)][dev].Command = cmd
	n.Bus.RaiseInterrupt(LineDisk, dev, StatusReady)
	status := n.completeDeviceOp(h, LineDisk, dev, false, StatusReady)
	if int32(status) != int32(StatusReady) {
		state.SetV0(-int32(status))
		return
	}
	if !isWrite {
		copy(buf, dma)
	}
	state.SetV0(int32(status))
}

// SyscallFlashIO implements syscalls 16 (read) / 17 (write): validate the
// user address and block number, then READ or WRITE through the flash
// device's DMA buffer. Flash has no seek step; block addressing is flat.
func (n *Nucleus) SyscallFlashIO(h Handle, isWrite bool) {
	pcb := n.PCBs.Get(h)
	s := pcb.Support
	state := &s.ExceptState[GeneralExcept]
	addr, dev, block := state.A1(), int(state.A2()), state.A3()

	flash := n.Bus.Flashes[dev]
	if flash == nil || int(block) >= flash.BlockCount {
		n.SyscallTerminate(h)
		return
	}
	buf, ok := n.ResolveUserRegion(addr, n.Cfg.Devices.DMABufferBytes)
	if !ok {
		n.SyscallTerminate(h)
		return
	}

	sem := n.supportSemFor(supportKindFlash, dev)
	n.P(sem, h)
	defer n.V(sem)

	dma := n.Bus.DMABuffer(LineFlash, dev, n.Cfg.Devices.DMABufferBytes)
	var cmd Word = FlashCommand(block, CmdCharOp)
	if isWrite {
		copy(dma, buf)
		cmd = FlashCommand(block, CmdWrite)
	}
	n.Bus.Regs[lineIndex(LineFlash)][dev].Command = cmd
	n.Bus.RaiseInterrupt(LineFlash, dev, StatusReady)
	status := n.completeDeviceOp(h, LineFlash, dev, false, StatusReady)
	if int32(status) != int32(StatusReady) {
		state.SetV0(-int32(status))
		return
	}

	if isWrite {
		flash.WriteBlock(block, dma)
	} else {
		flash.ReadBlock(block, dma)
		copy(buf, dma)
	}
	state.SetV0(int32(status))
}
