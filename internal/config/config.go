// Package config loads the boot-time sizing and timing parameters for the
// Nucleus. The teacher (iansmith-mazarin) selects these values with
// per-platform build tags and untyped constants (gic_qemu.go, timer_qemu.go);
// since the Nucleus targets one simulated machine rather than several real
// boards, the same knobs are expressed as one declarative struct loaded from
// YAML, with defaults matching spec.md §2-§3 exactly.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds every statically-sized pool and timing constant the Nucleus
// needs at boot. There is no dynamic resizing: all pools are fixed capacity
// (spec.md Non-goals).
type Config struct {
	Pools     Pools     `yaml:"pools"`
	Timing    Timing    `yaml:"timing"`
	Devices   Devices   `yaml:"devices"`
	Support   Support   `yaml:"support"`
}

// Pools sizes the fixed-capacity arenas described in spec.md §3.
type Pools struct {
	MaxUserProcs int `yaml:"max_user_procs"` // 8
	MaxProcs     int `yaml:"max_procs"`      // 20, PCB pool capacity
	MaxSemds     int `yaml:"max_semds"`      // 22 (one per PCB + 2 sentinels)
	SwapFrames   int `yaml:"swap_frames"`    // 2 * MaxUserProcs
}

// Timing holds the quantum and the two hardware timers (§4.C, §4.F).
type Timing struct {
	QuantumMicros      uint64 `yaml:"quantum_micros"`       // 5000 (5ms)
	IntervalMicros     uint64 `yaml:"interval_micros"`      // 100000 (100ms)
	IdleWaitMicros     uint64 `yaml:"idle_wait_micros"`     // arm-to-very-long when soft-blocked with nothing ready
}

// Devices describes the fixed device-register area (§6).
type Devices struct {
	LinesStart      int `yaml:"lines_start"`       // 3
	LinesCount      int `yaml:"lines_count"`       // 5 (disk, flash, network, printer, terminal)
	DevicesPerLine  int `yaml:"devices_per_line"`  // 8
	DMABufferBytes  int `yaml:"dma_buffer_bytes"`  // 4096
	DiskBlockBytes  int `yaml:"disk_block_bytes"`  // 4096
	FlashBlockCount int `yaml:"flash_block_count"` // 32, per-process page count mod base
}

// Support sizes the user-mode support layer (§4.H, §4.I, §4.J).
type Support struct {
	UserSpaceBase uint32 `yaml:"user_space_base"` // 0x80000000
	MaxWriteLen   int    `yaml:"max_write_len"`   // 128
	PageTableSize int    `yaml:"page_table_size"` // 32 entries per process

	// RAMBytes sizes the flat simulated user-address space that syscall
	// address arguments (writeToPrinter, writeToTerminal, DMA buffers) index
	// into, offset from UserSpaceBase. The Nucleus never executes user
	// instructions (spec.md §1 puts that out of scope), so there is no
	// general load/store path that needs a page-by-page virtual memory; a
	// flat byte array stands in for "the bytes the running process can
	// address" and the pager's swap-pool bookkeeping is exercised on its own
	// terms (frame/ASID/page-table accounting) rather than by moving these
	// bytes through it.
	RAMBytes int `yaml:"ram_bytes"` // 1 MiB
}

// Default returns the configuration matching the values named throughout
// spec.md, used when no YAML file is supplied.
func Default() Config {
	maxUserProcs := 8
	return Config{
		Pools: Pools{
			MaxUserProcs: maxUserProcs,
			MaxProcs:     20,
			MaxSemds:     22,
			SwapFrames:   2 * maxUserProcs,
		},
		Timing: Timing{
			QuantumMicros:  5000,
			IntervalMicros: 100000,
			IdleWaitMicros: 500000,
		},
		Devices: Devices{
			LinesStart:      3,
			LinesCount:      5,
			DevicesPerLine:  8,
			DMABufferBytes:  4096,
			DiskBlockBytes:  4096,
			FlashBlockCount: 32,
		},
		Support: Support{
			UserSpaceBase: 0x80000000,
			MaxWriteLen:   128,
			PageTableSize: 32,
			RAMBytes:      1 << 20,
		},
	}
}

// Load reads a YAML configuration file, falling back to field-by-field
// defaults for anything the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}
