package regio

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// DevMemConfig locates the device in physical memory.
type DevMemConfig struct {
	// Path is the memory device.
	// The default is /dev/mem.
	Path string `json:"path,omitempty"`

	// RegisterBase is the physical address of the register window.
	// The default is 0xA0010000.
	RegisterBase uint64 `json:"registerBase,omitempty"`

	// RegisterSize is the length of the register window.
	// The default is 64 KiB.
	RegisterSize int `json:"registerSize,omitempty"`

	// SharedMemBase is the physical address of ring buffer memory.
	// It must be reachable with 32-bit addressing.
	SharedMemBase uint64 `json:"sharedMemBase"`

	// SharedMemSize is the length of ring buffer memory.
	SharedMemSize int `json:"sharedMemSize"`
}

func (cfg *DevMemConfig) applyDefaults() {
	if cfg.Path == "" {
		cfg.Path = "/dev/mem"
	}
	if cfg.RegisterBase == 0 {
		cfg.RegisterBase = 0xA0010000
	}
	if cfg.RegisterSize <= 0 {
		cfg.RegisterSize = 64 * 1024
	}
}

// DevMem maps device registers and shared memory from a memory device.
type DevMem struct {
	file   *os.File
	regMap []byte
	memMap []byte
	regs   Window
	mem    Bytes
}

// OpenDevMem opens the memory device and maps both regions.
func OpenDevMem(cfg DevMemConfig) (dm *DevMem, e error) {
	cfg.applyDefaults()
	if cfg.SharedMemSize <= 0 {
		return nil, errors.New("SharedMemSize must be positive")
	}
	if cfg.SharedMemBase+uint64(cfg.SharedMemSize) > 1<<32 {
		return nil, fmt.Errorf("shared memory at %X is not 32-bit addressable", cfg.SharedMemBase)
	}

	dm = &DevMem{}
	if dm.file, e = os.OpenFile(cfg.Path, os.O_RDWR|os.O_SYNC, 0); e != nil {
		return nil, fmt.Errorf("os.OpenFile(%s) %w", cfg.Path, e)
	}

	var off int
	if dm.regMap, off, e = mapRegion(dm.file, cfg.RegisterBase, cfg.RegisterSize); e != nil {
		dm.Close()
		return nil, fmt.Errorf("map registers %w", e)
	}
	dm.regs = Window(dm.regMap[off : off+cfg.RegisterSize])

	if dm.memMap, off, e = mapRegion(dm.file, cfg.SharedMemBase, cfg.SharedMemSize); e != nil {
		dm.Close()
		return nil, fmt.Errorf("map shared memory %w", e)
	}
	dm.mem = Bytes(dm.memMap[off : off+cfg.SharedMemSize])

	logger.Info("memory device mapped",
		zap.String("path", cfg.Path),
		zap.Uint64("register-base", cfg.RegisterBase),
		zap.Uint64("shmem-base", cfg.SharedMemBase),
		zap.Int("shmem-size", cfg.SharedMemSize),
	)
	return dm, nil
}

func mapRegion(file *os.File, base uint64, size int) (mapped []byte, off int, e error) {
	pageSize := uint64(unix.Getpagesize())
	pageBase := base &^ (pageSize - 1)
	off = int(base - pageBase)
	mapped, e = unix.Mmap(int(file.Fd()), int64(pageBase), off+size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if e != nil {
		return nil, 0, fmt.Errorf("unix.Mmap(%X,%d) %w", pageBase, off+size, e)
	}
	return mapped, off, nil
}

// Registers returns the register Bus.
func (dm *DevMem) Registers() Bus {
	return dm.regs
}

// Memory returns shared memory.
func (dm *DevMem) Memory() Memory {
	return dm.mem
}

// Close unmaps both regions and closes the device.
func (dm *DevMem) Close() error {
	var errs []error
	if dm.memMap != nil {
		errs = append(errs, unix.Munmap(dm.memMap))
		dm.memMap = nil
	}
	if dm.regMap != nil {
		errs = append(errs, unix.Munmap(dm.regMap))
		dm.regMap = nil
	}
	if dm.file != nil {
		errs = append(errs, dm.file.Close())
		dm.file = nil
	}
	return multierr.Combine(errs...)
}
