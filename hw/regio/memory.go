package regio

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Bytes is a Memory backed by a byte slice, such as a mapped region.
type Bytes []byte

var _ Memory = Bytes(nil)

// Size returns region length.
func (b Bytes) Size() int64 {
	return int64(len(b))
}

// ReadAt implements io.ReaderAt.
func (b Bytes) ReadAt(p []byte, off int64) (n int, e error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, fmt.Errorf("ReadAt offset %d outside region of %d", off, len(b))
	}
	n = copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (b Bytes) WriteAt(p []byte, off int64) (n int, e error) {
	if off < 0 || off+int64(len(p)) > int64(len(b)) {
		return 0, fmt.Errorf("WriteAt [%d,%d) outside region of %d", off, off+int64(len(p)), len(b))
	}
	return copy(b[off:], p), nil
}

// Window is a register Bus over a byte slice, such as a mapped register page.
// Accesses are 32-bit atomic loads and stores.
type Window []byte

var _ Bus = Window(nil)

func (w Window) word(offset uint32) *uint32 {
	if offset%4 != 0 || int(offset)+4 > len(w) {
		panic(fmt.Errorf("register offset %04X outside window of %d", offset, len(w)))
	}
	return (*uint32)(unsafe.Pointer(&w[offset]))
}

// Read32 implements Bus.
func (w Window) Read32(offset uint32) uint32 {
	return atomic.LoadUint32(w.word(offset))
}

// Write32 implements Bus.
func (w Window) Write32(offset, value uint32) {
	atomic.StoreUint32(w.word(offset), value)
}

// RegisterFile is a Bus backed by a sparse map.
// Unwritten registers read as zero.
type RegisterFile struct {
	mutex sync.Mutex
	regs  map[uint32]uint32
}

var _ Bus = (*RegisterFile)(nil)

// NewRegisterFile creates an empty RegisterFile.
func NewRegisterFile() *RegisterFile {
	return &RegisterFile{regs: map[uint32]uint32{}}
}

// Read32 implements Bus.
func (rf *RegisterFile) Read32(offset uint32) uint32 {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	return rf.regs[offset]
}

// Write32 implements Bus.
func (rf *RegisterFile) Write32(offset, value uint32) {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	rf.regs[offset] = value
}
