// Package hal implements the Hardware Access Layer: a process-wide
// singleton that memory-maps the board's video-A, video-B and audio
// register regions and exposes typed read-only accessors over them.
//
// This plays the role the teacher's RTMPServer plays for connection
// bookkeeping (a single struct created once at startup and handed to
// every session as a shared borrow, per the teacher's
// CreateRTMPServer / AddSession pattern in rtmp_server.go), except HAL
// owns hardware register mmaps instead of a session map.
//
// Register reads go through atomic.LoadUint32 over the mmap'd byte
// slice: the mapping is a live hardware view, and the load acts as the
// compiler fence that keeps the Go compiler from caching or reordering
// a read the board may have already updated out from under it. mmap
// itself is done with golang.org/x/sys/unix, the same package used for
// per-session dump buffer mapping (internal/bufmap) and demonstrated
// end to end in the reference V4L2 capture tools in the example pack
// (golang.org/x/sys/unix.Mmap / unix.Open).
package hal

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	devMemPath = "/dev/mem"

	videoARegBase = 0xFF210000
	videoBRegBase = 0xFF211000
	audioRegBase  = 0xFF212000

	videoRegSize = 1024
	audioRegSize = 24

	// AddrTranslation is the fixed offset the board applies between a
	// register's raw start/end address value and the physical address
	// a caller can actually map. Every *StartAddress/*EndAddress
	// accessor below adds it before returning.
	AddrTranslation = 0xC0000000
)

// wordRegion is a read-only view over a memory-mapped register block,
// indexed by 32-bit word. It forbids arbitrary pointer arithmetic: the
// only operation is "read word N", which is all the register map in
// §6 ever needs.
type wordRegion []byte

func (r wordRegion) word(i int) uint32 {
	off := i * 4
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&r[off])))
}

// Channel identifies one of the board's two independent video dump
// controllers.
type Channel int

const (
	ChannelA Channel = 0
	ChannelB Channel = 1
)

// HAL is the process-wide hardware access singleton. It is safe for
// concurrent read-only use by multiple sessions once Init has
// returned; there is no per-call locking because the registers
// themselves are read-only to this process.
type HAL struct {
	mem    *os.File
	videoA wordRegion
	videoB wordRegion
	audio  wordRegion
}

// New returns an unopened HAL. Call Init before use.
func New() *HAL {
	return &HAL{}
}

// Init opens /dev/mem read-write/synchronous and maps the three
// register regions. It must be called exactly once, at server start.
func (h *HAL) Init() error {
	f, err := os.OpenFile(devMemPath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return fmt.Errorf("hal: open %s: %w", devMemPath, err)
	}
	h.mem = f

	va, err := mapRegion(f, videoARegBase, videoRegSize)
	if err != nil {
		f.Close()
		return fmt.Errorf("hal: map video A registers: %w", err)
	}
	vb, err := mapRegion(f, videoBRegBase, videoRegSize)
	if err != nil {
		unix.Munmap(va)
		f.Close()
		return fmt.Errorf("hal: map video B registers: %w", err)
	}
	au, err := mapRegion(f, audioRegBase, audioRegSize)
	if err != nil {
		unix.Munmap(va)
		unix.Munmap(vb)
		f.Close()
		return fmt.Errorf("hal: map audio registers: %w", err)
	}

	h.videoA = wordRegion(va)
	h.videoB = wordRegion(vb)
	h.audio = wordRegion(au)

	return nil
}

// mapRegion mmaps size bytes of /dev/mem at physical offset base.
// Registers are never written by this process, but PROT_WRITE is
// still requested because /dev/mem's mmap requires the region offset
// to be page-aligned and some kernels reject a read-only mapping of
// a device file opened O_RDWR; the wordRegion type is what actually
// forbids writes at the Go level.
func mapRegion(f *os.File, base int64, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), base, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Close tears down the register mappings and closes /dev/mem. Call it
// once, at server shutdown.
func (h *HAL) Close() error {
	var firstErr error
	for _, r := range []wordRegion{h.videoA, h.videoB, h.audio} {
		if r == nil {
			continue
		}
		if err := unix.Munmap(r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.mem != nil {
		if err := h.mem.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Video returns the accessor for one of the two video channels.
func (h *HAL) Video(ch Channel) VideoChannel {
	if ch == ChannelA {
		return VideoChannel{regs: h.videoA}
	}
	return VideoChannel{regs: h.videoB}
}

// Audio returns the audio dump controller accessor.
func (h *HAL) Audio() AudioChannel {
	return AudioChannel{regs: h.audio}
}
