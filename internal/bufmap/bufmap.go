// Package bufmap maps the hardware dump buffers a session has been
// told about (by physical address, from the HAL) into this process's
// address space so the session can read frames and audio pages
// straight out of them.
//
// It is the per-session counterpart to internal/hal's process-wide
// register mmaps, grounded on the same golang.org/x/sys/unix
// Mmap/Munmap calls demonstrated end to end against /dev/mem in the
// example pack's V4L2 capture tools. Unlike those tools it maps
// read-only: a session never writes into a dump buffer, only the
// board does.
package bufmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const devMemPath = "/dev/mem"

// Mapping is a read-only view of one hardware dump buffer, mapped at
// a caller-chosen physical address and size.
type Mapping struct {
	data []byte
	size int
}

// Map opens /dev/mem and mmaps size bytes starting at the given
// physical address, read-only. The file descriptor is closed
// immediately after the mmap call returns: on Linux the mapping stays
// valid independent of the fd that created it, and holding it open
// longer only invites double-close bugs in session teardown.
func Map(physAddr uint32, size int) (*Mapping, error) {
	if size <= 0 {
		return nil, fmt.Errorf("bufmap: invalid size %d", size)
	}

	f, err := os.OpenFile(devMemPath, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("bufmap: open %s: %w", devMemPath, err)
	}
	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), int64(physAddr), size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("bufmap: mmap addr=0x%x size=%d: %w", physAddr, size, err)
	}

	return &Mapping{data: data, size: size}, nil
}

// Bytes returns the mapped region. The slice must not be retained
// past a call to Unmap.
func (m *Mapping) Bytes() []byte {
	return m.data
}

// Size returns the number of bytes this mapping covers.
func (m *Mapping) Size() int {
	return m.size
}

// Unmap releases the mapping. It always unmaps exactly the size this
// Mapping was created with, which is what data it actually holds, so
// a caller can never accidentally unmap the wrong number of bytes for
// the region's kind (video vs audio) the way a pair of hand-maintained
// size constants invites.
func (m *Mapping) Unmap() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
