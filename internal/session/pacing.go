package session

import (
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/AgustinSRG/capture-stream-server/internal/wire"
)

// hwCountWrap is the hardware frame/page counter's wrap period (§3,
// kHW_CountWrap_): the counter is 16 bits wide and wraps at 65536.
const hwCountWrap = 1 << 16

// idlePollSleep bounds how long the pacing loop waits between
// producer samples when neither the client nor the hardware counter
// has anything new. §4.7 calls for a zero-timeout poll and a busy
// loop between samples; this is the "bounded short sleep" the spec
// explicitly allows as a substitute for spinning at 100% CPU.
const idlePollSleep = 2 * time.Millisecond

// wrapDiff is §8's quantified pacing invariant: for any emitted count
// (32-bit, monotonic) and any hardware counter reading (16-bit,
// wrapping), it returns how many units the hardware is ahead of what
// has been emitted so far, itself wrapped into [0, 65536). A result
// of 0 means the hardware has not produced a new unit since the last
// check.
func wrapDiff(hw uint32, emitted uint32) uint32 {
	return (hw + hwCountWrap - (emitted % hwCountWrap)) % hwCountWrap
}

// pacingSpec parameterizes the realtime pacing loop (§4.7) over the
// two realtime streams it drives: video and audio differ only in
// which hardware counter they sample, how they emit one unit, and
// the wording of their overflow/drop responses.
type pacingSpec struct {
	msgType           wire.MessageType
	overflowStopCode  wire.ErrorCode
	overflowStopText  string
	overflowDropCode  wire.ErrorCode
	dropText          func(dropped uint32) string
	hwCounter         func(s *Session) uint16
	emit              func(s *Session, count uint32) error
}

// runPacingLoop drives one realtime stream until the client requests
// a stop, the stream is force-stopped by a StopWhenOverflow overflow,
// or a send/read error makes the session itself unrecoverable. A nil
// return means the session stays alive and returns to Idle; a
// non-nil return is fatal to the session (§7's "send failure during
// streaming: fatal").
func (s *Session) runPacingLoop(spec pacingSpec) error {
	for {
		ready, err := pollReadable(s.conn)
		if err != nil {
			return err
		}
		if ready {
			if err := s.dispatchOneInbound(); err != nil {
				return err
			}
		}

		if s.stopDump {
			s.stopDump = false
			return nil
		}

		hw := uint32(spec.hwCounter(s))
		diff := wrapDiff(hw, s.emittedCount)

		if diff == 0 {
			time.Sleep(idlePollSleep)
			continue
		}

		if diff > s.dumpLimit {
			if s.realtimePolicy == PolicyStopOnOverflow {
				return s.sendError(spec.msgType, spec.overflowStopCode, spec.overflowStopText)
			}
			if err := s.sendError(spec.msgType, spec.overflowDropCode, spec.dropText(diff)); err != nil {
				return err
			}
			s.emittedCount += diff
			continue
		}

		if err := spec.emit(s, s.emittedCount); err != nil {
			return err
		}
		s.emittedCount++
	}
}

// pollReadable does a zero-timeout select(2) on conn's file
// descriptor, grounded on the same unix.Select pattern the V4L2
// capture tool in the example pack uses to wait for a readable fd
// (there blocking, here with a zero Timeval so it never suspends the
// pacing loop). Connections that are not *net.TCPConn (e.g. in tests)
// are reported not-ready rather than erroring.
func pollReadable(conn net.Conn) (bool, error) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return false, nil
	}

	raw, err := tc.SyscallConn()
	if err != nil {
		return false, err
	}

	var ready bool
	var opErr error
	ctlErr := raw.Control(func(fd uintptr) {
		f := int(fd)

		var fds unix.FdSet
		fds.Bits[f/64] |= 1 << (uint(f) % 64)

		tv := unix.Timeval{Sec: 0, Usec: 0}
		n, e := unix.Select(f+1, &fds, nil, nil, &tv)
		if e != nil {
			opErr = e
			return
		}
		ready = n > 0
	})
	if ctlErr != nil {
		return false, ctlErr
	}
	return ready, opErr
}
