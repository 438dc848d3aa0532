// Package session implements the per-connection streaming session:
// the state machine described in spec §4.2, its handler table, and
// the mapped-buffer/scratch-buffer lifecycle that backs it.
//
// It plays the role the teacher's RTMPSession (rtmp_session.go) plays
// for the RTMP protocol: one struct per accepted connection, created
// on accept and run to completion by a single goroutine, with handler
// methods dispatched off an incoming message's type field. Unlike the
// teacher's chunked/AMF framing, this protocol's frames are a fixed
// 8-byte header (internal/wire) plus a flat payload, so there is no
// chunk reassembly state to carry between reads.
package session

import (
	"io"
	"net"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/AgustinSRG/capture-stream-server/internal/bufmap"
	"github.com/AgustinSRG/capture-stream-server/internal/hal"
	"github.com/AgustinSRG/capture-stream-server/internal/wire"
)

// scratchBufferSize is the receive/send scratch buffer size; §3
// requires at least 2048 bytes.
const scratchBufferSize = 4096

// Mode is the session's current capture mode.
type Mode int

const (
	ModeIdle Mode = iota
	ModeNonRealtime
	ModeRealtimeVideo
	ModeRealtimeAudio
)

// RealtimePolicy selects how a realtime stream reacts to the producer
// outrunning the consumer (§4.7 step 6).
type RealtimePolicy uint8

const (
	PolicyStopOnOverflow RealtimePolicy = 1
	PolicyBestEffort     RealtimePolicy = 2
)

func (p RealtimePolicy) valid() bool {
	return p == PolicyStopOnOverflow || p == PolicyBestEffort
}

// Session holds all per-connection state: capture configuration,
// shrink parameters, mapped buffers, the scratch dump buffer, and the
// current mode. It is exclusively owned by the goroutine running Run.
type Session struct {
	hal  *hal.HAL
	conn net.Conn
	id   uint64
	log  *logrus.Entry

	scratch []byte

	messageType wire.MessageType

	mode     Mode
	stopDump bool

	screenWidth, screenHeight   uint16
	shrinkWidth, shrinkHeight   uint8
	isShrink                    bool

	dumpAddresses   [2]uint32
	mappings        [2]*bufmap.Mapping
	mmapSize        int
	unitAlignedSize int
	dumpLimit       uint32

	// realtimeCheckChannel is the hal.Channel whose frame counter the
	// pacing loop samples; only meaningful in ModeRealtimeVideo.
	realtimeCheckChannel hal.Channel
	realtimePolicy       RealtimePolicy

	dumpBuf []byte

	emittedCount uint32
}

// New creates a session for an already-accepted connection. The
// session does not take ownership of the connection's lifecycle
// beyond Run: the caller's accept loop is responsible for logging
// connection-level events before/after Run.
func New(h *hal.HAL, id uint64, conn net.Conn, log *logrus.Entry) *Session {
	return &Session{
		hal:     h,
		conn:    conn,
		id:      id,
		log:     log,
		scratch: make([]byte, scratchBufferSize),
		mode:    ModeIdle,
	}
}

// Run reads and dispatches requests until the connection closes or a
// handler reports a fatal error, then releases all session resources.
func (s *Session) Run() {
	defer s.teardown()

	for {
		hdr, payload, err := s.readRequest()
		if err != nil {
			if err != io.EOF {
				s.log.WithError(err).Debug("session ending: framing or read error")
			}
			return
		}

		s.messageType = hdr.MessageType()
		if err := s.dispatch(hdr.MessageType(), payload); err != nil {
			s.log.WithError(err).Warn("session ending: handler error")
			return
		}
	}
}

func (s *Session) teardown() {
	s.releaseCapture()
	s.conn.Close()
}

// readRequest reads one complete request packet off the connection
// into the session's scratch buffer and validates it as a framing
// concern only (§4.2): main type must be Request, message type must
// be in range. It does not interpret the payload.
func (s *Session) readRequest() (wire.Header, []byte, error) {
	hdrBuf := s.scratch[:wire.HeaderSize]
	if _, err := io.ReadFull(s.conn, hdrBuf); err != nil {
		return wire.Header{}, nil, err
	}

	hdr, err := wire.ParseHeader(hdrBuf, len(s.scratch))
	if err != nil {
		return wire.Header{}, nil, err
	}
	if hdr.MainType() != wire.MainRequest {
		return wire.Header{}, nil, errBadMainType
	}
	if hdr.MessageType() > wire.MaxMessageType {
		return wire.Header{}, nil, errBadMessageType
	}

	payload := s.scratch[wire.HeaderSize : wire.HeaderSize+int(hdr.Length)]
	if hdr.Length > 0 {
		if _, err := io.ReadFull(s.conn, payload); err != nil {
			return wire.Header{}, nil, err
		}
	}
	return hdr, payload, nil
}

// dispatchOneInbound reads and handles exactly one request, used by
// the pacing loop's in-band poll (§4.7 step 1). The session's current
// message type is restored afterward, so the outer stream's message
// type survives the inner dispatch (§4.5). Data frames do not read it:
// each emit function stamps its own fixed message type.
func (s *Session) dispatchOneInbound() error {
	hdr, payload, err := s.readRequest()
	if err != nil {
		return err
	}

	saved := s.messageType
	s.messageType = hdr.MessageType()
	err = s.dispatch(hdr.MessageType(), payload)
	s.messageType = saved
	return err
}

func (s *Session) dispatch(msg wire.MessageType, payload []byte) error {
	if int(msg) >= len(handlers) {
		return errBadMessageType
	}
	return handlers[msg](s, payload)
}

// sendOK writes a zero-length success response for msg.
func (s *Session) sendOK(msg wire.MessageType) error {
	_, err := s.conn.Write(wire.EncodeResponseHeader(msg, wire.ErrOK, 0))
	return err
}

// sendError writes an error response carrying a human-readable body
// and logs it at Warn level, per §7's observable-contract requirement
// that every non-fatal error both logs and responds.
func (s *Session) sendError(msg wire.MessageType, code wire.ErrorCode, text string) error {
	s.log.WithFields(logrus.Fields{
		"message_type": msg,
		"error_code":   code,
	}).Warn(text)

	body := []byte(text)
	buf := append(wire.EncodeResponseHeader(msg, code, len(body)), body...)
	_, err := s.conn.Write(buf)
	return err
}

// releaseCapture unmaps all mapped buffers and clears the per-capture
// fields, returning the session to Idle-buffer state (§3: "Mode
// transitions back to Idle release the dump buffer and all
// mappings").
func (s *Session) releaseCapture() {
	for i := range s.mappings {
		if s.mappings[i] != nil {
			s.mappings[i].Unmap()
			s.mappings[i] = nil
		}
	}
	s.dumpAddresses = [2]uint32{}
	s.dumpBuf = nil
	s.mmapSize = 0
	s.unitAlignedSize = 0
	s.dumpLimit = 0
}

// pageAlign rounds n up to the next multiple of the system page size,
// per §3's unit-size rule for video dump slots. n <= 0 returns 0,
// which handleDumpVideoFrame treats as an allocation failure (§4.3): a
// zero-sized frame can only arise from an unconfigured or degenerate
// geometry. The realtime video path does not check for 0; its
// zero-size mapping then fails with "Memory map fail".
func pageAlign(n int) int {
	if n <= 0 {
		return 0
	}
	ps := os.Getpagesize()
	return (n + ps - 1) / ps * ps
}
