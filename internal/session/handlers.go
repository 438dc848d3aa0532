package session

import (
	"encoding/binary"

	"github.com/AgustinSRG/capture-stream-server/internal/wire"
)

// handlers is the message-type-indexed dispatch table (§4.1): the
// position of each entry is part of the wire contract, not an
// implementation detail, so it must stay in MessageType order.
var handlers = [...]func(*Session, []byte) error{
	wire.MsgReset:                   handleReset,
	wire.MsgGetVersion:              handleGetVersion,
	wire.MsgConfigVideoStream:       handleConfigVideoStream,
	wire.MsgConfigShrinkVideoStream: handleConfigShrinkVideoStream,
	wire.MsgDumpVideoFrame:          handleDumpVideoFrame,
	wire.MsgDumpRealtimeVideoFrame:  handleDumpRealtimeVideoFrame,
	wire.MsgStopDumpVideo:           handleStopDump,
	wire.MsgDumpRealtimeAudioPage:   handleDumpRealtimeAudioPage,
	wire.MsgStopDumpAudio:           handleStopDump,
}

// handleReset implements §4.2 Reset: permitted only when idle or
// mid non-realtime dump; a live realtime stream rejects it without
// tearing anything down.
func handleReset(s *Session, payload []byte) error {
	if s.mode == ModeRealtimeVideo || s.mode == ModeRealtimeAudio {
		return s.sendError(wire.MsgReset, wire.ErrRealtimeStreamExists, "Realtime stream already exists")
	}

	s.screenWidth, s.screenHeight = 0, 0
	s.shrinkWidth, s.shrinkHeight = 0, 0
	s.isShrink = false
	s.stopDump = false
	s.mode = ModeIdle
	s.dumpLimit = 0

	return s.sendOK(wire.MsgReset)
}

// handleGetVersion responds with the fixed {major, minor} pair.
func handleGetVersion(s *Session, payload []byte) error {
	_, err := s.conn.Write(append(wire.EncodeResponseHeader(wire.MsgGetVersion, wire.ErrOK, 2), 1, 0))
	return err
}

// handleConfigVideoStream sets the session's capture geometry. No
// hardware interaction happens here; it just records what the client
// intends to dump.
func handleConfigVideoStream(s *Session, payload []byte) error {
	if len(payload) < 4 {
		return s.sendError(wire.MsgConfigVideoStream, wire.ErrArgument, "Invalid payload")
	}
	s.screenWidth = binary.BigEndian.Uint16(payload[0:2])
	s.screenHeight = binary.BigEndian.Uint16(payload[2:4])
	return s.sendOK(wire.MsgConfigVideoStream)
}

// handleConfigShrinkVideoStream sets the pixel-decimation factors;
// is_shrink becomes true iff either factor is nonzero.
func handleConfigShrinkVideoStream(s *Session, payload []byte) error {
	if len(payload) < 2 {
		return s.sendError(wire.MsgConfigShrinkVideoStream, wire.ErrArgument, "Invalid payload")
	}
	s.shrinkWidth = payload[0]
	s.shrinkHeight = payload[1]
	s.isShrink = s.shrinkWidth != 0 || s.shrinkHeight != 0
	return s.sendOK(wire.MsgConfigShrinkVideoStream)
}

// handleStopDump backs both StopDumpVideo and StopDumpAudio: in
// either realtime mode it raises the stop flag the pacing loop checks
// each iteration (§4.7 step 2); it always responds OK, even when no
// realtime stream is active.
func handleStopDump(s *Session, payload []byte) error {
	if s.mode == ModeRealtimeVideo || s.mode == ModeRealtimeAudio {
		s.stopDump = true
	}
	if s.messageType == wire.MsgStopDumpAudio {
		return s.sendOK(wire.MsgStopDumpAudio)
	}
	return s.sendOK(wire.MsgStopDumpVideo)
}
