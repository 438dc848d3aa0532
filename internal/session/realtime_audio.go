package session

import (
	"fmt"

	"github.com/AgustinSRG/capture-stream-server/internal/bufmap"
	"github.com/AgustinSRG/capture-stream-server/internal/wire"
)

// handleDumpRealtimeAudioPage implements §4.5: the audio dump region
// has no crop/geometry concept, so its limit is derived directly from
// the region size instead of a hardware DumpLimit register.
func handleDumpRealtimeAudioPage(s *Session, payload []byte) error {
	if s.mode == ModeRealtimeVideo || s.mode == ModeRealtimeAudio {
		return s.sendError(wire.MsgDumpRealtimeAudioPage, wire.ErrRealtimeStreamExists, "Realtime stream already exists")
	}
	if len(payload) < 1 {
		return s.sendError(wire.MsgDumpRealtimeAudioPage, wire.ErrArgument, "Invalid payload")
	}

	policy := RealtimePolicy(payload[0])
	if !policy.valid() {
		return s.sendError(wire.MsgDumpRealtimeAudioPage, wire.ErrArgument, "Realtime mode is wrong")
	}

	audio := s.hal.Audio()
	if !audio.RunAsserted() {
		return s.sendError(wire.MsgDumpRealtimeAudioPage, wire.ErrArgument, "Capture HW is not running")
	}

	start := audio.StartAddress()
	end := audio.EndAddress()
	dumpLimit := uint32(end-start) / wire.AudioPageSize

	m, err := bufmap.Map(start, wire.AudioPageSize*int(dumpLimit))
	if err != nil {
		return s.sendError(wire.MsgDumpRealtimeAudioPage, wire.ErrArgument, "Memory map fail")
	}

	s.dumpAddresses = [2]uint32{start, 0}
	s.mappings = [2]*bufmap.Mapping{m, nil}
	s.mmapSize = wire.AudioPageSize * int(dumpLimit)
	s.unitAlignedSize = wire.AudioPageSize
	s.dumpLimit = dumpLimit
	s.dumpBuf = make([]byte, wire.AudioPageSize)
	s.realtimePolicy = policy
	s.emittedCount = 0
	s.stopDump = false
	s.mode = ModeRealtimeAudio

	if err := s.sendOK(wire.MsgDumpRealtimeAudioPage); err != nil {
		s.releaseCapture()
		s.mode = ModeIdle
		return err
	}

	err = s.runPacingLoop(audioPacingSpec)
	s.releaseCapture()
	if s.mode == ModeRealtimeAudio {
		s.mode = ModeIdle
	}
	return err
}

var audioPacingSpec = pacingSpec{
	msgType:          wire.MsgDumpRealtimeAudioPage,
	overflowStopCode: wire.ErrAudioMemoryOverflowStop,
	overflowStopText: "Stop dump realtime audio due to memory overflow",
	overflowDropCode: wire.ErrAudioMemoryOverflowDrop,
	dropText: func(dropped uint32) string {
		return fmt.Sprintf("Drop realtime audio page %d", dropped)
	},
	hwCounter: func(s *Session) uint16 {
		return s.hal.Audio().PageCount()
	},
	emit: (*Session).emitAudioPage,
}

// emitAudioPage copies one 4096-byte page out of the ring slot into
// the scratch dump buffer, then writes the data header and page.
// Copying through the scratch buffer (rather than writing straight
// out of the mapped region) matches §4.5's "copied out of the ring
// slot" wording and keeps the write syscall off a slot the hardware
// could start overwriting mid-send.
func (s *Session) emitAudioPage(count uint32) error {
	slot := count % s.dumpLimit
	off := int(slot) * wire.AudioPageSize
	src := s.mappings[0].Bytes()[off : off+wire.AudioPageSize]

	body := s.dumpBuf[:wire.AudioPageSize]
	copy(body, src)

	head := wire.AudioDataStreamHead{PageCount: count}
	pkt := wire.EncodeDataHeader(wire.MsgDumpRealtimeAudioPage, wire.AudioDataStreamHeadSize+wire.AudioPageSize)
	if _, err := s.conn.Write(pkt); err != nil {
		return err
	}
	if _, err := s.conn.Write(head.Encode()); err != nil {
		return err
	}
	if _, err := s.conn.Write(body); err != nil {
		return err
	}
	return nil
}
