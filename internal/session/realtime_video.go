package session

import (
	"fmt"

	"github.com/AgustinSRG/capture-stream-server/internal/bufmap"
	"github.com/AgustinSRG/capture-stream-server/internal/hal"
	"github.com/AgustinSRG/capture-stream-server/internal/shrink"
	"github.com/AgustinSRG/capture-stream-server/internal/wire"
)

// handleDumpRealtimeVideoFrame implements §4.4: auto-detect which
// video channel is running, derive its current geometry (cropped or
// full-frame), validate the dump region against the channel's
// reported limit, optionally pair a second channel, then enter the
// pacing loop.
func handleDumpRealtimeVideoFrame(s *Session, payload []byte) error {
	if s.mode == ModeRealtimeVideo || s.mode == ModeRealtimeAudio {
		return s.sendError(wire.MsgDumpRealtimeVideoFrame, wire.ErrRealtimeStreamExists, "Realtime stream already exists")
	}
	if len(payload) < 2 {
		return s.sendError(wire.MsgDumpRealtimeVideoFrame, wire.ErrArgument, "Invalid payload")
	}

	isDual := payload[0] != 0
	policy := RealtimePolicy(payload[1])
	if !policy.valid() {
		return s.sendError(wire.MsgDumpRealtimeVideoFrame, wire.ErrArgument, "Realtime mode is wrong")
	}

	chA := s.hal.Video(hal.ChannelA)
	chB := s.hal.Video(hal.ChannelB)

	primary := hal.ChannelA
	primaryRegs := chA
	if chA.Run() == 0 {
		if chB.Run() == 0 {
			return s.sendError(wire.MsgDumpRealtimeVideoFrame, wire.ErrArgument, "Capture HW is not running")
		}
		primary = hal.ChannelB
		primaryRegs = chB
	}

	width, height := videoDims(primaryRegs)
	unitSize := pageAlign(int(width) * int(height) * shrink.BytesPerPixel)
	dumpLimit := primaryRegs.DumpLimit()
	startAddr := primaryRegs.StartAddress()
	endAddr := primaryRegs.EndAddress()

	if !(endAddr-startAddr > uint32(unitSize)*dumpLimit) {
		return s.sendError(wire.MsgDumpRealtimeVideoFrame, wire.ErrArgument, "Dump memory is not enough")
	}

	var addrs [2]uint32
	addrs[0] = startAddr

	if isDual {
		otherRegs := chB
		if primary == hal.ChannelB {
			otherRegs = chA
		}
		if otherRegs.Run() == 0 {
			return s.sendError(wire.MsgDumpRealtimeVideoFrame, wire.ErrArgument, "2nd channel not running")
		}
		ow, oh := videoDims(otherRegs)
		oLimit := otherRegs.DumpLimit()
		if ow != width || oh != height || oLimit != dumpLimit {
			return s.sendError(wire.MsgDumpRealtimeVideoFrame, wire.ErrArgument, "Width or height or limit is not the same")
		}
		oStart := otherRegs.StartAddress()
		oEnd := otherRegs.EndAddress()
		if !(oEnd-oStart > uint32(unitSize)*oLimit) {
			return s.sendError(wire.MsgDumpRealtimeVideoFrame, wire.ErrArgument, "Dump memory is not enough")
		}
		addrs[1] = oStart
	}

	mapSize := unitSize * int(dumpLimit)
	var maps [2]*bufmap.Mapping
	for i, addr := range addrs {
		if addr == 0 {
			continue
		}
		m, err := bufmap.Map(addr, mapSize)
		if err != nil {
			for j := 0; j < i; j++ {
				if maps[j] != nil {
					maps[j].Unmap()
				}
			}
			return s.sendError(wire.MsgDumpRealtimeVideoFrame, wire.ErrArgument, "Memory map fail")
		}
		maps[i] = m
	}

	s.screenWidth, s.screenHeight = width, height
	s.dumpAddresses = addrs
	s.mappings = maps
	s.mmapSize = mapSize
	s.unitAlignedSize = unitSize
	s.dumpLimit = dumpLimit
	s.dumpBuf = make([]byte, unitSize)
	s.realtimeCheckChannel = primary
	s.realtimePolicy = policy
	s.emittedCount = 0
	s.stopDump = false
	s.mode = ModeRealtimeVideo

	if err := s.sendOK(wire.MsgDumpRealtimeVideoFrame); err != nil {
		s.releaseCapture()
		s.mode = ModeIdle
		return err
	}

	err := s.runPacingLoop(videoPacingSpec)
	s.releaseCapture()
	if s.mode == ModeRealtimeVideo {
		s.mode = ModeIdle
	}
	return err
}

var videoPacingSpec = pacingSpec{
	msgType:          wire.MsgDumpRealtimeVideoFrame,
	overflowStopCode: wire.ErrVideoMemoryOverflowStop,
	overflowStopText: "Stop dump realtime video due to memory overflow",
	overflowDropCode: wire.ErrVideoMemoryOverflowDrop,
	dropText: func(dropped uint32) string {
		return fmt.Sprintf("Drop realtime video frame %d", dropped)
	},
	hwCounter: func(s *Session) uint16 {
		return s.hal.Video(s.realtimeCheckChannel).FrameCount()
	},
	emit: (*Session).emitVideoFrame,
}

// videoDims computes a channel's currently reported frame geometry:
// the crop window when crop is enabled, otherwise the full frame
// size (§4.4).
func videoDims(ch hal.VideoChannel) (width, height uint16) {
	if ch.CropEnabled() {
		return ch.CropRight() - ch.CropLeft(), ch.CropBottom() - ch.CropTop()
	}
	return ch.FrameWidth(), ch.FrameHeight()
}

// emitVideoFrame writes one VideoDataStreamHead + shrunk frame body
// per active channel at ring offset count, reusing the session's
// scratch dump buffer as the shrink transform's output (§4.6).
func (s *Session) emitVideoFrame(count uint32) error {
	outW, outH := shrink.Dimensions(s.screenWidth, s.screenHeight, s.shrinkWidth, s.shrinkHeight)
	bodyLen := int(outW) * int(outH) * shrink.BytesPerPixel
	slot := count % s.dumpLimit
	off := int(slot) * s.unitAlignedSize

	for ch := 0; ch < 2; ch++ {
		if s.mappings[ch] == nil {
			continue
		}
		src := s.mappings[ch].Bytes()[off : off+s.unitAlignedSize]
		body := s.dumpBuf[:bodyLen]
		shrink.Copy(body, src, s.screenWidth, s.screenHeight, s.shrinkWidth, s.shrinkHeight)

		head := wire.VideoDataStreamHead{
			FrameNumber: count,
			Width:       outW,
			Height:      outH,
			Channel:     uint8(ch),
		}
		pkt := wire.EncodeDataHeader(wire.MsgDumpRealtimeVideoFrame, wire.VideoDataStreamHeadSize+bodyLen)
		if _, err := s.conn.Write(pkt); err != nil {
			return err
		}
		if _, err := s.conn.Write(head.Encode()); err != nil {
			return err
		}
		if _, err := s.conn.Write(body); err != nil {
			return err
		}
	}
	return nil
}
