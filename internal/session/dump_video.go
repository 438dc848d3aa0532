package session

import (
	"encoding/binary"

	"github.com/AgustinSRG/capture-stream-server/internal/bufmap"
	"github.com/AgustinSRG/capture-stream-server/internal/shrink"
	"github.com/AgustinSRG/capture-stream-server/internal/wire"
)

// handleDumpVideoFrame implements §4.3: a bounded, non-realtime batch
// of frames read out of a client-supplied buffer the hardware already
// filled. Unlike the realtime path there is no producer to race; the
// requested frame count doubles as the ring capacity for the mapping.
func handleDumpVideoFrame(s *Session, payload []byte) error {
	if len(payload) < 10 {
		return s.sendError(wire.MsgDumpVideoFrame, wire.ErrArgument, "Invalid payload")
	}

	addr1 := binary.BigEndian.Uint32(payload[0:4])
	addr2 := binary.BigEndian.Uint32(payload[4:8])
	numberOfFrames := binary.BigEndian.Uint16(payload[8:10])

	if numberOfFrames == 0 {
		return s.sendError(wire.MsgDumpVideoFrame, wire.ErrArgument, "Frame number is 0")
	}

	unitSize := pageAlign(int(s.screenWidth) * int(s.screenHeight) * shrink.BytesPerPixel)
	if unitSize == 0 {
		return s.sendError(wire.MsgDumpVideoFrame, wire.ErrMemoryAllocFail, "Memory allocation failed")
	}

	dumpLimit := uint32(numberOfFrames)
	mapSize := unitSize * int(dumpLimit)

	addrs := [2]uint32{addr1, addr2}
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
			return s.sendError(wire.MsgDumpVideoFrame, wire.ErrArgument, "Memory map fail")
		}
		maps[i] = m
	}

	s.mode = ModeNonRealtime
	s.dumpAddresses = addrs
	s.mappings = maps
	s.mmapSize = mapSize
	s.unitAlignedSize = unitSize
	s.dumpLimit = dumpLimit
	s.dumpBuf = make([]byte, unitSize)

	if err := s.sendOK(wire.MsgDumpVideoFrame); err != nil {
		s.releaseCapture()
		s.mode = ModeIdle
		return err
	}

	outW, outH := shrink.Dimensions(s.screenWidth, s.screenHeight, s.shrinkWidth, s.shrinkHeight)
	bodyLen := int(outW) * int(outH) * shrink.BytesPerPixel

	var sendErr error
frames:
	for f := uint32(0); f < dumpLimit; f++ {
		slot := f
		off := int(slot) * unitSize
		for ch := 0; ch < 2; ch++ {
			if maps[ch] == nil {
				continue
			}
			src := maps[ch].Bytes()[off : off+unitSize]
			body := s.dumpBuf[:bodyLen]
			shrink.Copy(body, src, s.screenWidth, s.screenHeight, s.shrinkWidth, s.shrinkHeight)

			head := wire.VideoDataStreamHead{
				FrameNumber: f,
				Width:       outW,
				Height:      outH,
				Channel:     uint8(ch),
			}
			pkt := wire.EncodeDataHeader(wire.MsgDumpVideoFrame, wire.VideoDataStreamHeadSize+bodyLen)
			if _, sendErr = s.conn.Write(pkt); sendErr != nil {
				break frames
			}
			if _, sendErr = s.conn.Write(head.Encode()); sendErr != nil {
				break frames
			}
			if _, sendErr = s.conn.Write(body); sendErr != nil {
				break frames
			}
		}
	}

	s.releaseCapture()
	s.mode = ModeIdle
	return sendErr
}
