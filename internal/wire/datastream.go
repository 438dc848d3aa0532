package wire

import "encoding/binary"

// VideoDataStreamHead is the fixed header that precedes a frame's raw
// pixel payload on a video data packet.
type VideoDataStreamHead struct {
	FrameNumber uint32
	Width       uint16
	Height      uint16
	Channel     uint8
}

// VideoDataStreamHeadSize is sizeof(VideoDataStream) per §6: u32 + u16
// + u16 + u8 + 3 bytes padding.
const VideoDataStreamHeadSize = 12

// Encode serializes the video data-stream header to its 12-byte wire
// form, zero-padded to alignment.
func (v VideoDataStreamHead) Encode() []byte {
	b := make([]byte, VideoDataStreamHeadSize)
	binary.BigEndian.PutUint32(b[0:4], v.FrameNumber)
	binary.BigEndian.PutUint16(b[4:6], v.Width)
	binary.BigEndian.PutUint16(b[6:8], v.Height)
	b[8] = v.Channel
	// b[9:12] left zero (padding)
	return b
}

// AudioDataStreamHead is the fixed header that precedes a 4096-byte
// audio page payload on an audio data packet: a 4-byte page_count
// field followed by 8 bytes of zero padding, 12 bytes in all (§4.5).
type AudioDataStreamHead struct {
	PageCount uint32
}

// AudioDataStreamHeadSize is the fixed 12-byte header size.
const AudioDataStreamHeadSize = 12

// AudioPageSize is the fixed size of one audio dump unit.
const AudioPageSize = 4096

// Encode serializes the audio data-stream header to its 12-byte wire
// form.
func (a AudioDataStreamHead) Encode() []byte {
	b := make([]byte, AudioDataStreamHeadSize)
	binary.BigEndian.PutUint32(b[0:4], a.PageCount)
	// b[4:12] left zero (padding)
	return b
}
