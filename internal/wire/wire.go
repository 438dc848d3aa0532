// Package wire implements the capture-stream binary framing: packet
// headers and the typed request/response/data payload headers that
// ride inside them. It mirrors the role of the teacher's
// rtmp_packet.go / rtmp_utils.go (chunk header encode/decode plus the
// protocol constant tables), but for a fixed 8-byte header instead of
// RTMP's variable-length chunk basic/message headers.
//
// The codec is oblivious to meaning: it enforces only that a parsed
// payload length fits inside the caller's buffer budget. Everything
// big-endian; host-endian register values (hal package) must never
// leak in here un-converted.
package wire

import "encoding/binary"

// HeaderSize is the fixed size of a PacketHeader on the wire.
const HeaderSize = 8

// MainType is the high byte of a packet's Type field.
type MainType uint8

const (
	MainRequest  MainType = 0
	MainResponse MainType = 1
	MainData     MainType = 2
)

// MessageType is the low byte of a packet's Type field. Values are
// position-indexed and must match the session dispatcher's handler
// table order (§4.1 of the spec this codec implements).
type MessageType uint8

const (
	MsgReset                   MessageType = 0
	MsgGetVersion              MessageType = 1
	MsgConfigVideoStream       MessageType = 2
	MsgConfigShrinkVideoStream MessageType = 3
	MsgDumpVideoFrame          MessageType = 4
	MsgDumpRealtimeVideoFrame  MessageType = 5
	MsgStopDumpVideo           MessageType = 6
	MsgDumpRealtimeAudioPage   MessageType = 7
	MsgStopDumpAudio           MessageType = 8
)

// MaxMessageType is the highest valid message type index. Anything
// beyond it is a framing error.
const MaxMessageType = MsgStopDumpAudio

// ErrorCode is the packet header's error_code field.
type ErrorCode uint16

const (
	ErrOK                      ErrorCode = 0
	ErrUnsupportedCommand      ErrorCode = 1
	ErrArgument                ErrorCode = 2
	ErrRealtimeStreamExists    ErrorCode = 3
	ErrVideoMemoryOverflowStop ErrorCode = 4
	ErrVideoMemoryOverflowDrop ErrorCode = 5
	ErrAudioMemoryOverflowStop ErrorCode = 6
	ErrAudioMemoryOverflowDrop ErrorCode = 7
	ErrMemoryAllocFail         ErrorCode = 8
)

// Header is the fixed 8-byte packet head: type, error_code, length.
// Length is the size of the payload that follows it on the wire.
type Header struct {
	Type      uint16
	ErrorCode uint16
	Length    uint32
}

// PackType combines a main type and message type into the header's
// Type field: (main_type << 8) | message_type.
func PackType(main MainType, msg MessageType) uint16 {
	return uint16(main)<<8 | uint16(msg)
}

// MainType extracts the main type from a packed Type field.
func (h Header) MainType() MainType {
	return MainType(h.Type >> 8)
}

// MessageType extracts the message type from a packed Type field.
func (h Header) MessageType() MessageType {
	return MessageType(h.Type & 0xff)
}

// Encode serializes the header to its 8-byte wire form.
func (h Header) Encode() []byte {
	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(b[0:2], h.Type)
	binary.BigEndian.PutUint16(b[2:4], h.ErrorCode)
	binary.BigEndian.PutUint32(b[4:8], h.Length)
	return b
}

// ParseHeader decodes an 8-byte header and enforces that its declared
// payload length fits within maxBuffer minus the header size. b must
// be at least HeaderSize bytes; callers read exactly HeaderSize bytes
// off the wire before calling this.
func ParseHeader(b []byte, maxBuffer int) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	h := Header{
		Type:      binary.BigEndian.Uint16(b[0:2]),
		ErrorCode: binary.BigEndian.Uint16(b[2:4]),
		Length:    binary.BigEndian.Uint32(b[4:8]),
	}
	if int(h.Length) > maxBuffer-HeaderSize {
		return Header{}, ErrLengthTooLarge
	}
	return h, nil
}

// EncodeResponseHeader builds a response packet header for a given
// message type, error code and payload length.
func EncodeResponseHeader(msg MessageType, code ErrorCode, payloadLen int) []byte {
	h := Header{
		Type:      PackType(MainResponse, msg),
		ErrorCode: uint16(code),
		Length:    uint32(payloadLen),
	}
	return h.Encode()
}

// EncodeDataHeader builds a data packet header (error_code is always
// OK on a data frame; failures are reported via a response packet,
// never a data packet).
func EncodeDataHeader(msg MessageType, payloadLen int) []byte {
	h := Header{
		Type:      PackType(MainData, msg),
		ErrorCode: uint16(ErrOK),
		Length:    uint32(payloadLen),
	}
	return h.Encode()
}
