package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Type:      PackType(MainResponse, MsgGetVersion),
		ErrorCode: uint16(ErrOK),
		Length:    2,
	}

	encoded := h.Encode()
	require.Len(t, encoded, HeaderSize)

	decoded, err := ParseHeader(encoded, 2048)
	require.NoError(t, err)
	require.Equal(t, h, decoded)
}

func TestHeaderRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		main := MainType(rapid.IntRange(0, 2).Draw(t, "main"))
		msg := MessageType(rapid.IntRange(0, 255).Draw(t, "msg"))
		code := rapid.IntRange(0, 65535).Draw(t, "code")
		length := rapid.IntRange(0, 2048-HeaderSize).Draw(t, "length")

		h := Header{
			Type:      PackType(main, msg),
			ErrorCode: uint16(code),
			Length:    uint32(length),
		}

		encoded := h.Encode()
		require.Len(t, encoded, HeaderSize)

		decoded, err := ParseHeader(encoded, 2048)
		require.NoError(t, err)
		require.Equal(t, h, decoded)
		require.Equal(t, main, decoded.MainType())
		require.Equal(t, msg, decoded.MessageType())
	})
}

func TestParseHeaderRejectsOversizeLength(t *testing.T) {
	h := Header{Type: PackType(MainRequest, MsgReset), Length: 2041}
	_, err := ParseHeader(h.Encode(), 2048)
	require.ErrorIs(t, err, ErrLengthTooLarge)

	// Exactly at the boundary must succeed.
	h.Length = 2040
	_, err = ParseHeader(h.Encode(), 2048)
	require.NoError(t, err)
}

func TestParseHeaderRejectsShortInput(t *testing.T) {
	_, err := ParseHeader([]byte{0, 1, 2}, 2048)
	require.ErrorIs(t, err, ErrShortHeader)
}

func TestMessageTypeBoundary(t *testing.T) {
	require.EqualValues(t, 8, MaxMessageType)
}

func TestVideoDataStreamHeadEncode(t *testing.T) {
	head := VideoDataStreamHead{FrameNumber: 7, Width: 640, Height: 480, Channel: 1}
	b := head.Encode()
	require.Len(t, b, VideoDataStreamHeadSize)
	require.Equal(t, []byte{0, 0, 0, 7, 0x02, 0x80, 0x01, 0xE0, 1, 0, 0, 0}, b)
}

func TestAudioDataStreamHeadEncode(t *testing.T) {
	head := AudioDataStreamHead{PageCount: 20}
	b := head.Encode()
	require.Len(t, b, AudioDataStreamHeadSize)
	require.Equal(t, []byte{0, 0, 0, 20, 0, 0, 0, 0, 0, 0, 0, 0}, b)
}

func TestGetVersionScenario(t *testing.T) {
	// Concrete scenario from §8: GetVersion round trip.
	req := Header{Type: PackType(MainRequest, MsgGetVersion)}
	require.Equal(t, uint16(0x0001), req.Type)

	resp := EncodeResponseHeader(MsgGetVersion, ErrOK, 2)
	decoded, err := ParseHeader(resp, 2048)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0101), decoded.Type)
	require.Equal(t, uint16(0), decoded.ErrorCode)
	require.Equal(t, uint32(2), decoded.Length)
}

func TestConfigVideoStreamScenario(t *testing.T) {
	resp := EncodeResponseHeader(MsgConfigVideoStream, ErrOK, 0)
	decoded, err := ParseHeader(resp, 2048)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0102), decoded.Type)
	require.Equal(t, uint32(0), decoded.Length)
}
