package hal

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeVideoRegion(t *testing.T) wordRegion {
	t.Helper()
	buf := make([]byte, videoRegSize)
	// control: clock=1, run=0b10, hash=0, crop=1
	binary.LittleEndian.PutUint32(buf[0:4], (1<<1)|(0b10<<2)|(1<<5))
	binary.LittleEndian.PutUint32(buf[4:8], 0)                 // overflow
	binary.LittleEndian.PutUint32(buf[8:12], 0x1000)           // start addr
	binary.LittleEndian.PutUint32(buf[12:16], 0x2000)          // end addr
	binary.LittleEndian.PutUint32(buf[16:20], 1)               // dump loop
	binary.LittleEndian.PutUint32(buf[20:24], 8)                // dump limit
	binary.LittleEndian.PutUint32(buf[24:28], 640)              // frame width
	binary.LittleEndian.PutUint32(buf[28:32], 480)              // frame height
	binary.LittleEndian.PutUint32(buf[32:36], 42)               // frame count
	binary.LittleEndian.PutUint32(buf[9*4:9*4+4], 10|(20<<16))  // crop L|R
	binary.LittleEndian.PutUint32(buf[10*4:10*4+4], 5|(15<<16)) // crop T|B
	return wordRegion(buf)
}

func TestVideoChannelDecoding(t *testing.T) {
	v := VideoChannel{regs: fakeVideoRegion(t)}

	require.True(t, v.ClockAsserted())
	require.EqualValues(t, 0b10, v.Run())
	require.False(t, v.HashModeEnabled())
	require.True(t, v.CropEnabled())
	require.EqualValues(t, 0x1000+AddrTranslation, v.StartAddress())
	require.EqualValues(t, 0x2000+AddrTranslation, v.EndAddress())
	require.True(t, v.DumpLoop())
	require.EqualValues(t, 8, v.DumpLimit())
	require.EqualValues(t, 640, v.FrameWidth())
	require.EqualValues(t, 480, v.FrameHeight())
	require.EqualValues(t, 42, v.FrameCount())
	require.EqualValues(t, 10, v.CropLeft())
	require.EqualValues(t, 20, v.CropRight())
	require.EqualValues(t, 5, v.CropTop())
	require.EqualValues(t, 15, v.CropBottom())
}

func fakeAudioRegion(t *testing.T) wordRegion {
	t.Helper()
	buf := make([]byte, audioRegSize)
	binary.LittleEndian.PutUint32(buf[0:4], 1<<1) // run bit set
	binary.LittleEndian.PutUint32(buf[8:12], 0x3000)
	binary.LittleEndian.PutUint32(buf[12:16], 0x4000)
	binary.LittleEndian.PutUint32(buf[16:20], 0)
	binary.LittleEndian.PutUint32(buf[20:24], 17)
	return wordRegion(buf)
}

func TestAudioChannelDecoding(t *testing.T) {
	a := AudioChannel{regs: fakeAudioRegion(t)}

	require.True(t, a.RunAsserted())
	require.EqualValues(t, 0x3000+AddrTranslation, a.StartAddress())
	require.EqualValues(t, 0x4000+AddrTranslation, a.EndAddress())
	require.False(t, a.DumpLoop())
	require.EqualValues(t, 17, a.PageCount())
}
