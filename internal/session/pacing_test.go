package session

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/AgustinSRG/capture-stream-server/internal/wire"
)

// TestWrapDiffProperty is §8's quantified pacing invariant: for all
// emitted in [0, 2^32) and hw in [0, 2^16), diff is in [0, 65536) and
// diff == 0 iff hw == emitted mod 65536.
func TestWrapDiffProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		emitted := uint32(rapid.Uint32().Draw(t, "emitted"))
		hw := uint16(rapid.IntRange(0, 65535).Draw(t, "hw"))

		diff := wrapDiff(uint32(hw), emitted)

		require.Less(t, diff, uint32(hwCountWrap))
		if diff == 0 {
			require.EqualValues(t, emitted%hwCountWrap, hw)
		} else {
			require.NotEqualValues(t, emitted%hwCountWrap, hw)
		}
	})
}

// TestWrapDiffOverflowScenario is §8 scenario 5: dump_limit=8, the
// hardware counter jumps from 3 to 20, BestEffort drops 17 pages and
// resumes at 20.
func TestWrapDiffOverflowScenario(t *testing.T) {
	const dumpLimit = 8
	emitted := uint32(3)
	hw := uint16(20)

	diff := wrapDiff(uint32(hw), emitted)
	require.EqualValues(t, 17, diff)
	require.Greater(t, diff, uint32(dumpLimit))

	emitted += diff
	require.EqualValues(t, 20, emitted)
}

func TestWrapDiffNoNewUnit(t *testing.T) {
	require.EqualValues(t, 0, wrapDiff(5, 5))
	require.EqualValues(t, 0, wrapDiff(5, 5+hwCountWrap))
}

// TestRunPacingLoopBestEffortDropTextScenario drives runPacingLoop
// through §8 scenario 5 end to end and asserts the wire response body
// reports the dropped-unit count (17), not the pre-overflow emitted
// count (3).
func TestRunPacingLoopBestEffortDropTextScenario(t *testing.T) {
	s, client := newTestSession(t)
	s.mode = ModeRealtimeAudio
	s.dumpLimit = 8
	s.emittedCount = 3
	s.realtimePolicy = PolicyBestEffort

	calls := 0
	spec := pacingSpec{
		msgType:          wire.MsgDumpRealtimeAudioPage,
		overflowStopCode: wire.ErrAudioMemoryOverflowStop,
		overflowStopText: "Stop dump realtime audio due to memory overflow",
		overflowDropCode: wire.ErrAudioMemoryOverflowDrop,
		dropText:         audioPacingSpec.dropText,
		hwCounter: func(s *Session) uint16 {
			calls++
			if calls > 1 {
				s.stopDump = true
			}
			return 20
		},
		emit: func(s *Session, count uint32) error {
			t.Fatalf("emit should not be called: overflow must be detected first")
			return nil
		},
	}

	done := make(chan error, 1)
	go func() { done <- s.runPacingLoop(spec) }()

	h := readHeader(t, client)
	require.EqualValues(t, wire.ErrAudioMemoryOverflowDrop, h.ErrorCode)
	body := readPayload(t, client, int(h.Length))
	require.Equal(t, "Drop realtime audio page 17", string(body))

	require.NoError(t, <-done)
	require.EqualValues(t, 20, s.emittedCount)
}
