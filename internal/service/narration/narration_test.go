package narration

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhouzirui/aura/backend/internal/model/speech"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingOutput struct {
	mu    sync.Mutex
	clips []Clip
	err   error
}

func (o *recordingOutput) Deliver(_ context.Context, clip Clip) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.clips = append(o.clips, clip)
	return nil
}

func (o *recordingOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.clips)
}

func TestDecodeWrapsPCMInWAV(t *testing.T) {
	pcm := make([]byte, 48000) // 1s of 24kHz mono
	clip, err := Decode(&speech.TTSResponse{AudioData: pcm, Format: speech.FormatPCM16, SampleRate: 24000, Channels: 1})
	require.NoError(t, err)

	assert.Equal(t, "audio/wav", clip.MIMEType)
	assert.Equal(t, time.Second, clip.Duration)
	require.Len(t, clip.Data, 44+len(pcm))
	assert.Equal(t, "RIFF", string(clip.Data[0:4]))
	assert.Equal(t, "WAVE", string(clip.Data[8:12]))
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(clip.Data[24:28]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(clip.Data[40:44]))
}

func TestDecodeFailures(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyAudio)
	_, err = Decode(&speech.TTSResponse{Format: speech.FormatMP3})
	assert.ErrorIs(t, err, ErrEmptyAudio)
	_, err = Decode(&speech.TTSResponse{AudioData: []byte{1, 2, 3}, Format: speech.FormatPCM16})
	assert.ErrorContains(t, err, "odd PCM16 length")
	_, err = Decode(&speech.TTSResponse{AudioData: []byte{1}, Format: "ogg"})
	assert.ErrorContains(t, err, "unsupported audio format")
}

func TestPlayerSingleSlot(t *testing.T) {
	out := &recordingOutput{}
	player := NewPlayer(out, nil)
	defer player.Close()

	clip := &speech.TTSResponse{AudioData: []byte{0xFF}, Format: speech.FormatMP3, Duration: 60_000}
	require.NoError(t, player.Play(context.Background(), clip))
	assert.True(t, player.Busy())
	assert.ErrorIs(t, player.Play(context.Background(), clip), ErrBusy)
	assert.Equal(t, 1, out.count())
}

// mpeg2Frames 生成 n 个 MPEG2 Layer III 帧：64kbps、24kHz，每帧 192 字节、24ms。
func mpeg2Frames(n int) []byte {
	frame := make([]byte, 192)
	copy(frame, []byte{0xFF, 0xF3, 0x84, 0xC4})
	var out []byte
	for i := 0; i < n; i++ {
		out = append(out, frame...)
	}
	return out
}

func TestDecodeEstimatesMP3Duration(t *testing.T) {
	clip, err := Decode(&speech.TTSResponse{AudioData: mpeg2Frames(50), Format: speech.FormatMP3})
	require.NoError(t, err)
	assert.Equal(t, 1200*time.Millisecond, clip.Duration)

	tagged := append([]byte{'I', 'D', '3', 4, 0, 0, 0, 0, 0, 5, 1, 2, 3, 4, 5}, mpeg2Frames(10)...)
	clip, err = Decode(&speech.TTSResponse{AudioData: tagged, Format: speech.FormatMP3})
	require.NoError(t, err)
	assert.Equal(t, 240*time.Millisecond, clip.Duration)

	// 没有可识别的帧头时按码率估算。
	clip, err = Decode(&speech.TTSResponse{AudioData: make([]byte, 48_000), Format: speech.FormatMP3})
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, clip.Duration)

	clip, err = Decode(&speech.TTSResponse{AudioData: mpeg2Frames(5), Format: speech.FormatMP3, Duration: 900})
	require.NoError(t, err)
	assert.Equal(t, 900*time.Millisecond, clip.Duration)
}

func TestPlayerHoldsSlotForMP3WithoutDuration(t *testing.T) {
	out := &recordingOutput{}
	player := NewPlayer(out, nil)
	defer player.Close()

	clip := &speech.TTSResponse{AudioData: make([]byte, 48_000), Format: speech.FormatMP3}
	require.NoError(t, player.Play(context.Background(), clip))
	assert.True(t, player.Busy())
	assert.ErrorIs(t, player.Play(context.Background(), clip), ErrBusy)
	assert.Equal(t, 1, out.count())
}

func TestPlayerReleasesAfterDuration(t *testing.T) {
	player := NewPlayer(&recordingOutput{}, nil)
	defer player.Close()

	require.NoError(t, player.Play(context.Background(), &speech.TTSResponse{AudioData: []byte{0xFF}, Format: speech.FormatMP3, Duration: 10}))
	player.Wait()
	assert.False(t, player.Busy())
}

func TestPlayerFailuresClearBusy(t *testing.T) {
	out := &recordingOutput{}
	player := NewPlayer(out, nil)
	defer player.Close()

	assert.Error(t, player.Play(context.Background(), &speech.TTSResponse{Format: speech.FormatMP3}))
	assert.False(t, player.Busy())

	out.err = errors.New("socket closed")
	assert.ErrorContains(t, player.Play(context.Background(), &speech.TTSResponse{AudioData: []byte{1}, Format: speech.FormatMP3}), "socket closed")
	assert.False(t, player.Busy())
}

type fakeSynth struct {
	mu   sync.Mutex
	got  []string
	err  error
	resp *speech.TTSResponse
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) (*speech.TTSResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, text)
	if f.err != nil {
		return nil, f.err
	}
	if f.resp == nil {
		return nil, nil
	}
	resp := *f.resp
	return &resp, nil
}

type staticPrefs bool

func (p staticPrefs) VoiceEnabled(context.Context) (bool, error) { return bool(p), nil }

func TestNarratorSpeak(t *testing.T) {
	out := &recordingOutput{}
	player := NewPlayer(out, nil)
	defer player.Close()
	synth := &fakeSynth{resp: &speech.TTSResponse{AudioData: []byte{0xFF}, Format: speech.FormatMP3, Duration: 60_000}}
	narrator := NewNarrator(synth, staticPrefs(true), player, nil)

	assert.True(t, narrator.Speak(context.Background(), "session_1", "**Breathe.** [pause] Let's #start with `one` step."))
	assert.Equal(t, []string{"Breathe.  Let's start with one step."}, synth.got)
	require.Equal(t, 1, out.count())
	assert.Equal(t, "session_1", out.clips[0].SessionID)

	// 播放中跳过，不调用合成。
	assert.False(t, narrator.Speak(context.Background(), "session_1", "again"))
	assert.Len(t, synth.got, 1)
}

func TestNarratorSkips(t *testing.T) {
	player := NewPlayer(&recordingOutput{}, nil)
	defer player.Close()
	synth := &fakeSynth{resp: &speech.TTSResponse{AudioData: []byte{0xFF}, Format: speech.FormatMP3}}

	assert.False(t, NewNarrator(synth, staticPrefs(false), player, nil).Speak(context.Background(), "s", "hello"))
	assert.False(t, NewNarrator(synth, staticPrefs(true), player, nil).Speak(context.Background(), "s", "** [tag] ##"))
	assert.Empty(t, synth.got)

	synth.resp = nil
	assert.False(t, NewNarrator(synth, staticPrefs(true), player, nil).Speak(context.Background(), "s", "hello"))
	assert.False(t, player.Busy())

	synth.err = errors.New("quota")
	assert.False(t, NewNarrator(synth, staticPrefs(true), player, nil).Speak(context.Background(), "s", "hello"))
	assert.False(t, player.Busy())
}
