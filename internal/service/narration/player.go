package narration

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhouzirui/aura/backend/internal/model/speech"
)

var (
	// ErrBusy 表示已有片段正在解码或播放。
	ErrBusy       = errors.New("narration already playing")
	ErrEmptyAudio = errors.New("empty audio")
)

// Clip 是可直接播放的音频。
type Clip struct {
	SessionID string
	Data      []byte
	MIMEType  string
	Duration  time.Duration
}

// Output 接收解码后的音频。
type Output interface {
	Deliver(ctx context.Context, clip Clip) error
}

// LogOutput 在没有客户端时只记录日志。
type LogOutput struct {
	Logger *slog.Logger
}

func (o LogOutput) Deliver(_ context.Context, clip Clip) error {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("narration clip ready", "session_id", clip.SessionID, "bytes", len(clip.Data), "mime", clip.MIMEType, "duration", clip.Duration)
	return nil
}

// Player 同一时间只播放一个片段。
type Player struct {
	out    Output
	logger *slog.Logger
	busy   atomic.Bool
	wg     sync.WaitGroup
	stop   chan struct{}
	once   sync.Once
}

func NewPlayer(out Output, logger *slog.Logger) *Player {
	if out == nil {
		out = LogOutput{Logger: logger}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{out: out, logger: logger, stop: make(chan struct{})}
}

// Busy 报告是否有片段在播放。
func (p *Player) Busy() bool {
	return p.busy.Load()
}

// Play 解码并投递 resp，占位直到片段时长结束。
func (p *Player) Play(ctx context.Context, resp *speech.TTSResponse) error {
	if !p.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}

	clip, err := Decode(resp)
	if err != nil {
		p.busy.Store(false)
		return err
	}
	if err := p.out.Deliver(ctx, clip); err != nil {
		p.busy.Store(false)
		return fmt.Errorf("failed to deliver narration: %w", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)
		if clip.Duration <= 0 {
			return
		}
		timer := time.NewTimer(clip.Duration)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-p.stop:
		}
	}()
	return nil
}

// Wait 等待当前片段结束。
func (p *Player) Wait() {
	p.wg.Wait()
}

// Close 打断正在播放的片段。
func (p *Player) Close() {
	p.once.Do(func() { close(p.stop) })
	p.wg.Wait()
}

// Decode 把合成结果转换为可播放的片段。PCM16 会被封装为 WAV。
func Decode(resp *speech.TTSResponse) (Clip, error) {
	if resp == nil || len(resp.AudioData) == 0 {
		return Clip{}, ErrEmptyAudio
	}
	clip := Clip{
		SessionID: resp.SessionID,
		Duration:  time.Duration(resp.Duration) * time.Millisecond,
	}

	switch resp.Format {
	case speech.FormatPCM16:
		if len(resp.AudioData)%2 != 0 {
			return Clip{}, fmt.Errorf("odd PCM16 length: %d bytes", len(resp.AudioData))
		}
		rate, channels := resp.SampleRate, resp.Channels
		if rate <= 0 {
			rate = 24000
		}
		if channels <= 0 {
			channels = 1
		}
		clip.Data = wav(resp.AudioData, rate, channels)
		clip.MIMEType = "audio/wav"
		if clip.Duration <= 0 {
			frames := len(resp.AudioData) / (2 * channels)
			clip.Duration = time.Duration(frames) * time.Second / time.Duration(rate)
		}
	case speech.FormatMP3:
		clip.Data = resp.AudioData
		clip.MIMEType = "audio/mpeg"
		if clip.Duration <= 0 {
			clip.Duration = mp3Duration(resp.AudioData)
		}
	case speech.FormatWAV:
		clip.Data = resp.AudioData
		clip.MIMEType = "audio/wav"
	default:
		return Clip{}, fmt.Errorf("unsupported audio format: %q", resp.Format)
	}
	return clip, nil
}

// wav 写 44 字节 RIFF 头。
func wav(pcm []byte, rate, channels int) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
