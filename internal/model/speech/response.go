package speech

import "time"

// Format 描述音频编码。
type Format string

const (
	// FormatPCM16 是无头的 16 位小端 PCM。
	FormatPCM16 Format = "pcm16"
	FormatMP3   Format = "mp3"
	FormatWAV   Format = "wav"
)

// TTSResponse 语音合成响应
type TTSResponse struct {
	SessionID  string    `json:"sessionId"`
	AudioData  []byte    `json:"-"`
	Format     Format    `json:"format"`
	SampleRate int       `json:"sampleRate,omitempty"` // 仅 PCM 使用
	Channels   int       `json:"channels,omitempty"`   // 仅 PCM 使用
	Duration   int64     `json:"duration"`             // milliseconds
	RequestID  string    `json:"requestId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
