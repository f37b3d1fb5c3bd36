package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/aura/backend/internal/config"
	speechmodel "github.com/zhouzirui/aura/backend/internal/model/speech"
)

const ttsSampleRate = 24000

var (
	ErrEmptyText     = errors.New("TTS text is empty")
	ErrNotConfigured = errors.New("speech synthesis is not configured: set SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")
	ErrEmptyAudio    = errors.New("TTS audio is empty")
)

// VolcengineSynthesizer 通过火山引擎单向流式 TTS 接口合成语音。
type VolcengineSynthesizer struct {
	cfg    config.SpeechConfig
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewVolcengineSynthesizer 创建合成器。
func NewVolcengineSynthesizer(cfg config.SpeechConfig, logger *slog.Logger) *VolcengineSynthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &VolcengineSynthesizer{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
		logger: logger,
	}
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format     string  `json:"format"`
	SampleRate int     `json:"sample_rate"`
	SpeedRatio float32 `json:"speed_ratio,omitempty"`
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

// Synthesize 合成一段 mp3 音频。
func (s *VolcengineSynthesizer) Synthesize(ctx context.Context, req speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if !s.cfg.Enabled {
		return nil, ErrNotConfigured
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	connectID := uuid.NewString()
	header := http.Header{}
	header.Set("X-Api-App-Key", s.cfg.AppID)
	header.Set("X-Api-Access-Key", s.cfg.AccessToken)
	header.Set("X-Api-Resource-Id", s.cfg.ResourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.Endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS websocket: %w", err)
	}
	defer conn.Close()
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			s.logger.Debug("tts connected", "logid", logid)
		}
	}

	// 读操作不感知 ctx，超时通过 deadline 传递。
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	if err := s.sendRequest(conn, req); err != nil {
		return nil, err
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		var f frame
		if err := f.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("failed to decode TTS frame: %w", err)
		}
		body, err := f.body()
		if err != nil {
			return nil, fmt.Errorf("failed to decompress TTS payload: %w", err)
		}

		switch f.Type {
		case frameError:
			return nil, fmt.Errorf("TTS error %d: %s", f.ErrorCode, string(body))

		case frameAudioOnlyResponse:
			audio.Write(body)

		case frameFullServerResponse:
			if f.hasEvent() && f.Event == eventSessionFailed {
				return nil, fmt.Errorf("TTS session failed: %s", string(body))
			}

			var msg ttsServerMessage
			if len(body) > 0 && json.Unmarshal(body, &msg) == nil {
				if msg.Code != 0 && msg.Code != 3000 {
					return nil, fmt.Errorf("TTS API error %d: %s", msg.Code, msg.Message)
				}
				if msg.ReqID != "" {
					reqID = msg.ReqID
				}
				if ms, err := strconv.ParseInt(msg.Addition.Duration, 10, 64); err == nil {
					duration = ms
				}
				if msg.Data != "" {
					chunk, err := base64.StdEncoding.DecodeString(msg.Data)
					if err != nil {
						return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
					}
					audio.Write(chunk)
				}
			}

			finished := (f.hasEvent() && f.Event == eventSessionFinished) || f.last() || msg.Sequence < 0
			if !finished {
				continue
			}
			if audio.Len() == 0 {
				return nil, ErrEmptyAudio
			}
			if reqID == "" {
				reqID = connectID
			}
			return &speechmodel.TTSResponse{
				SessionID: req.SessionID,
				AudioData: audio.Bytes(),
				Format:    speechmodel.FormatMP3,
				Duration:  duration,
				RequestID: reqID,
				CreatedAt: time.Now().UTC(),
			}, nil

		default:
			s.logger.Debug("unexpected tts frame", "type", f.Type)
		}
	}
}

func (s *VolcengineSynthesizer) sendRequest(conn *websocket.Conn, req speechmodel.TTSRequest) error {
	var body ttsRequest
	body.User.UID = req.SessionID
	if body.User.UID == "" {
		body.User.UID = uuid.NewString()
	}
	body.ReqParams.Speaker = strings.TrimSpace(req.Voice)
	if body.ReqParams.Speaker == "" {
		body.ReqParams.Speaker = s.cfg.Voice
	}
	body.ReqParams.Text = req.Text
	body.ReqParams.AudioParams = ttsAudioParams{Format: "mp3", SampleRate: ttsSampleRate}
	if req.Speed > 0 && req.Speed != 1 {
		body.ReqParams.AudioParams.SpeedRatio = req.Speed
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal TTS request: %w", err)
	}
	f, err := newClientRequest(payload, false)
	if err != nil {
		return err
	}
	data, err := f.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode TTS request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to send TTS request: %w", err)
	}
	return nil
}
