package narration

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/zhouzirui/aura/backend/internal/model/speech"
)

var (
	markdownMarkers = regexp.MustCompile("[*#`]")
	bracketedTags   = regexp.MustCompile(`\[.*?\]`)
)

// Synthesizer 把文本转换为音频。
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*speech.TTSResponse, error)
}

// Preferences 提供语音开关。
type Preferences interface {
	VoiceEnabled(ctx context.Context) (bool, error)
}

// Narrator 朗读模型回复。所有失败只记录日志。
type Narrator struct {
	synth  Synthesizer
	prefs  Preferences
	player *Player
	logger *slog.Logger
}

func NewNarrator(synth Synthesizer, prefs Preferences, player *Player, logger *slog.Logger) *Narrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Narrator{synth: synth, prefs: prefs, player: player, logger: logger}
}

// Speak 合成并播放 text。返回是否开始播放。
func (n *Narrator) Speak(ctx context.Context, sessionID, text string) bool {
	if n == nil || n.synth == nil || n.player == nil {
		return false
	}
	if n.prefs != nil {
		enabled, err := n.prefs.VoiceEnabled(ctx)
		if err != nil {
			n.logger.Warn("failed to read voice preference", "error", err)
		}
		if !enabled {
			return false
		}
	}
	if n.player.Busy() {
		return false
	}

	clean := CleanText(text)
	if clean == "" {
		return false
	}

	resp, err := n.synth.Synthesize(ctx, clean)
	if err != nil {
		n.logger.Error("narration synthesis failed", "session_id", sessionID, "error", err)
		return false
	}
	if resp == nil {
		n.logger.Error("narration synthesis returned no audio", "session_id", sessionID)
		return false
	}
	if resp.SessionID == "" {
		resp.SessionID = sessionID
	}
	if err := n.player.Play(ctx, resp); err != nil {
		if errors.Is(err, ErrBusy) {
			n.logger.Debug("narration skipped, player busy", "session_id", sessionID)
		} else {
			n.logger.Error("narration playback failed", "session_id", sessionID, "error", err)
		}
		return false
	}
	return true
}

// CleanText 去掉 markdown 标记和方括号标签。
func CleanText(text string) string {
	text = markdownMarkers.ReplaceAllString(text, "")
	text = bracketedTags.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
