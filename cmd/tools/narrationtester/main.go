package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/aura/backend/internal/config"
	speechmodel "github.com/zhouzirui/aura/backend/internal/model/speech"
	"github.com/zhouzirui/aura/backend/internal/service/ai"
	"github.com/zhouzirui/aura/backend/internal/service/narration"
	"github.com/zhouzirui/aura/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	engine := flag.String("engine", "", "合成引擎: gemini 或 volcengine，默认跟随 AI_PROVIDER")
	text := flag.String("text", "", "待合成文本，会按朗读规则清理 markdown")
	outputPath := flag.String("out", "", "输出音频文件路径 (默认根据格式自动生成)")
	voice := flag.String("voice", "", "volcengine 声音 ID，默认使用 SPEECH_TTS_VOICE")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	cleaned := narration.CleanText(*text)
	if cleaned == "" {
		flag.Usage()
		log.Fatal("请通过 -text 提供待合成文本")
	}

	if *engine == "" {
		*engine = "gemini"
		if cfg.AI.Provider == config.ProviderArk {
			*engine = "volcengine"
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Printf("开始合成: engine=%s chars=%d", *engine, len([]rune(cleaned)))

	var resp *speechmodel.TTSResponse
	switch *engine {
	case "gemini":
		resp, err = synthesizeGemini(ctx, cfg, cleaned)
	case "volcengine":
		resp, err = synthesizeVolcengine(ctx, cfg, cleaned, *voice)
	default:
		log.Fatalf("未知引擎 %q，请使用 gemini 或 volcengine", *engine)
	}
	if err != nil {
		log.Fatalf("合成失败: %v", err)
	}

	clip, err := narration.Decode(resp)
	if err != nil {
		log.Fatalf("音频解码失败: %v", err)
	}

	if *outputPath == "" {
		*outputPath = fmt.Sprintf("narration-%d.%s", time.Now().Unix(), extension(clip.MIMEType))
	}
	if err := os.WriteFile(*outputPath, clip.Data, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("合成成功: 输出文件 %s, 类型=%s, 时长=%s", *outputPath, clip.MIMEType, clip.Duration)
}

func synthesizeGemini(ctx context.Context, cfg *config.Config, text string) (*speechmodel.TTSResponse, error) {
	if !cfg.AI.Gemini.Enabled() {
		return nil, ai.ErrMissingCredentials
	}
	gw, err := ai.NewGeminiGateway(ctx, cfg.AI.Gemini, nil)
	if err != nil {
		return nil, err
	}
	return gw.Synthesize(ctx, text)
}

func synthesizeVolcengine(ctx context.Context, cfg *config.Config, text, voice string) (*speechmodel.TTSResponse, error) {
	synth := speech.NewVolcengineSynthesizer(cfg.Speech, nil)
	return synth.Synthesize(ctx, speechmodel.TTSRequest{
		SessionID: fmt.Sprintf("manual-%d", time.Now().UnixNano()),
		Text:      text,
		Voice:     voice,
	})
}

func extension(mime string) string {
	switch {
	case strings.HasSuffix(mime, "wav"):
		return "wav"
	case strings.HasSuffix(mime, "mpeg"):
		return "mp3"
	default:
		return "bin"
	}
}
