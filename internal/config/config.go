package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/aura/backend/internal/storage"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Speech  SpeechConfig
	Storage StorageConfig
	Session SessionConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Speech:  speech,
		Storage: store,
		Session: session,
		Log:     logCfg,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := getEnvOrDefault("PORT", "8080")

	if strings.Contains(port, ":") {
		// 允许 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}
	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}
	return ServerConfig{Addr: ":" + port}, nil
}

// Provider 选择模型后端。
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderArk    Provider = "ark"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider Provider
	Gemini   GeminiConfig
	Ark      ArkConfig
}

// GeminiConfig 描述 Gemini 接入参数。
type GeminiConfig struct {
	APIKey   string
	Model    string
	TTSModel string
	Voice    string
}

// Enabled 表示是否提供了 Gemini 密钥。
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// ArkConfig 描述火山方舟接入参数。
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY and Model, or an AK/SK pair")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: toFloat32(c.Temperature),
		TopP:        toFloat32(c.TopP),
	}
	return ark.NewChatModel(ctx, cfg)
}

func toFloat32(v *float64) *float32 {
	if v == nil {
		return nil
	}
	f := float32(*v)
	return &f
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	geminiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if geminiKey == "" {
		geminiKey = strings.TrimSpace(os.Getenv("API_KEY"))
	}

	cfg := AIConfig{
		Gemini: GeminiConfig{
			APIKey:   geminiKey,
			Model:    getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
			TTSModel: getEnvOrDefault("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
			Voice:    getEnvOrDefault("GEMINI_VOICE", "Kore"),
		},
		Ark: ArkConfig{
			APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:       strings.TrimSpace(os.Getenv("Model")),
			BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
		},
	}

	switch provider := Provider(strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER")))); provider {
	case ProviderGemini, ProviderArk:
		cfg.Provider = provider
	case "":
		// 未显式指定时按已配置的凭证推断，都没有时保持 gemini 并在调用时报缺失凭证。
		cfg.Provider = ProviderGemini
		if !cfg.Gemini.Enabled() && cfg.Ark.Enabled() {
			cfg.Provider = ProviderArk
		}
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q: want gemini or ark", provider)
	}

	return cfg, nil
}

// SpeechConfig 描述火山引擎语音合成配置。
type SpeechConfig struct {
	AppID       string
	AccessToken string
	ResourceID  string
	Endpoint    string
	Voice       string
	Timeout     time.Duration
	Enabled     bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil && *timeout > 0 {
		timeoutSeconds = *timeout
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))
	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if accessToken == "" {
		accessToken = strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	}

	return SpeechConfig{
		AppID:       appID,
		AccessToken: accessToken,
		ResourceID:  getEnvOrDefault("SPEECH_RESOURCE_ID", "seed-tts-1.0"),
		Endpoint:    getEnvOrDefault("SPEECH_TTS_ENDPOINT", "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"),
		Voice:       getEnvOrDefault("SPEECH_TTS_VOICE", "zh_female_cancan_mars_bigtts"),
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
		Enabled:     appID != "" && accessToken != "",
	}, nil
}

// StorageConfig 描述会话持久化驱动。
type StorageConfig struct {
	Driver  storage.Driver
	Options storage.Options
}

func loadStorageConfig() (StorageConfig, error) {
	driver := storage.Driver(strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", string(storage.DriverFile))))
	switch driver {
	case storage.DriverMemory, storage.DriverFile, storage.DriverRedis:
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_DRIVER value %q", driver)
	}

	db, err := parseOptionalIntEnv("REDIS_DB")
	if err != nil {
		return StorageConfig{}, err
	}
	redisDB := 0
	if db != nil {
		redisDB = *db
	}

	return StorageConfig{
		Driver: driver,
		Options: storage.Options{
			Dir:           getEnvOrDefault("STORAGE_DIR", "data"),
			RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       redisDB,
			RedisPrefix:   getEnvOrDefault("REDIS_PREFIX", "aura:"),
		},
	}, nil
}

// SessionConfig 描述会话存储上限。
type SessionConfig struct {
	MaxSessions int
}

func loadSessionConfig() (SessionConfig, error) {
	limit, err := parseOptionalIntEnv("AURA_MAX_SESSIONS")
	if err != nil {
		return SessionConfig{}, err
	}
	maxSessions := 50
	if limit != nil {
		// 0 或负数表示不限制。
		maxSessions = *limit
	}
	return SessionConfig{MaxSessions: maxSessions}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	File  string
	Level slog.Level
}

func loadLogConfig() (LogConfig, error) {
	level := slog.LevelInfo
	if raw := strings.TrimSpace(os.Getenv("AURA_LOG_LEVEL")); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return LogConfig{}, fmt.Errorf("invalid AURA_LOG_LEVEL value %q: %w", raw, err)
		}
	}
	return LogConfig{
		File:  strings.TrimSpace(os.Getenv("AURA_LOG_FILE")),
		Level: level,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
