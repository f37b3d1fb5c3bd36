package speech

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"` // 音色，空值使用服务端默认
	Speed     float32 `json:"speed"` // 语速倍率 0.5-2.0，0 表示默认
}
