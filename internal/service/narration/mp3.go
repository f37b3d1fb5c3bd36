package narration

import "time"

// 无法解析帧头时按此码率估算时长。
const fallbackMP3Bitrate = 64000

var (
	layer3Bitrates = [2][16]int{
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}, // MPEG1
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},     // MPEG2 / 2.5
	}
	mp3SampleRates = map[byte][3]int{
		3: {44100, 48000, 32000}, // MPEG1
		2: {22050, 24000, 16000}, // MPEG2
		0: {11025, 12000, 8000},  // MPEG2.5
	}
)

// mp3Duration 累加 Layer III 帧的采样数得到播放时长。
// 找不到任何帧时按 fallbackMP3Bitrate 估算。
func mp3Duration(data []byte) time.Duration {
	var total time.Duration
	frames := 0
	for i := skipID3(data); i+4 <= len(data); {
		size, d, ok := mp3Frame(data[i : i+4])
		if !ok {
			i++
			continue
		}
		total += d
		frames++
		i += size
	}
	if frames == 0 {
		return time.Duration(len(data)) * 8 * time.Second / fallbackMP3Bitrate
	}
	return total
}

// mp3Frame 解析 4 字节帧头，返回帧长度和时长。
func mp3Frame(h []byte) (int, time.Duration, bool) {
	if h[0] != 0xFF || h[1]&0xE0 != 0xE0 {
		return 0, 0, false
	}
	version := (h[1] >> 3) & 0x03
	if layer := (h[1] >> 1) & 0x03; layer != 0x01 {
		return 0, 0, false
	}
	rates, ok := mp3SampleRates[version]
	if !ok {
		return 0, 0, false
	}
	rateIndex := (h[2] >> 2) & 0x03
	if rateIndex == 3 {
		return 0, 0, false
	}
	table, samples, coefficient := 1, 576, 72
	if version == 3 {
		table, samples, coefficient = 0, 1152, 144
	}
	bitrate := layer3Bitrates[table][h[2]>>4] * 1000
	if bitrate == 0 {
		return 0, 0, false
	}
	rate := rates[rateIndex]
	padding := int(h[2]>>1) & 0x01

	size := coefficient*bitrate/rate + padding
	return size, time.Duration(samples) * time.Second / time.Duration(rate), true
}

// skipID3 返回 ID3v2 标签之后的偏移。
func skipID3(data []byte) int {
	if len(data) < 10 || string(data[:3]) != "ID3" {
		return 0
	}
	size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	size += 10
	if data[5]&0x10 != 0 {
		size += 10
	}
	if size > len(data) {
		return len(data)
	}
	return size
}
