package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// 火山引擎语音 WebSocket 二进制帧：
// 4 字节头 | 可选 sequence | 可选事件元数据 | (错误码) | payload 长度 | payload

const protocolVersion = 0b0001

type frameType uint8

const (
	frameFullClientRequest  frameType = 0b0001
	frameFullServerResponse frameType = 0b1001
	frameAudioOnlyResponse  frameType = 0b1011
	frameError              frameType = 0b1111
)

type frameFlags uint8

const (
	flagNone        frameFlags = 0b0000
	flagPositiveSeq frameFlags = 0b0001
	flagLastNoSeq   frameFlags = 0b0010
	flagNegativeSeq frameFlags = 0b0011
	flagEvent       frameFlags = 0b0100

	seqMask = 0b0011
)

const (
	serializationJSON uint8 = 0b0001

	compressionNone uint8 = 0b0000
	compressionGzip uint8 = 0b0001
)

type event int32

const (
	eventStartConnection    event = 1
	eventFinishConnection   event = 2
	eventConnectionStarted  event = 50
	eventConnectionFailed   event = 51
	eventConnectionFinished event = 52
	eventSessionStarted     event = 150
	eventSessionFinished    event = 152
	eventSessionFailed      event = 153
)

var errShortFrame = errors.New("speech frame truncated")

// frame 是一条协议消息。
type frame struct {
	Type          frameType
	Flags         frameFlags
	Serialization uint8
	Compression   uint8
	Sequence      int32
	Event         event
	SessionID     string
	ConnectID     string
	ErrorCode     uint32
	Payload       []byte
}

// newClientRequest 创建携带 JSON 参数的完整客户端请求。
func newClientRequest(payload []byte, gzipped bool) (*frame, error) {
	f := &frame{
		Type:          frameFullClientRequest,
		Flags:         flagNone,
		Serialization: serializationJSON,
		Compression:   compressionNone,
		Payload:       payload,
	}
	if gzipped {
		compressed, err := gzipBytes(payload)
		if err != nil {
			return nil, err
		}
		f.Compression = compressionGzip
		f.Payload = compressed
	}
	return f, nil
}

func (f *frame) hasSequence() bool {
	s := f.Flags & seqMask
	return s == flagPositiveSeq || s == flagNegativeSeq
}

func (f *frame) hasEvent() bool {
	return f.Flags&flagEvent == flagEvent
}

// last 表示服务端的最后一包。
func (f *frame) last() bool {
	s := f.Flags & seqMask
	return s == flagLastNoSeq || s == flagNegativeSeq
}

// body 返回解压后的 payload。
func (f *frame) body() ([]byte, error) {
	switch f.Compression {
	case compressionNone:
		return f.Payload, nil
	case compressionGzip:
		return gunzipBytes(f.Payload)
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", f.Compression)
	}
}

// MarshalBinary 编码帧。
func (f *frame) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write([]byte{
		protocolVersion<<4 | 0b0001,
		uint8(f.Type)<<4 | uint8(f.Flags),
		f.Serialization<<4 | f.Compression,
		0x00,
	})

	if f.hasSequence() {
		_ = binary.Write(&buf, binary.BigEndian, f.Sequence)
	}
	if f.hasEvent() {
		_ = binary.Write(&buf, binary.BigEndian, int32(f.Event))
		if !f.Event.connectionScoped() {
			writeString(&buf, f.SessionID)
		}
		if f.Event.carriesConnectID() {
			writeString(&buf, f.ConnectID)
		}
	}
	if f.Type == frameError {
		_ = binary.Write(&buf, binary.BigEndian, f.ErrorCode)
	}

	_ = binary.Write(&buf, binary.BigEndian, uint32(len(f.Payload)))
	buf.Write(f.Payload)
	return buf.Bytes(), nil
}

// UnmarshalBinary 解码帧。
func (f *frame) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return errShortFrame
	}
	if version := data[0] >> 4; version != protocolVersion {
		return fmt.Errorf("unsupported protocol version: %d", version)
	}
	headerSize := int(data[0]&0x0F) * 4
	if headerSize < 4 || len(data) < headerSize {
		return errShortFrame
	}

	*f = frame{
		Type:          frameType(data[1] >> 4),
		Flags:         frameFlags(data[1] & 0x0F),
		Serialization: data[2] >> 4,
		Compression:   data[2] & 0x0F,
	}
	r := bytes.NewReader(data[headerSize:])

	if f.hasSequence() {
		if err := binary.Read(r, binary.BigEndian, &f.Sequence); err != nil {
			return fmt.Errorf("failed to read sequence: %w", err)
		}
	}
	if f.hasEvent() {
		var raw int32
		if err := binary.Read(r, binary.BigEndian, &raw); err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		f.Event = event(raw)
		if !f.Event.connectionScoped() {
			s, err := readString(r)
			if err != nil {
				return fmt.Errorf("failed to read session id: %w", err)
			}
			f.SessionID = s
		}
		if f.Event.carriesConnectID() {
			s, err := readString(r)
			if err != nil {
				return fmt.Errorf("failed to read connect id: %w", err)
			}
			f.ConnectID = s
		}
	}
	if f.Type == frameError {
		if err := binary.Read(r, binary.BigEndian, &f.ErrorCode); err != nil {
			return fmt.Errorf("failed to read error code: %w", err)
		}
	}

	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return fmt.Errorf("failed to read payload size: %w", err)
	}
	if size > 0 {
		f.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return fmt.Errorf("failed to read payload (expected %d bytes): %w", size, err)
		}
	}
	return nil
}

func (e event) connectionScoped() bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	default:
		return false
	}
}

func (e event) carriesConnectID() bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	default:
		return false
	}
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r io.Reader) (string, error) {
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return "", err
	}
	if size == 0 {
		return "", nil
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}
