package bridge

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// 帧格式：4字节大端长度 + msgpack消息体

const maxFrameSize = 64 << 20

const (
	EndpointStart           = "start"
	EndpointStep            = "step"
	EndpointTime            = "time"
	EndpointMinExpected     = "min_expected"
	EndpointProgram         = "program"
	EndpointControlledLinks = "controlled_links"
	EndpointGetPhase        = "get_phase"
	EndpointSetPhase        = "set_phase"
	EndpointHalting         = "halting"
	EndpointStop            = "stop"
)

// 应答错误码
const (
	CodeUnknownID    = "unknown_id"    // 进口道不存在（可能已被移除）
	CodeUnknownTLS   = "unknown_tls"   // 信号灯不存在
	CodeInvalidPhase = "invalid_phase" // 相位越界
	CodeEnded        = "ended"         // 仿真已结束
)

// Request 请求
type Request struct {
	Endpoint string `msgpack:"endpoint"`
	Params   any    `msgpack:"params,omitempty"`
}

// Response 应答，Body按端点解码
type Response struct {
	OK    bool               `msgpack:"ok"`
	Error string             `msgpack:"error,omitempty"`
	Code  string             `msgpack:"code,omitempty"`
	Body  msgpack.RawMessage `msgpack:"body,omitempty"`
}

type startParams struct {
	Config     string   `msgpack:"config"`
	Output     string   `msgpack:"output"`
	StepLength float64  `msgpack:"step_length"`
	GUI        bool     `msgpack:"gui"`
	Args       []string `msgpack:"args,omitempty"`
}

type tlsParams struct {
	TLS string `msgpack:"tls"`
}

type setPhaseParams struct {
	TLS   string `msgpack:"tls"`
	Index int32  `msgpack:"index"`
}

type haltingParams struct {
	Kind string `msgpack:"kind"`
	ID   string `msgpack:"id"`
}

type stepBody struct {
	Ended bool `msgpack:"ended"`
}

type phaseBody struct {
	State    string  `msgpack:"state"`
	Duration float64 `msgpack:"duration"`
}

type linkBody struct {
	In  string `msgpack:"in"`
	Out string `msgpack:"out"`
	Via string `msgpack:"via"`
}

// WriteFrame 写入一帧
func WriteFrame(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadFrame 读取一帧并解码到v
func ReadFrame(r io.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(hdr[:])
	if length > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit %d", length, maxFrameSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	return msgpack.Unmarshal(payload, v)
}
