package listener

import (
	"encoding/hex"
	"time"
)

// 数据方向
const (
	DirectionReceive = "RECEIVE"
	DirectionSend    = "SEND"
)

// Event 一次轮询（或一行指令）观察到的数据
type Event struct {
	Time        time.Time `json:"time"`
	Port        string    `json:"port"`
	Direction   string    `json:"direction"`
	Text        string    `json:"text"`
	Raw         []byte    `json:"-"`
	Marker      bool      `json:"marker"`
	Instruction string    `json:"instruction,omitempty"` // 指令的十六进制表示
	Error       string    `json:"error,omitempty"`
}

// Hex 原始数据的十六进制表示
func (e *Event) Hex() string {
	return hex.EncodeToString(e.Raw)
}

// Sink 事件接收方，必须是非阻塞的
type Sink interface {
	HandleEvent(ev *Event)
}

// SinkFunc 函数适配器
type SinkFunc func(ev *Event)

// HandleEvent 实现 Sink
func (f SinkFunc) HandleEvent(ev *Event) {
	f(ev)
}

// Sinks 多个接收方
type Sinks []Sink

// HandleEvent 依次分发，nil 接收方跳过
func (s Sinks) HandleEvent(ev *Event) {
	for _, sink := range s {
		if sink != nil {
			sink.HandleEvent(ev)
		}
	}
}
