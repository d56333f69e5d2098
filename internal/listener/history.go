package listener

import (
	"sync"

	"github.com/gammazero/deque"
)

// History 最近的事件，超出容量时淘汰最旧的
type History struct {
	mu       sync.RWMutex
	events   deque.Deque[*Event]
	capacity int
}

// NewHistory 创建历史记录
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 256
	}
	return &History{capacity: capacity}
}

// HandleEvent 实现 Sink
func (h *History) HandleEvent(ev *Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.events.Len() >= h.capacity {
		h.events.PopFront()
	}
	h.events.PushBack(ev)
}

// Recent 最近的 n 条，按时间正序；n<=0 返回全部
func (h *History) Recent(n int) []*Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := h.events.Len()
	if n <= 0 || n > total {
		n = total
	}
	out := make([]*Event, 0, n)
	for i := total - n; i < total; i++ {
		out = append(out, h.events.At(i))
	}
	return out
}

// Len 当前条数
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.events.Len()
}
