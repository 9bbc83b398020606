package dbutil

import (
	"sync"

	"github.com/arkade-os/custodyd/internal/core/domain"
)

// Handlers keeps the event handlers registered per topic. It's shared by the event
// store implementations.
type Handlers struct {
	lock     sync.RWMutex
	handlers map[string][]func(events []domain.Event)
}

func NewHandlers() *Handlers {
	return &Handlers{handlers: make(map[string][]func(events []domain.Event))}
}

func (h *Handlers) Register(topic string, handler func(events []domain.Event)) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.handlers[topic] = append(h.handlers[topic], handler)
}

func (h *Handlers) Clear(topics ...string) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if len(topics) == 0 {
		h.handlers = make(map[string][]func(events []domain.Event))
		return
	}
	for _, topic := range topics {
		delete(h.handlers, topic)
	}
}

// Dispatch runs every handler of the topic in its own goroutine.
func (h *Handlers) Dispatch(topic string, events []domain.Event) {
	if len(events) == 0 {
		return
	}
	h.lock.RLock()
	defer h.lock.RUnlock()
	for _, handler := range h.handlers[topic] {
		go handler(events)
	}
}
