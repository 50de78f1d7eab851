package outbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/tripops-backend/pkg/enums"
)

// Handler performs the follow-up work for an event. On success the handler's
// own batch must have marked the event completed (see CompleteWrite).
type Handler func(ctx context.Context, event Event) error

type HandlerRegistry struct {
	mtx      sync.RWMutex
	handlers map[enums.OutboxEventType]Handler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[enums.OutboxEventType]Handler)}
}

func (r *HandlerRegistry) Register(eventType enums.OutboxEventType, handler Handler) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.handlers[eventType] = handler
}

func (r *HandlerRegistry) Resolve(eventType enums.OutboxEventType) (Handler, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if handler, ok := r.handlers[eventType]; ok && handler != nil {
		return handler, nil
	}
	return nil, fmt.Errorf("handler not registered for %s", eventType)
}
