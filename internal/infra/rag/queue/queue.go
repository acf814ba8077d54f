// Package queue implements rag.JobQueue: a Valkey-backed queue for
// production, and an immediate in-process queue for memory-mode
// deployments and tests.
package queue

import (
	"context"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

// HandlerQueue is a JobQueue that also exposes a way to set the handler
// invoked for dequeued jobs — background ingestion in this module's case.
type HandlerQueue interface {
	rag.JobQueue
	SetHandler(handler Handler)
}

// Handler processes one dequeued job; name is the job kind
// ("ingest_document", "ingest_url"), payload its JSON-decoded body.
type Handler func(ctx context.Context, name string, payload map[string]any)

// Immediate runs the handler on a goroutine at enqueue time, no durable
// queue involved.
type Immediate struct {
	handler Handler
}

func NewImmediate(handler Handler) *Immediate {
	return &Immediate{handler: handler}
}

func (q *Immediate) SetHandler(handler Handler) {
	q.handler = handler
}

func (q *Immediate) Enqueue(ctx context.Context, name string, payload any) error {
	typed, ok := payload.(map[string]any)
	if !ok {
		typed = map[string]any{}
	}
	if q.handler == nil {
		return nil
	}
	go q.handler(ctx, name, typed)
	return nil
}

var _ rag.JobQueue = (*Immediate)(nil)
var _ HandlerQueue = (*Immediate)(nil)
