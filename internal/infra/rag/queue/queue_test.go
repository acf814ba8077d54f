package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImmediate_EnqueueInvokesHandlerAsynchronously(t *testing.T) {
	var mu sync.Mutex
	var gotName string
	var gotPayload map[string]any
	done := make(chan struct{})

	q := NewImmediate(func(ctx context.Context, name string, payload map[string]any) {
		mu.Lock()
		gotName = name
		gotPayload = payload
		mu.Unlock()
		close(done)
	})

	err := q.Enqueue(context.Background(), "ingest_document", map[string]any{"file_id": "abc"})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked in time")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "ingest_document", gotName)
	assert.Equal(t, "abc", gotPayload["file_id"])
}

func TestImmediate_EnqueueWithNoHandlerIsNoop(t *testing.T) {
	q := NewImmediate(nil)
	err := q.Enqueue(context.Background(), "ingest_document", map[string]any{})
	assert.NoError(t, err)
}

func TestImmediate_EnqueueWithNonMapPayloadPassesEmptyMap(t *testing.T) {
	done := make(chan map[string]any, 1)
	q := NewImmediate(func(ctx context.Context, name string, payload map[string]any) {
		done <- payload
	})

	err := q.Enqueue(context.Background(), "ingest_url", "not-a-map")
	require.NoError(t, err)

	select {
	case payload := <-done:
		assert.Empty(t, payload)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked in time")
	}
}

func TestImmediate_SetHandlerReplacesHandler(t *testing.T) {
	q := NewImmediate(nil)
	done := make(chan struct{})
	q.SetHandler(func(ctx context.Context, name string, payload map[string]any) {
		close(done)
	})

	require.NoError(t, q.Enqueue(context.Background(), "x", map[string]any{}))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("replaced handler was not invoked")
	}
}
