// Package router implements the LLM Router: an ordered provider chain with
// per-provider circuit breakers, shared between streaming and non-streaming
// callers, backed by OpenAI-compatible HTTP clients.
package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
	"github.com/yanqian/ai-helloworld/internal/infra/llm/openaicompat"
)

const (
	failureThreshold = 3
	cooldown         = 60 * time.Second
)

// circuitBreaker is the per-provider state machine from §4.6 / §5: a
// consecutive-failure counter and a last-failure timestamp. Three
// consecutive failures opens it; after the cooldown, exactly one probe
// attempt is allowed (half-open); any success closes it.
type circuitBreaker struct {
	mu                  sync.Mutex
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    bool
}

// allow reports whether a call may proceed, and whether it counts as the
// single half-open probe.
func (b *circuitBreaker) allow() (ok bool, isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consecutiveFailures < failureThreshold {
		return true, false
	}
	if time.Since(b.openedAt) < cooldown {
		return false, false
	}
	if b.halfOpenInFlight {
		return false, false
	}
	b.halfOpenInFlight = true
	return true, true
}

// peek reports whether a call would currently be allowed without consuming
// the single half-open probe slot. Safe for status checks that must not
// affect which goroutine gets the next probe attempt.
func (b *circuitBreaker) peek() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consecutiveFailures < failureThreshold {
		return true
	}
	if time.Since(b.openedAt) < cooldown {
		return false
	}
	return !b.halfOpenInFlight
}

func (b *circuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.halfOpenInFlight = false
}

func (b *circuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	if b.consecutiveFailures >= failureThreshold {
		b.openedAt = time.Now()
	}
	b.halfOpenInFlight = false
}

// UsageRecorder persists one append-only usage row per successful call;
// failures here are swallowed (never fail a user request), per §7.
type UsageRecorder interface {
	Append(ctx context.Context, u rag.UsageRecord) error
}

type providerEntry struct {
	client  *openaicompat.Client
	breaker *circuitBreaker
}

// Router is the ordered [groq, cerebras, openrouter] provider chain.
type Router struct {
	providers []*providerEntry
	usage     UsageRecorder
	logger    *slog.Logger
}

// New builds a router from already-constructed provider clients, in
// priority order. A nil client at a given slot means that provider's
// credential was not configured and it is skipped entirely.
func New(clients []*openaicompat.Client, usage UsageRecorder, logger *slog.Logger) *Router {
	r := &Router{usage: usage, logger: logger}
	for _, c := range clients {
		if c == nil {
			continue
		}
		r.providers = append(r.providers, &providerEntry{client: c, breaker: &circuitBreaker{}})
	}
	return r
}

var ErrAllProvidersUnavailable = errors.New("llm: temporarily unavailable, all providers exhausted")

// ActiveProvider returns the label of the first provider currently eligible
// to serve a request (not a guarantee it will — concurrent requests and
// failures can change this between calls).
func (r *Router) ActiveProvider() string {
	for _, p := range r.providers {
		if p.breaker.peek() {
			return p.client.Label
		}
	}
	return "unavailable"
}

// Generate implements the non-streaming half of the contract.
func (r *Router) Generate(ctx context.Context, prompt, system string, temperature float64, preferred string, info *rag.ProviderInfo) (string, error) {
	messages := buildMessages(prompt, system)

	for _, p := range r.ordered(preferred) {
		ok, _ := p.breaker.allow()
		if !ok {
			continue
		}
		resp, err := p.client.CreateChatCompletion(ctx, openaicompat.ChatCompletionRequest{
			Messages:    messages,
			Temperature: float32(temperature),
		})
		if err != nil {
			p.breaker.recordFailure()
			if r.logger != nil {
				r.logger.Warn("llm provider call failed, trying next", "provider", p.client.Label, "error", err)
			}
			continue
		}
		p.breaker.recordSuccess()
		text := ""
		if len(resp.Choices) > 0 {
			text = resp.Choices[0].Message.Content
		}
		if info != nil {
			info.Name = p.client.Label
		}
		r.recordUsage(ctx, p.client.Label, p.client.Model, resp.Usage, prompt+system, text)
		return text, nil
	}
	return "", ErrAllProvidersUnavailable
}

// ordered returns the provider chain with the preferred label (if it names
// a configured provider) moved to the front; the rest keep their fixed
// relative order so failover beyond the primary is unaffected.
func (r *Router) ordered(preferred string) []*providerEntry {
	if preferred == "" {
		return r.providers
	}
	out := make([]*providerEntry, 0, len(r.providers))
	var head *providerEntry
	for _, p := range r.providers {
		if p.client.Label == preferred {
			head = p
			continue
		}
		out = append(out, p)
	}
	if head == nil {
		return r.providers
	}
	return append([]*providerEntry{head}, out...)
}

// GenerateStream implements the streaming half. It spawns a goroutine that
// pulls SSE chunks off the upstream HTTP response and forwards them as
// StreamToken values on a bounded channel; cancellation closes the channel
// when ctx is done, and the goroutine observes that on its next blocking
// read and aborts.
func (r *Router) GenerateStream(ctx context.Context, prompt, system string, temperature float64, preferred string, info *rag.ProviderInfo) (<-chan rag.StreamToken, error) {
	messages := buildMessages(prompt, system)

	for _, p := range r.ordered(preferred) {
		ok, _ := p.breaker.allow()
		if !ok {
			continue
		}
		stream, err := p.client.CreateChatCompletionStream(ctx, openaicompat.ChatCompletionRequest{
			Messages:    messages,
			Temperature: float32(temperature),
		})
		if err != nil {
			p.breaker.recordFailure()
			if r.logger != nil {
				r.logger.Warn("llm provider stream failed, trying next", "provider", p.client.Label, "error", err)
			}
			continue
		}
		if info != nil {
			info.Name = p.client.Label
		}

		out := make(chan rag.StreamToken, 16)
		go r.pumpStream(ctx, p, stream, prompt+system, out)
		return out, nil
	}
	return nil, ErrAllProvidersUnavailable
}

func (r *Router) pumpStream(ctx context.Context, p *providerEntry, stream openaicompat.Stream, inputText string, out chan<- rag.StreamToken) {
	defer close(out)
	defer stream.Close()

	var completion string
	var usage openaicompat.Usage
	sawUsage := false
	succeeded := false

	for {
		select {
		case <-ctx.Done():
			p.breaker.recordFailure()
			return
		default:
		}

		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// io.EOF terminates the stream cleanly (the [DONE] sentinel).
			if errors.Is(err, io.EOF) {
				succeeded = true
				break
			}
			p.breaker.recordFailure()
			select {
			case out <- rag.StreamToken{Err: err}:
			case <-ctx.Done():
			}
			return
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
			sawUsage = true
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		completion += delta
		select {
		case out <- rag.StreamToken{Text: delta}:
		case <-ctx.Done():
			p.breaker.recordFailure()
			return
		}
	}

	if succeeded {
		p.breaker.recordSuccess()
		if !sawUsage {
			usage = openaicompat.Usage{
				PromptTokens:     len(inputText) / 4,
				CompletionTokens: len(completion) / 4,
			}
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
		r.recordUsage(context.Background(), p.client.Label, p.client.Model, usage, inputText, completion)
	}
}

func (r *Router) recordUsage(ctx context.Context, provider, model string, usage openaicompat.Usage, input, output string) {
	if r.usage == nil {
		return
	}
	prompt := usage.PromptTokens
	completion := usage.CompletionTokens
	total := usage.TotalTokens
	if total == 0 {
		prompt = len(input) / 4
		completion = len(output) / 4
		total = prompt + completion
	}
	record := rag.UsageRecord{
		Timestamp:        time.Now(),
		Provider:         provider,
		Model:            model,
		CallType:         rag.CallTypeChat,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	}
	// Usage-logging failure is swallowed (debug-level only): it must never
	// fail a user request.
	if err := r.usage.Append(ctx, record); err != nil && r.logger != nil {
		r.logger.Debug("usage logging failed", "error", err)
	}
}

func buildMessages(prompt, system string) []openaicompat.Message {
	var messages []openaicompat.Message
	if system != "" {
		messages = append(messages, openaicompat.Message{Role: "system", Content: system})
	}
	messages = append(messages, openaicompat.Message{Role: "user", Content: prompt})
	return messages
}

var _ rag.LLMRouter = (*Router)(nil)
