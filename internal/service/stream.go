package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/shopmind-ai/shopmind/internal/domain"
	"github.com/shopmind-ai/shopmind/internal/telemetry"
)

// TokenStream yields answer fragments as the model produces them. Recv
// returns io.EOF on clean end of stream.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// GenerationClient defines the language-model interface the engine needs
type GenerationClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	StreamCompletion(ctx context.Context, prompt string) (TokenStream, error)
}

// GenerationStream is a running generation. Text carries answer fragments
// in arrival order; Events carries directives as the scanner completes
// them, interleaved with the text they appeared in. Both channels close
// when generation ends; Wait then reports how it ended.
type GenerationStream struct {
	Text   <-chan string
	Events <-chan domain.ToolInvocation

	done     chan struct{}
	fullText string
	err      error
}

// Wait blocks until the stream has fully drained, then returns the
// accumulated answer text and the terminal error, if any. Safe to call
// more than once.
func (s *GenerationStream) Wait() (string, error) {
	<-s.done
	return s.fullText, s.err
}

// GenerationEngine drives streaming generation with inline directive
// detection. Every fragment is forwarded on Text as received; the same
// fragments feed a DirectiveScanner whose matches surface on Events.
type GenerationEngine struct {
	client GenerationClient
}

// NewGenerationEngine creates a GenerationEngine.
func NewGenerationEngine(client GenerationClient) *GenerationEngine {
	return &GenerationEngine{client: client}
}

// Complete runs a non-streaming generation and returns the full answer
// plus any directives found in it.
func (e *GenerationEngine) Complete(ctx context.Context, prompt string) (string, []domain.ToolInvocation, error) {
	ctx, span := telemetry.StartSpan(ctx, "GenerationEngine.Complete", telemetry.SpanAttributes{Stage: "generate"})
	defer span.End()

	answer, err := e.client.Complete(ctx, prompt)
	if err != nil {
		span.SetError(err)
		return "", nil, err
	}

	scanner := NewDirectiveScanner()
	events := scanner.Feed(answer)
	events = append(events, scanner.Flush()...)
	return answer, events, nil
}

// Stream starts a streaming generation. Cancelling ctx closes the
// upstream stream, so the consuming goroutine terminates promptly even
// when the model keeps producing.
func (e *GenerationEngine) Stream(ctx context.Context, prompt string) (*GenerationStream, error) {
	upstream, err := e.client.StreamCompletion(ctx, prompt)
	if err != nil {
		return nil, err
	}

	text := make(chan string)
	events := make(chan domain.ToolInvocation)
	gs := &GenerationStream{
		Text:   text,
		Events: events,
		done:   make(chan struct{}),
	}

	// Close the upstream when ctx is cancelled so Recv unblocks.
	closeOnce := sync.Once{}
	closeUpstream := func() { closeOnce.Do(func() { _ = upstream.Close() }) }
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			closeUpstream()
		case <-stop:
		}
	}()

	go func() {
		defer close(gs.done)
		defer close(events)
		defer close(text)
		defer close(stop)
		defer closeUpstream()

		scanner := NewDirectiveScanner()
		var full []byte

		emit := func(invs []domain.ToolInvocation) bool {
			for _, inv := range invs {
				select {
				case events <- inv:
				case <-ctx.Done():
					return false
				}
			}
			return true
		}

		for {
			fragment, recvErr := upstream.Recv()
			if fragment != "" {
				full = append(full, fragment...)
				select {
				case text <- fragment:
				case <-ctx.Done():
					gs.fullText = string(full)
					gs.err = ctx.Err()
					return
				}
				if !emit(scanner.Feed(fragment)) {
					gs.fullText = string(full)
					gs.err = ctx.Err()
					return
				}
			}
			if recvErr != nil {
				gs.fullText = string(full)
				if errors.Is(recvErr, io.EOF) {
					emit(scanner.Flush())
					return
				}
				if ctx.Err() != nil {
					gs.err = ctx.Err()
					return
				}
				gs.err = recvErr
				return
			}
		}
	}()

	return gs, nil
}
