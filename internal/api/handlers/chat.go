package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/shopmind-ai/shopmind/internal/api"
	"github.com/shopmind-ai/shopmind/internal/api/middleware"
	"github.com/shopmind-ai/shopmind/internal/domain"
	"github.com/shopmind-ai/shopmind/internal/service"
)

// AssistantAPI is the answering pipeline the chat endpoints expose.
type AssistantAPI interface {
	Ask(ctx context.Context, in service.AskInput) (*service.AskResult, error)
	AskStream(ctx context.Context, in service.AskInput) (*service.AnswerStream, error)
}

type ChatHandler struct {
	svc AssistantAPI
}

func NewChatHandler(svc AssistantAPI) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	Message string                 `json:"message"`
	History []service.Turn         `json:"history,omitempty"`
	Session service.SessionContext `json:"session,omitempty"`
}

type ChatResponse struct {
	Answer       string                  `json:"answer"`
	Sources      []string                `json:"sources,omitempty"`
	Confidence   float64                 `json:"confidence"`
	Directives   []domain.ToolInvocation `json:"directives,omitempty"`
	CacheHit     bool                    `json:"cache_hit"`
	ContextCount int                     `json:"context_count"`
}

// Ask answers a shopper message in one JSON response.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := h.svc.Ask(r.Context(), service.AskInput{
		OwnerID: middleware.GetOwnerID(r.Context()),
		Message: req.Message,
		Turns:   req.History,
		Session: req.Session,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ChatResponse{
		Answer:       result.Answer,
		Sources:      result.Sources,
		Confidence:   result.Confidence,
		Directives:   result.Events,
		CacheHit:     result.CacheHit,
		ContextCount: result.ContextCount,
	})
}

// SSE event types for chat streaming.
const (
	EventText  = "text"  // Partial answer text
	EventTool  = "tool"  // Directive detected in the answer
	EventDone  = "done"  // Stream completed successfully
	EventError = "error" // Error occurred during streaming
)

// TextPayload is the SSE data payload for streaming answer fragments.
type TextPayload struct {
	Text string `json:"text"`
}

// DonePayload is the SSE data payload when streaming completes successfully.
type DonePayload struct {
	CacheHit bool `json:"cache_hit"`
}

// ErrorPayload is the SSE data payload when an error occurs.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stream answers a shopper message as an SSE stream: text events carry
// answer fragments, tool events carry directives detected in them.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = writeEvent(w, flusher, EventError, ErrorPayload{
			Code:    "INVALID_REQUEST",
			Message: "invalid request body",
		})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		_ = writeEvent(w, flusher, EventError, ErrorPayload{
			Code:    "MISSING_MESSAGE",
			Message: "message is required",
		})
		return
	}

	ctx := r.Context()
	stream, err := h.svc.AskStream(ctx, service.AskInput{
		OwnerID: middleware.GetOwnerID(ctx),
		Message: req.Message,
		Turns:   req.History,
		Session: req.Session,
	})
	if err != nil {
		_ = writeEvent(w, flusher, EventError, errorPayloadFor(err))
		return
	}

	textCh := stream.Text
	eventCh := stream.Events
	for textCh != nil || eventCh != nil {
		select {
		case <-ctx.Done():
			// Client disconnected; the pipeline persists what it has.
			_ = stream.Wait()
			return
		case fragment, open := <-textCh:
			if !open {
				textCh = nil
				continue
			}
			if err := writeEvent(w, flusher, EventText, TextPayload{Text: fragment}); err != nil {
				_ = stream.Wait()
				return
			}
		case inv, open := <-eventCh:
			if !open {
				eventCh = nil
				continue
			}
			if err := writeEvent(w, flusher, EventTool, inv); err != nil {
				_ = stream.Wait()
				return
			}
		}
	}

	if err := stream.Wait(); err != nil {
		_ = writeEvent(w, flusher, EventError, errorPayloadFor(err))
		return
	}

	_ = writeEvent(w, flusher, EventDone, DonePayload{CacheHit: stream.CacheHit})
}

// errorPayloadFor maps pipeline errors to SSE error payloads. Only the
// domain message is client-visible; the wrapped cause stays in the log.
func errorPayloadFor(err error) ErrorPayload {
	code := "STREAM_ERROR"
	message := "answer generation failed"
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		code = domainErr.Code
		message = domainErr.Message
	}
	if domainErr == nil || domainErr.Err != nil {
		log.Printf("stream error: %v", err)
	}
	return ErrorPayload{Code: code, Message: message}
}

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n"
func writeEvent(w io.Writer, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
