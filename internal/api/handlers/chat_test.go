package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopmind-ai/shopmind/internal/api/middleware"
	"github.com/shopmind-ai/shopmind/internal/domain"
	"github.com/shopmind-ai/shopmind/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAssistant struct {
	mock.Mock
}

func (m *MockAssistant) Ask(ctx context.Context, in service.AskInput) (*service.AskResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AskResult), args.Error(1)
}

func (m *MockAssistant) AskStream(ctx context.Context, in service.AskInput) (*service.AnswerStream, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AnswerStream), args.Error(1)
}

func ownedRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	ctx := context.WithValue(req.Context(), middleware.OwnerIDKey, "owner-1")
	return req.WithContext(ctx)
}

// replayStream builds a closed AnswerStream carrying the given fragments
// and directives.
func replayStream(fragments []string, invs []domain.ToolInvocation, waitErr error) *service.AnswerStream {
	text := make(chan string, len(fragments))
	for _, f := range fragments {
		text <- f
	}
	close(text)

	events := make(chan domain.ToolInvocation, len(invs))
	for _, inv := range invs {
		events <- inv
	}
	close(events)

	return service.NewAnswerStream(text, events, false, func() error { return waitErr })
}

func TestChatHandler_Ask_Success(t *testing.T) {
	svc := new(MockAssistant)
	handler := NewChatHandler(svc)

	svc.On("Ask", mock.Anything, mock.MatchedBy(func(in service.AskInput) bool {
		return in.OwnerID == "owner-1" && in.Message == "do you have boots?"
	})).Return(&service.AskResult{
		Answer:     "Yes [NAVIGATE:/boots]",
		Sources:    []string{"k1"},
		Confidence: 0.8,
		Events:     []domain.ToolInvocation{{Type: domain.DirectiveNavigate, Data: "/boots"}},
	}, nil)

	rec := httptest.NewRecorder()
	handler.Ask(rec, ownedRequest(http.MethodPost, "/chat", `{"message":"do you have boots?"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Yes [NAVIGATE:/boots]")
	assert.Contains(t, body, `"navigate"`)
	svc.AssertExpectations(t)
}

func TestChatHandler_Ask_EmptyMessage(t *testing.T) {
	svc := new(MockAssistant)
	handler := NewChatHandler(svc)

	rec := httptest.NewRecorder()
	handler.Ask(rec, ownedRequest(http.MethodPost, "/chat", `{"message":"  "}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Ask")
}

func TestChatHandler_Ask_InvalidBody(t *testing.T) {
	svc := new(MockAssistant)
	handler := NewChatHandler(svc)

	rec := httptest.NewRecorder()
	handler.Ask(rec, ownedRequest(http.MethodPost, "/chat", `{not json`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHandler_Ask_UpstreamFailure(t *testing.T) {
	svc := new(MockAssistant)
	handler := NewChatHandler(svc)

	svc.On("Ask", mock.Anything, mock.Anything).Return(nil,
		domain.NewDomainError(domain.ErrCodeUpstreamUnavailable, "answer generation failed"))

	rec := httptest.NewRecorder()
	handler.Ask(rec, ownedRequest(http.MethodPost, "/chat", `{"message":"q"}`))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestChatHandler_Stream_Success(t *testing.T) {
	svc := new(MockAssistant)
	handler := NewChatHandler(svc)

	stream := replayStream(
		[]string{"Adding ", "[ADD_TO_CART:boots]"},
		[]domain.ToolInvocation{{Type: domain.DirectiveAddToCart, Data: "boots"}},
		nil,
	)
	svc.On("AskStream", mock.Anything, mock.Anything).Return(stream, nil)

	rec := httptest.NewRecorder()
	handler.Stream(rec, ownedRequest(http.MethodPost, "/chat/stream", `{"message":"add boots"}`))

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: text")
	assert.Contains(t, body, `"Adding "`)
	assert.Contains(t, body, "event: tool")
	assert.Contains(t, body, `"addToCart"`)
	assert.True(t, strings.Contains(body, "event: done"))
	assert.NotContains(t, body, "event: error")
}

func TestChatHandler_Stream_MissingMessage(t *testing.T) {
	svc := new(MockAssistant)
	handler := NewChatHandler(svc)

	rec := httptest.NewRecorder()
	handler.Stream(rec, ownedRequest(http.MethodPost, "/chat/stream", `{}`))

	body := rec.Body.String()
	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, "MISSING_MESSAGE")
	svc.AssertNotCalled(t, "AskStream")
}

func TestChatHandler_Stream_ErrorHidesUpstreamDetail(t *testing.T) {
	svc := new(MockAssistant)
	handler := NewChatHandler(svc)

	cause := errors.New("openai: 401 invalid api key sk-secret-fragment")
	svc.On("AskStream", mock.Anything, mock.Anything).Return(nil,
		domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "answer generation failed", cause))

	rec := httptest.NewRecorder()
	handler.Stream(rec, ownedRequest(http.MethodPost, "/chat/stream", `{"message":"q"}`))

	body := rec.Body.String()
	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, domain.ErrCodeUpstreamUnavailable)
	assert.Contains(t, body, "answer generation failed")
	assert.NotContains(t, body, "401")
	assert.NotContains(t, body, "sk-secret-fragment")
	assert.NotContains(t, body, "openai")
}

func TestChatHandler_Stream_PipelineError(t *testing.T) {
	svc := new(MockAssistant)
	handler := NewChatHandler(svc)

	svc.On("AskStream", mock.Anything, mock.Anything).Return(nil,
		domain.NewDomainError(domain.ErrCodeUpstreamUnavailable, "answer generation failed"))

	rec := httptest.NewRecorder()
	handler.Stream(rec, ownedRequest(http.MethodPost, "/chat/stream", `{"message":"q"}`))

	body := rec.Body.String()
	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, domain.ErrCodeUpstreamUnavailable)
}

func TestChatHandler_Stream_TerminalErrorAfterText(t *testing.T) {
	svc := new(MockAssistant)
	handler := NewChatHandler(svc)

	stream := replayStream([]string{"partial "}, nil,
		domain.NewDomainError(domain.ErrCodeUpstreamUnavailable, "answer generation interrupted"))
	svc.On("AskStream", mock.Anything, mock.Anything).Return(stream, nil)

	rec := httptest.NewRecorder()
	handler.Stream(rec, ownedRequest(http.MethodPost, "/chat/stream", `{"message":"q"}`))

	body := rec.Body.String()
	assert.Contains(t, body, `"partial "`)
	assert.Contains(t, body, "event: error")
	assert.NotContains(t, body, "event: done")
}
