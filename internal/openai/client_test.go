package openai

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	embedding []float32
	embedErr  error
	answer    string
	chatErr   error

	lastEmbedText string
	lastChatReq   openai.ChatCompletionRequest
}

func (f *fakeAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	f.lastEmbedText = text
	return f.embedding, f.embedErr
}

func (f *fakeAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastChatReq = req
	if f.chatErr != nil {
		return openai.ChatCompletionResponse{}, f.chatErr
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.answer}},
		},
	}, nil
}

func (f *fakeAPI) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	return nil, errors.New("not implemented in fake")
}

func newFakeClient(api API) *Client {
	return &Client{api: api, dimensions: 3, chatModel: DefaultChatModel}
}

func TestGenerateEmbedding(t *testing.T) {
	ctx := context.Background()

	t.Run("returns embedding", func(t *testing.T) {
		api := &fakeAPI{embedding: []float32{0.1, 0.2, 0.3}}
		c := newFakeClient(api)

		got, err := c.GenerateEmbedding(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, got)
		assert.Equal(t, "hello", api.lastEmbedText)
	})

	t.Run("rejects empty text", func(t *testing.T) {
		c := newFakeClient(&fakeAPI{})
		_, err := c.GenerateEmbedding(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("rejects wrong dimensions", func(t *testing.T) {
		c := newFakeClient(&fakeAPI{embedding: []float32{0.1}})
		_, err := c.GenerateEmbedding(ctx, "hello")
		assert.ErrorIs(t, err, ErrWrongDimensions)
	})

	t.Run("wraps api errors", func(t *testing.T) {
		apiErr := errors.New("rate limited")
		c := newFakeClient(&fakeAPI{embedErr: apiErr})
		_, err := c.GenerateEmbedding(ctx, "hello")
		assert.ErrorIs(t, err, apiErr)
	})
}

func TestComplete(t *testing.T) {
	ctx := context.Background()

	t.Run("returns answer", func(t *testing.T) {
		api := &fakeAPI{answer: "Sure, [VIEW_CART] here you go."}
		c := newFakeClient(api)

		got, err := c.Complete(ctx, "show my cart")
		require.NoError(t, err)
		assert.Equal(t, "Sure, [VIEW_CART] here you go.", got)
		assert.Equal(t, DefaultChatModel, api.lastChatReq.Model)
	})

	t.Run("rejects empty prompt", func(t *testing.T) {
		c := newFakeClient(&fakeAPI{})
		_, err := c.Complete(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("wraps api errors", func(t *testing.T) {
		apiErr := errors.New("model overloaded")
		c := newFakeClient(&fakeAPI{chatErr: apiErr})
		_, err := c.Complete(ctx, "hi")
		assert.ErrorIs(t, err, apiErr)
	})
}
