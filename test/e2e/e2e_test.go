//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatResponse struct {
	Answer       string  `json:"answer"`
	Confidence   float64 `json:"confidence"`
	CacheHit     bool    `json:"cache_hit"`
	ContextCount int     `json:"context_count"`
	Directives   []struct {
		Type string `json:"type"`
		Data string `json:"data"`
	} `json:"directives"`
}

func TestE2E_ChatFlow(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	env.Model.SetAnswer("We have three options in stock. [NAVIGATE:/products/shoes]")

	resp, status, err := env.Post("/chat", map[string]string{
		"message": "Do you have trail running shoes?",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	var first chatResponse
	require.NoError(t, json.Unmarshal(resp.Data, &first))
	assert.Contains(t, first.Answer, "three options")
	assert.False(t, first.CacheHit)
	require.Len(t, first.Directives, 1)
	assert.Equal(t, "navigate", first.Directives[0].Type)
	assert.Equal(t, "/products/shoes", first.Directives[0].Data)

	// The conversation lands in the knowledge store off the request path.
	env.Writer.Wait()

	var entries int
	err = env.Pool.QueryRow(env.Ctx,
		`SELECT count(*) FROM knowledge_entries WHERE owner_id = $1 AND content_type = 'conversation'`,
		"e2e-owner",
	).Scan(&entries)
	require.NoError(t, err)
	assert.Equal(t, 1, entries)

	// Asking the same question again is served from the cache.
	resp, status, err = env.Post("/chat", map[string]string{
		"message": "Do you have trail running shoes?",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	var second chatResponse
	require.NoError(t, json.Unmarshal(resp.Data, &second))
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Answer, second.Answer)
}

func TestE2E_ChatStream(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	env.Model.SetAnswer("Adding it now. [ADD_TO_CART:sku-123] Anything else?")

	events, err := env.PostSSE("/chat/stream", map[string]string{
		"message": "Add the blue one to my cart",
	})
	require.NoError(t, err)
	require.NotEmpty(t, events)

	var text strings.Builder
	var toolTypes []string
	sawDone := false
	for _, ev := range events {
		switch ev.Type {
		case "text":
			var payload struct {
				Text string `json:"text"`
			}
			require.NoError(t, json.Unmarshal(ev.Data, &payload))
			text.WriteString(payload.Text)
		case "tool":
			var payload struct {
				Type string `json:"type"`
				Data string `json:"data"`
			}
			require.NoError(t, json.Unmarshal(ev.Data, &payload))
			toolTypes = append(toolTypes, payload.Type)
			assert.Equal(t, "sku-123", payload.Data)
		case "done":
			sawDone = true
		case "error":
			t.Fatalf("unexpected error event: %s", ev.Data)
		}
	}

	// Fragments stream through unmodified; the directive is detected even
	// though the fragment size splits it across events.
	assert.Equal(t, "Adding it now. [ADD_TO_CART:sku-123] Anything else?", text.String())
	assert.Equal(t, []string{"addToCart"}, toolTypes)
	assert.True(t, sawDone)
	assert.Equal(t, "done", events[len(events)-1].Type)
}

func TestE2E_DocumentFlow(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	resp, status, err := env.Post("/documents/upload", map[string]string{
		"filename":     "catalog.txt",
		"content_type": "text/plain",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)

	var ticket struct {
		Key       string `json:"key"`
		UploadURL string `json:"upload_url"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &ticket))
	assert.True(t, strings.HasPrefix(ticket.Key, "e2e-owner/"))

	content := []byte("The Zephyr trail runner has a waterproof membrane and aggressive lugs for muddy terrain.")
	require.NoError(t, env.UploadFile(ticket.UploadURL, content, "text/plain"))

	resp, status, err = env.Post("/documents/ingest", map[string]string{"key": ticket.Key})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	var ingest struct {
		ChunksStored int `json:"chunks_stored"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &ingest))
	assert.GreaterOrEqual(t, ingest.ChunksStored, 1)

	// The ingested document is retrievable context for a matching question.
	env.Model.SetAnswer("Yes, the Zephyr is waterproof.")
	resp, status, err = env.Post("/chat", map[string]string{
		"message": "Is the Zephyr waterproof for muddy terrain?",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	var chat chatResponse
	require.NoError(t, json.Unmarshal(resp.Data, &chat))
	assert.Greater(t, chat.ContextCount, 0)
}

func TestE2E_RejectsUnauthenticatedRequests(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	req, err := http.NewRequest("POST", env.ServerURL+"/chat", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.HTTPClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
