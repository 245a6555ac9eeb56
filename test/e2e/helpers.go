//go:build e2e

package e2e

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopmind-ai/shopmind/internal/api/handlers"
	"github.com/shopmind-ai/shopmind/internal/repository"
	"github.com/shopmind-ai/shopmind/internal/server"
	"github.com/shopmind-ai/shopmind/internal/service"
	"github.com/shopmind-ai/shopmind/internal/storage"
	"github.com/shopmind-ai/shopmind/internal/testutil"
)

const e2eTokenSecret = "e2e-token-secret"

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	Model        *scriptedModel
	Writer       *service.BackgroundWriter
	AuthToken    string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers, a
// scripted language model, and the real HTTP server.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	model := &scriptedModel{answer: "Here you go. [NAVIGATE:/products]"}
	serverURL, serverCloser, writer := startServer(t, pool, s3Client, model, port)

	validator := service.NewTokenValidator(e2eTokenSecret)
	token, err := validator.IssueOwnerToken("e2e-owner")
	if err != nil {
		t.Fatalf("failed to issue owner token: %v", err)
	}

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		Model:        model,
		Writer:       writer,
		AuthToken:    token,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Post performs an authenticated POST request and decodes the envelope.
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, int, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal body: %w", err)
	}

	req, err := http.NewRequest("POST", e.ServerURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+e.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("non-JSON response (HTTP %d): %s", resp.StatusCode, respBody)
	}

	return &apiResp, resp.StatusCode, nil
}

// SSEEvent is one parsed server-sent event.
type SSEEvent struct {
	Type string
	Data json.RawMessage
}

// PostSSE performs an authenticated POST and parses the SSE response.
func (e *E2ETestEnv) PostSSE(path string, body interface{}) ([]SSEEvent, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", e.ServerURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+e.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		return nil, fmt.Errorf("expected SSE response, got %s (HTTP %d)", ct, resp.StatusCode)
	}

	var events []SSEEvent
	var current SSEEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		case line == "":
			if current.Type != "" {
				events = append(events, current)
				current = SSEEvent{}
			}
		}
	}
	return events, scanner.Err()
}

// UploadFile uploads a file to the presigned URL
func (e *E2ETestEnv) UploadFile(uploadURL string, content []byte, contentType string) error {
	req, err := http.NewRequest("PUT", uploadURL, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, body)
	}

	return nil
}

// scriptedModel is a deterministic stand-in for the language model. Answers
// are configurable per test; embeddings hash the text so identical strings
// always map to the same vector.
type scriptedModel struct {
	mu     sync.Mutex
	answer string
}

func (m *scriptedModel) SetAnswer(answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answer = answer
}

func (m *scriptedModel) currentAnswer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answer
}

func (m *scriptedModel) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, 1536)
	for i := range v {
		v[i] = float32(sum[i%len(sum)]) / 255.0
	}
	return v, nil
}

func (m *scriptedModel) Complete(ctx context.Context, prompt string) (string, error) {
	return m.currentAnswer(), nil
}

func (m *scriptedModel) StreamCompletion(ctx context.Context, prompt string) (service.TokenStream, error) {
	answer := m.currentAnswer()

	// Split into small fragments so directives can straddle boundaries.
	var fragments []string
	for len(answer) > 0 {
		n := 7
		if n > len(answer) {
			n = len(answer)
		}
		fragments = append(fragments, answer[:n])
		answer = answer[n:]
	}
	return &scriptedStream{fragments: fragments}, nil
}

type scriptedStream struct {
	fragments []string
	pos       int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	out := s.fragments[s.pos]
	s.pos++
	return out, nil
}

func (s *scriptedStream) Close() error { return nil }

// startServer wires the full pipeline over real storage and the scripted
// model, then serves it on the given port.
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, model *scriptedModel, port int) (string, func(), *service.BackgroundWriter) {
	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	cacheRepo := repository.NewCacheRepository(pool)
	metricRepo := repository.NewMetricRepository(pool)

	embedder := service.NewEmbeddingGenerator(model)
	semanticCache := service.NewSemanticCache(cacheRepo, time.Hour)
	retriever := service.NewHybridRetriever(knowledgeRepo)
	writer := service.NewBackgroundWriter(knowledgeRepo, semanticCache, embedder)

	assistant := service.NewAssistantService(
		semanticCache,
		embedder,
		retriever,
		service.NewReranker(nil),
		service.NewPromptAssembler(),
		service.NewGenerationEngine(model),
		writer,
		metricRepo,
	)

	documentSvc := service.NewDocumentService(s3Client, knowledgeRepo, embedder)

	router := server.NewRouter(server.RouterConfig{
		OwnerValidator:  service.NewTokenValidator(e2eTokenSecret),
		ChatHandler:     handlers.NewChatHandler(assistant),
		DocumentHandler: handlers.NewDocumentHandler(documentSvc),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		writer.Wait()
	}, writer
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
