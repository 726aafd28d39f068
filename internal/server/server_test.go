package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entdesk/entdesk/internal/config"
	"github.com/entdesk/entdesk/internal/scheduler"
	"github.com/entdesk/entdesk/internal/server"
	"github.com/entdesk/entdesk/internal/triage"
	"github.com/entdesk/entdesk/pkg/types"
	"github.com/entdesk/entdesk/web/handlers"
)

type stubRetriever struct {
	candidates []types.RetrievalCandidate
}

func (s *stubRetriever) Retrieve(ctx context.Context, queryText string, topK int) ([]types.RetrievalCandidate, error) {
	return s.candidates, nil
}

func startTestServer(t *testing.T, cfg *config.Config) string {
	t.Helper()

	retriever := &stubRetriever{candidates: []types.RetrievalCandidate{
		{Payload: types.Payload{Question: "sore throat", Answer: "Rest and fluids."}, Distance: 0.05},
	}}
	engine, err := triage.NewEngine(retriever, triage.DefaultVocabulary(), triage.Config{})
	require.NoError(t, err)

	store, err := scheduler.NewStore(filepath.Join(t.TempDir(), "appointments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addr, _, err := server.Start(ctx, cfg, engine, scheduler.New(store, nil, scheduler.Config{}))
	require.NoError(t, err)

	// Give the listener goroutine a moment to come up
	time.Sleep(20 * time.Millisecond)
	return "http://" + addr
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         0,
			SecurityMode: "development",
			RateLimit:    100,
			RateBurst:    200,
		},
	}
}

func TestHealthEndpoint(t *testing.T) {
	base := startTestServer(t, testConfig())

	resp, err := http.Get(base + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestQueryEndToEnd(t *testing.T) {
	base := startTestServer(t, testConfig())

	body, _ := json.Marshal(handlers.QueryRequest{Text: "I have a mild sore throat"})
	resp, err := http.Post(base+"/api/query", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var query handlers.QueryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&query))
	assert.Equal(t, "answer", query.Decision)
	assert.Equal(t, "Rest and fluids.", query.Answer)
}

func TestProductionModeRequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.Server.SecurityMode = "production"
	cfg.Server.APIToken = "secret-token"
	base := startTestServer(t, cfg)

	body, _ := json.Marshal(handlers.QueryRequest{Text: "hello"})
	resp, err := http.Post(base+"/api/query", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest("POST", base+"/api/query", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays open for monitoring.
	resp, err = http.Get(base + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGracefulShutdown(t *testing.T) {
	engine, err := triage.NewEngine(&stubRetriever{}, triage.DefaultVocabulary(), triage.Config{})
	require.NoError(t, err)
	store, err := scheduler.NewStore(filepath.Join(t.TempDir(), "appointments.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	addr, _, err := server.Start(ctx, testConfig(), engine, scheduler.New(store, nil, scheduler.Config{}))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(100 * time.Millisecond)

	_, err = http.Get("http://" + addr + "/api/health")
	assert.Error(t, err, "server should stop accepting connections after shutdown")
}
