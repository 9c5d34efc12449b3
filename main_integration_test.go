package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/visual-compare/internal/auth"
	"github.com/example/visual-compare/internal/comparator"
	"github.com/example/visual-compare/internal/handlers"
	"github.com/example/visual-compare/internal/repository"
	"github.com/example/visual-compare/internal/tools"
	"github.com/example/visual-compare/internal/usecase"
)

type memoryRepository struct {
	logs map[string]*repository.ComparisonLog
}

func (m *memoryRepository) SaveLog(ctx context.Context, log *repository.ComparisonLog) error {
	m.logs[log.RequestID] = log
	return nil
}

func (m *memoryRepository) FindByRequestID(ctx context.Context, requestID string) (*repository.ComparisonLog, error) {
	log, ok := m.logs[requestID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return log, nil
}

func (m *memoryRepository) AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error) {
	return &repository.MetricsAggregation{TotalCount: int64(len(m.logs))}, nil
}

type memoryCache struct {
	values map[string]string
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.values[key] = value.(string)
	return nil
}

func (m *memoryCache) Get(ctx context.Context, key string) (string, error) {
	return m.values[key], nil
}

// TestServerDrainsInFlightComparison sends a tool invocation whose inference
// endpoint is blocked, signals shutdown, and expects the invocation to finish.
func TestServerDrainsInFlightComparison(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	requestStarted := make(chan struct{})
	releaseRequest := make(chan struct{})
	defer func() {
		select {
		case <-releaseRequest:
		default:
			close(releaseRequest)
		}
	}()

	inference := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(requestStarted)
		<-releaseRequest
		_, _ = w.Write([]byte(`{"match": true, "score": 0.92}`))
	}))
	defer inference.Close()

	dir := t.TempDir()
	image := filepath.Join(dir, "face.png")
	if err := os.WriteFile(image, []byte("\x89PNG\r\n\x1a\n"), 0o600); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	cmp := comparator.New(comparator.WithLogger(logger))
	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewVisualIdentityCompareTool(cmp)); err != nil {
		t.Fatalf("failed to register tool: %v", err)
	}
	repo := &memoryRepository{logs: map[string]*repository.ComparisonLog{}}
	uc := usecase.NewComparisonUseCase(repo, &memoryCache{values: map[string]string{}}, cmp, logger)

	router := gin.New()
	handlers.RegisterRoutes(router, registry, uc, auth.Middleware("", ""))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: router}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, logger, listener, signalCh)
	}()

	addr := listener.Addr().String()
	waitForServer(t, addr)

	args, _ := json.Marshal(map[string]string{
		"image1_path":  image,
		"image2_path":  image,
		"endpoint_url": inference.URL,
	})
	client := &http.Client{Timeout: 2 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := client.Post("http://"+addr+"/tools/visual_identity_compare/invoke", "application/json", bytes.NewReader(args))
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-requestStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("comparison did not reach the inference endpoint")
	}

	signalCh <- syscall.SIGTERM
	time.Sleep(50 * time.Millisecond)
	close(releaseRequest)

	select {
	case resp := <-respCh:
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(body))
		}
		var out struct {
			RequestID string `json:"request_id"`
			Result    string `json:"result"`
			Failed    bool   `json:"failed"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if out.Failed || out.Result != `{"match":true,"score":0.92}` {
			t.Fatalf("unexpected outcome: %+v", out)
		}
		if _, ok := repo.logs[out.RequestID]; !ok {
			t.Fatalf("expected comparison %s to be logged", out.RequestID)
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func TestMemoryRepositoryReportsMissingRecord(t *testing.T) {
	repo := &memoryRepository{logs: map[string]*repository.ComparisonLog{}}
	if _, err := repo.FindByRequestID(context.Background(), "unknown"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
