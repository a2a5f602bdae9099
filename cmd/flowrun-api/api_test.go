package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/connection"
	"github.com/dukex/flowrun/pkg/datastore"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence/file"
	"github.com/dukex/flowrun/pkg/progress"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/ratelimit"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/sandbox"
	"github.com/dukex/flowrun/pkg/secrets"
	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/dukex/flowrun/pkg/workflow"
)

func newTestRuntime(t *testing.T) *cmd.Runtime {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.SaveProject(ctx, testutil.CreateTestProject()))
	require.NoError(t, store.SaveWorkflow(ctx, testutil.CreateTestWorkflow(
		testutil.WithID("echo"),
		testutil.WithRoute("POST", "/echo"),
		testutil.WithNode("start", models.NodeTypeStart, map[string]any{"name": "ada"}),
		testutil.WithNode("reply", models.NodeTypeResponse, map[string]any{"status": 200}),
		testutil.WithEdge("start", "reply"),
	)))

	reg := registry.NewRegistry(logger, protocol.Dependencies{
		Sandbox:   sandbox.New(sandbox.DefaultConfig(), logger),
		Secrets:   secrets.NewMemoryStore(),
		Datastore: datastore.NewMemoryConnector(),
	})
	require.NoError(t, reg.RegisterDefaultNodes())

	bus, err := cmd.NewEventBus(cmd.EventBusGoChannel, "", "flowrun-api", logger)
	require.NoError(t, err)

	t.Cleanup(func() { _ = bus.Close() })

	return &cmd.Runtime{
		Logger:      logger,
		Persistence: store,
		Registry:    reg,
		Executor:    workflow.NewExecutor(logger, reg),
		EventBus:    bus,
		Bindings:    connection.NewMemoryStore(time.Minute),
		Relay:       connection.NewMemoryRelay(),
		Limiter:     ratelimit.NewMemoryLimiter(ratelimit.DefaultWindow),
	}
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, []byte) {
	t.Helper()

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, body
}

func TestAPI_RootEndpoint(t *testing.T) {
	t.Parallel()

	app := NewAPI(slog.Default(), newTestRuntime(t), Options{}).App()

	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "flowrun", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	t.Parallel()

	app := NewAPI(slog.Default(), newTestRuntime(t), Options{}).App()

	for _, path := range []string{"/livez", "/readyz"} {
		status, body := do(t, app, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, status, path)
		assert.Equal(t, "OK", string(body), path)
	}
}

func TestAPI_SyncTrigger(t *testing.T) {
	t.Parallel()

	app := NewAPI(slog.Default(), newTestRuntime(t), Options{}).App()

	req := httptest.NewRequest(http.MethodPost, "/api/acme/p1/echo", bytes.NewBufferString(`{"name":"ada"}`))
	req.Header.Set("Content-Type", "application/json")

	status, body := do(t, app, req)
	require.Equal(t, http.StatusOK, status, string(body))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "ada", payload["name"])
}

func TestAPI_EmbeddedOrchestrator(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runtime := newTestRuntime(t)
	api := NewAPI(runtime.Logger, runtime, Options{
		ConnectionTimeout: 2 * time.Second,
		PollInterval:      10 * time.Millisecond,
		WorkerID:          "api-test",
		Embedded:          true,
	})
	require.NotNil(t, api.orchestrator)
	require.NoError(t, api.orchestrator.Start(ctx, runtime.EventBus))

	app := api.App()

	req := httptest.NewRequest(http.MethodPost, "/realtime/acme/p1/echo", bytes.NewBufferString(`{"name":"ada"}`))
	req.Header.Set("Content-Type", "application/json")

	status, body := do(t, app, req)
	require.Equal(t, http.StatusAccepted, status, string(body))

	var accepted struct {
		ExecutionID string `json:"executionId"`
	}
	require.NoError(t, json.Unmarshal(body, &accepted))
	require.NotEmpty(t, accepted.ExecutionID)

	feed, release, err := runtime.Relay.Subscribe(ctx, "conn-1")
	require.NoError(t, err)

	defer release()

	connect := httptest.NewRequest(http.MethodPost, "/connections",
		bytes.NewBufferString(`{"executionId":"`+accepted.ExecutionID+`","connectionId":"conn-1"}`))
	connect.Header.Set("Content-Type", "application/json")

	status, body = do(t, app, connect)
	require.Equal(t, http.StatusCreated, status, string(body))

	for {
		select {
		case payload := <-feed:
			var event progress.Event
			require.NoError(t, json.Unmarshal(payload, &event))

			if !event.Event.IsTerminal() {
				continue
			}

			assert.Equal(t, progress.ExecutionCompleted, event.Event)

			cancel()
			api.orchestrator.Wait()

			return
		case <-ctx.Done():
			t.Fatal("no terminal progress event")
		}
	}
}
