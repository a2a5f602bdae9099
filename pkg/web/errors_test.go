package web_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/web"
)

func TestErrorHandler_ProblemBody(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	app := fiber.New(fiber.Config{ErrorHandler: web.ErrorHandler(logger)})
	app.Get("/denied", func(fiber.Ctx) error {
		err := models.NewError(models.ErrAccessDenied, "token rejected")
		err.NodeID = "verify"
		err.NodeType = models.NodeTypeJWTVerify
		err.Details = map[string]any{"reason": "expired"}

		return err
	})
	app.Get("/teapot", func(fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/denied", nil))
	require.Equal(t, http.StatusForbidden, resp.StatusCode, string(body))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, string(models.ErrAccessDenied), payload["type"])
	assert.EqualValues(t, http.StatusForbidden, payload["status"])
	assert.Equal(t, "token rejected", payload["detail"])
	assert.Equal(t, "/denied", payload["instance"])
	assert.Equal(t, "verify", payload["nodeId"])
	assert.Equal(t, string(models.NodeTypeJWTVerify), payload["nodeType"])
	assert.Equal(t, map[string]any{"reason": "expired"}, payload["details"])

	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	require.Equal(t, http.StatusTeapot, resp.StatusCode)

	var p problem
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, http.StatusTeapot, p.Status)
	assert.Equal(t, "short and stout", p.Detail)
}
