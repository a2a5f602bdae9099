package web_test

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowrun/pkg/mocks"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/web"
)

func TestTrigger_CatalogUnavailable(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	catalog := &mocks.MockPersistence{}
	catalog.On("ProjectByID", mock.Anything, "acme", "p1").Return(nil, errors.New("connection refused"))
	catalog.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

	app := web.NewApp(logger, web.NewHandlers(web.Dependencies{
		Logger:  logger,
		Catalog: catalog,
	}))

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/api/acme/p1/anything", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var p problem
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, string(models.ErrExecutionFailed), p.Type)

	resp, _ = do(t, app, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = do(t, app, httptest.NewRequest(http.MethodGet, "/realtime/acme/p1/anything", nil))
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	catalog.AssertExpectations(t)
}
