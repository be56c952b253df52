package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushgate/pushgate/internal/api/models"
	"github.com/pushgate/pushgate/internal/api/response"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)

	response.JSON(w, r, http.StatusOK, map[string]string{"status": "OK"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])
}

func TestJSON_NilBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)

	response.JSON(w, r, http.StatusAccepted, nil)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestBadRequest(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/accounts/abc/notify", http.NoBody)

	response.BadRequest(w, r, "unknown command", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	assert.Equal(t, "unknown command", problem.Detail)
	assert.Equal(t, "/v1/accounts/abc/notify", problem.Instance)
}

func TestCreated(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/accounts/abc/devices", http.NoBody)

	response.Created(w, r, "/v1/accounts/abc/devices/dev-1", map[string]string{"id": "dev-1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/v1/accounts/abc/devices/dev-1", w.Header().Get("Location"))
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodDelete, "/v1/accounts/abc/devices/dev-1", http.NoBody)

	response.NoContent(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestServiceUnavailable(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/accounts/abc/notify", http.NoBody)

	response.ServiceUnavailable(w, r, "push sending is disabled")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeUnavailable, problem.Type)
}
