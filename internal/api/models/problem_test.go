package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushgate/pushgate/internal/api/models"
)

func TestProblem_NewProblem(t *testing.T) {
	p := models.NewProblem(
		models.ProblemTypeValidation,
		"Validation error",
		http.StatusBadRequest,
		"req_test123",
	)

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, "Validation error", p.Title)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Empty(t, p.Detail)
	assert.Empty(t, p.Instance)
	assert.Nil(t, p.Errors)
}

func TestProblem_NewBadRequest(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid notify request", []models.FieldError{
		{Field: "command", Message: "required", Code: "REQUIRED"},
		{Field: "data.id", Message: "must be a string", Code: "WRONG_TYPE"},
	})

	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "invalid notify request", p.Detail)
	require.Len(t, p.Errors, 2)
	assert.Equal(t, "command", p.Errors[0].Field)
	assert.Equal(t, "REQUIRED", p.Errors[0].Code)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid input", []models.FieldError{
		{Field: "name", Message: "required"},
	})
	p.Instance = "/v1/accounts/abc/devices"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var decoded models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	assert.Equal(t, models.ProblemTypeValidation, decoded.Type)
	assert.Equal(t, "/v1/accounts/abc/devices", decoded.Instance)
	assert.Equal(t, "req_test123", decoded.TraceID)
	require.Len(t, decoded.Errors, 1)
	assert.Equal(t, "name", decoded.Errors[0].Field)
}

func TestProblem_StatusConstructors(t *testing.T) {
	tests := []struct {
		problem *models.Problem
		status  int
		typ     string
	}{
		{models.NewUnauthorized("req_1", "bad token"), http.StatusUnauthorized, models.ProblemTypeUnauthorized},
		{models.NewNotFound("req_2", "no such device"), http.StatusNotFound, models.ProblemTypeNotFound},
		{models.NewTooManyRequests("req_3", "slow down"), http.StatusTooManyRequests, models.ProblemTypeTooManyRequests},
		{models.NewInternalError("req_4", "boom"), http.StatusInternalServerError, models.ProblemTypeInternal},
		{models.NewServiceUnavailable("req_5", "push disabled"), http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.problem.Status)
		assert.Equal(t, tt.typ, tt.problem.Type)
	}
}
