package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorMessageIncludesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/crawl", nil)
	ctx := context.WithValue(req.Context(), requestIDKey, "req-123")
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	WriteErrorMessage(rec, req, "target_url is required", http.StatusBadRequest, ErrCodeValidation)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "target_url is required", resp.Message)
	assert.Equal(t, string(ErrCodeValidation), resp.Code)
	assert.Equal(t, "req-123", resp.RequestID)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name           string
		write          func(w http.ResponseWriter, r *http.Request)
		expectedStatus int
		expectedCode   ErrorCode
	}{
		{
			name: "bad request",
			write: func(w http.ResponseWriter, r *http.Request) {
				BadRequest(w, r, "Invalid request body")
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   ErrCodeBadRequest,
		},
		{
			name: "validation error",
			write: func(w http.ResponseWriter, r *http.Request) {
				ValidationError(w, r, "task_id is required")
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   ErrCodeValidation,
		},
		{
			name: "not found",
			write: func(w http.ResponseWriter, r *http.Request) {
				NotFound(w, r, "Route not found")
			},
			expectedStatus: http.StatusNotFound,
			expectedCode:   ErrCodeNotFound,
		},
		{
			name: "method not allowed",
			write: func(w http.ResponseWriter, r *http.Request) {
				MethodNotAllowed(w, r)
			},
			expectedStatus: http.StatusMethodNotAllowed,
			expectedCode:   ErrCodeMethodNotAllowed,
		},
		{
			name: "internal error",
			write: func(w http.ResponseWriter, r *http.Request) {
				InternalError(w, r, errors.New("boom"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rec := httptest.NewRecorder()
			tt.write(rec, req)

			require.Equal(t, tt.expectedStatus, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedStatus, resp.Status)
			assert.Equal(t, string(tt.expectedCode), resp.Code)
		})
	}
}
