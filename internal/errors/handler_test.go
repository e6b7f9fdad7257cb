package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "api error passes through",
			err:        ErrRunNotComplete,
			wantStatus: http.StatusConflict,
			wantCode:   "RUN_NOT_COMPLETE",
		},
		{
			name:       "app error is mapped",
			err:        NewSchemaError("project", "missing EventID"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "SCHEMA_ERROR",
		},
		{
			name:       "context deadline",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "TIMEOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			h := NewErrorHandler(slog.New(slog.NewJSONHandler(&logs, nil)))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/x", nil)
			rec := httptest.NewRecorder()
			h.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.ErrorCode)
			assert.Contains(t, logs.String(), "request failed")
		})
	}
}

func TestErrorHandler_NilError(t *testing.T) {
	h := NewErrorHandler(nil)
	rec := httptest.NewRecorder()
	h.HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestErrorHandler_NotFound(t *testing.T) {
	h := NewErrorHandler(nil)
	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
