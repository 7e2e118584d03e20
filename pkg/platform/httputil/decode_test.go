package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type revokeBody struct {
	Reason string `json:"reason" validate:"max=16"`
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestDecodeAndValidate(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantStatus int
		wantCode   string
	}{
		{name: "valid", body: `{"reason":"forged"}`, wantOK: true},
		{name: "malformed json", body: `{"reason":`, wantStatus: http.StatusBadRequest, wantCode: "bad_request"},
		{name: "unknown field", body: `{"why":"x"}`, wantStatus: http.StatusBadRequest, wantCode: "bad_request"},
		{name: "fails validation", body: `{"reason":"` + strings.Repeat("x", 17) + `"}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/certificates/CERT-1/revoke", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			req, ok := DecodeAndValidate[revokeBody](w, r, logger)

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, "forged", req.Reason)
				return
			}
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeResponse(t, w).Error)
		})
	}
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(`{"reason":"`+strings.Repeat("x", 100)+`"}`))
	w := httptest.NewRecorder()
	r.Body = http.MaxBytesReader(w, r.Body, 10)

	_, ok := DecodeJSON[revokeBody](w, r, slog.New(slog.DiscardHandler))

	assert.False(t, ok)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
