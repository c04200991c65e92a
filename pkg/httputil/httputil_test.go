package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	JSON(rr, http.StatusOK, map[string]string{"message": "ok"})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"ok"}`, rr.Body.String())
}

func TestError(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, http.StatusBadRequest, "missing field")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, body.Code)
	assert.Equal(t, "missing field", body.Message)
}

func TestBindOrError(t *testing.T) {
	type payload struct {
		Command string `json:"command"`
	}

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(`{"command":"relay1_on"}`))
		rr := httptest.NewRecorder()

		var dst payload
		require.NoError(t, BindOrError(req, rr, &dst))
		assert.Equal(t, "relay1_on", dst.Command)
	})

	t.Run("malformed body answers 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(`{`))
		rr := httptest.NewRecorder()

		var dst payload
		require.Error(t, BindOrError(req, rr, &dst))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
