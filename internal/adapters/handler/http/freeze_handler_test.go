package http_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

type freezeBody struct {
	Purchased *bool               `json:"purchased"`
	Consumed  *bool               `json:"consumed"`
	Balance   domain.FreezeBalance `json:"balance"`
}

func decodeFreeze(t *testing.T, raw []byte) freezeBody {
	t.Helper()
	var body freezeBody
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestFreezeFlow(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/api/v1/freeze", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"diamonds":0`)

	w = app.do(t, http.MethodPost, "/api/v1/freeze/diamonds", "user-1", `{"amount": 100}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 100, decodeFreeze(t, w.Body.Bytes()).Balance.Diamonds)

	w = app.do(t, http.MethodPost, "/api/v1/freeze/purchase", "user-1", `{"days": 2, "cost": 60}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeFreeze(t, w.Body.Bytes())
	require.NotNil(t, body.Purchased)
	assert.True(t, *body.Purchased)
	assert.Equal(t, 40, body.Balance.Diamonds)
	assert.Equal(t, 2, body.Balance.FreezeDays)

	w = app.do(t, http.MethodPost, "/api/v1/freeze/purchase", "user-1", `{"days": 2, "cost": 60}`)
	require.Equal(t, http.StatusOK, w.Code, "insufficient diamonds is not an error")
	body = decodeFreeze(t, w.Body.Bytes())
	assert.False(t, *body.Purchased)
	assert.Equal(t, 40, body.Balance.Diamonds)

	w = app.do(t, http.MethodPost, "/api/v1/freeze/consume", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeFreeze(t, w.Body.Bytes())
	require.NotNil(t, body.Consumed)
	assert.True(t, *body.Consumed)
	assert.Equal(t, 1, body.Balance.FreezeDays)

	w = app.do(t, http.MethodGet, "/api/v1/freeze", "user-2", "")
	assert.Contains(t, w.Body.String(), `"freeze_days":0`, "balances are per user")
}

func TestFreezeValidation(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"negative diamonds", "/api/v1/freeze/diamonds", `{"amount": -5}`},
		{"zero diamonds", "/api/v1/freeze/diamonds", `{"amount": 0}`},
		{"zero days", "/api/v1/freeze/purchase", `{"days": 0, "cost": 10}`},
		{"negative cost", "/api/v1/freeze/purchase", `{"days": 1, "cost": -10}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(t, http.MethodPost, tt.path, "user-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}
