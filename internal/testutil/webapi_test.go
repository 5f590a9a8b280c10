package testutil

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeWebAPI_Routes(t *testing.T) {
	f := NewFakeWebAPI(t)
	f.Handle(http.MethodGet, "/api/data/v9.2/accounts", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"value": []any{}})
	})

	req, err := http.NewRequest(http.MethodGet, f.URL+"/api/data/v9.2/accounts(1)?$select=name", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer x")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(f.URL+"/api/data/v9.2/contacts", "application/json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "0x80060888", body.Error.Code)

	reqs := f.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/api/data/v9.2/accounts(1)", reqs[0].Path)
	assert.Equal(t, "$select=name", reqs[0].RawQuery)
	assert.Equal(t, "Bearer x", reqs[0].Authorization)
	assert.Equal(t, `{"a":1}`, string(reqs[1].Body))
}

func TestFakeWebAPI_TokenEndpoint(t *testing.T) {
	f := NewFakeWebAPI(t)

	resp, err := http.Post(f.URL+"/tenant/oauth2/v2.0/token", "application/x-www-form-urlencoded", strings.NewReader("grant_type=client_credentials"))
	require.NoError(t, err)
	defer resp.Body.Close()

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	assert.Equal(t, TestToken, tok.AccessToken)
	assert.Equal(t, 1, f.TokenCalls())
	assert.Empty(t, f.Requests(), "token requests are not recorded")
}
