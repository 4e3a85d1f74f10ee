package zabbix

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"zac/internal/config"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "http://zabbix.test/zabbix"

type capturedRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Auth    *string         `json:"auth"`
	ID      int             `json:"id"`
}

func newMockedClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	client := NewClient(config.ZabbixConfig{URL: testURL, TimeoutSec: 5}, nil)
	transport := httpmock.NewMockTransport()
	client.HTTPClient().Transport = transport
	return client, transport
}

// rpcResponder answers with result and records every decoded request.
func rpcResponder(t *testing.T, seen *[]capturedRequest, result any) httpmock.Responder {
	return func(request *http.Request) (*http.Response, error) {
		assert.Equal(t, "application/json-rpc", request.Header.Get("Content-Type"))
		body, err := io.ReadAll(request.Body)
		require.NoError(t, err)
		var captured capturedRequest
		require.NoError(t, json.Unmarshal(body, &captured))
		*seen = append(*seen, captured)
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"jsonrpc": "2.0",
			"result":  result,
			"id":      captured.ID,
		})
	}
}

func TestEndpoint(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://localhost":                        "http://localhost/api_jsonrpc.php",
		"http://localhost/zabbix/":                "http://localhost/zabbix/api_jsonrpc.php",
		" http://localhost/api_jsonrpc.php ":      "http://localhost/api_jsonrpc.php",
		"https://z.example.com/zabbix":            "https://z.example.com/zabbix/api_jsonrpc.php",
		"https://z.example.com/api_jsonrpc.php/ ": "https://z.example.com/api_jsonrpc.php",
	}
	for input, want := range cases {
		assert.Equal(t, want, Endpoint(input), "input %q", input)
	}
}

func TestLoginStoresTokenAndSendsAuth(t *testing.T) {
	t.Parallel()

	client, transport := newMockedClient(t)
	var seen []capturedRequest
	transport.RegisterResponder(http.MethodPost, testURL+"/api_jsonrpc.php", rpcResponder(t, &seen, "token-1"))

	require.False(t, client.LoggedIn())
	require.NoError(t, client.Login(context.Background(), "Admin", "zabbix"))
	require.True(t, client.LoggedIn())

	// Any authenticated call now carries the session token.
	err := client.Call(context.Background(), "host.get", map[string]any{}, nil)
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "user.login", seen[0].Method)
	assert.Nil(t, seen[0].Auth, "login must not carry auth")
	assert.JSONEq(t, `{"user":"Admin","password":"zabbix"}`, string(seen[0].Params))
	assert.Equal(t, "2.0", seen[0].JSONRPC)

	assert.Equal(t, "host.get", seen[1].Method)
	require.NotNil(t, seen[1].Auth)
	assert.Equal(t, "token-1", *seen[1].Auth)
	assert.Greater(t, seen[1].ID, seen[0].ID)
}

func TestAPIVersionIsUnauthenticated(t *testing.T) {
	t.Parallel()

	client, transport := newMockedClient(t)
	var seen []capturedRequest
	transport.RegisterResponder(http.MethodPost, testURL+"/api_jsonrpc.php", rpcResponder(t, &seen, "3.4.15"))

	version, err := client.APIVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.4.15", version)
	require.Len(t, seen, 1)
	assert.Nil(t, seen[0].Auth)
}

func TestCallBeforeLoginFails(t *testing.T) {
	t.Parallel()

	client, transport := newMockedClient(t)
	_, err := client.MediaTypes(context.Background())
	require.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestLoginEmptyTokenFails(t *testing.T) {
	t.Parallel()

	client, transport := newMockedClient(t)
	var seen []capturedRequest
	transport.RegisterResponder(http.MethodPost, testURL+"/api_jsonrpc.php", rpcResponder(t, &seen, ""))

	err := client.Login(context.Background(), "Admin", "zabbix")
	require.ErrorIs(t, err, ErrEmptyResult)
	assert.False(t, client.LoggedIn())
}

func TestCallMapsAPIError(t *testing.T) {
	t.Parallel()

	client, transport := newMockedClient(t)
	transport.RegisterResponder(http.MethodPost, testURL+"/api_jsonrpc.php",
		httpmock.NewStringResponder(http.StatusOK, `{"jsonrpc":"2.0","error":{"code":-32602,"message":"Invalid params.","data":"Login name or password is incorrect."},"id":1}`))

	err := client.Login(context.Background(), "Admin", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "user.login", apiErr.Method)
	assert.Equal(t, -32602, apiErr.Code)
	assert.Equal(t, "Login name or password is incorrect.", apiErr.Data)
	assert.Contains(t, err.Error(), "user.login")
	assert.Contains(t, err.Error(), "Login name or password is incorrect.")
	assert.False(t, client.LoggedIn())
}

func TestCallHTTPStatusError(t *testing.T) {
	t.Parallel()

	client, transport := newMockedClient(t)
	transport.RegisterResponder(http.MethodPost, testURL+"/api_jsonrpc.php",
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream down\n"))

	_, err := client.APIVersion(context.Background())
	require.Error(t, err)
	assert.EqualError(t, err, "apiinfo.version status=502 body=upstream down")
}

func TestCallTransportError(t *testing.T) {
	t.Parallel()

	client, transport := newMockedClient(t)
	transport.RegisterResponder(http.MethodPost, testURL+"/api_jsonrpc.php",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := client.APIVersion(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCreateReturnsFirstID(t *testing.T) {
	t.Parallel()

	client, transport := newMockedClient(t)
	client.auth = "token"
	var seen []capturedRequest
	transport.RegisterResponder(http.MethodPost, testURL+"/api_jsonrpc.php",
		rpcResponder(t, &seen, map[string][]string{"mediatypeids": {"5"}}))

	id, err := client.CreateMediaType(context.Background(), MediaTypeCreate{
		Type:            MediaTypeScript,
		Description:     "Alerta",
		ExecPath:        "zabbix-alerta",
		ExecParams:      "{ALERT.SENDTO}\n{ALERT.SUBJECT}\n{ALERT.MESSAGE}\n",
		MaxAttempts:     "5",
		AttemptInterval: "5s",
	})
	require.NoError(t, err)
	assert.Equal(t, "5", id)

	require.Len(t, seen, 1)
	var sent map[string]any
	require.NoError(t, json.Unmarshal(seen[0].Params, &sent))
	assert.EqualValues(t, 1, sent["type"])
	assert.Equal(t, "zabbix-alerta", sent["exec_path"])
}

func TestCreateWithoutIDs(t *testing.T) {
	t.Parallel()

	client, transport := newMockedClient(t)
	client.auth = "token"
	var seen []capturedRequest
	transport.RegisterResponder(http.MethodPost, testURL+"/api_jsonrpc.php",
		rpcResponder(t, &seen, map[string][]string{"actionids": {}}))

	_, err := client.CreateAction(context.Background(), ActionCreate{Name: "Forward to Alerta"})
	require.ErrorIs(t, err, ErrEmptyResult)
}

func TestUpdateUserMediaPayload(t *testing.T) {
	t.Parallel()

	client, transport := newMockedClient(t)
	client.auth = "token"
	var seen []capturedRequest
	transport.RegisterResponder(http.MethodPost, testURL+"/api_jsonrpc.php",
		rpcResponder(t, &seen, map[string][]string{"userids": {"1"}}))

	err := client.UpdateUserMedia(context.Background(), "1", Media{
		MediaTypeID: "5",
		SendTo:      "http://alerta:8080/api;key",
		Active:      StatusEnabled,
		Severity:    SeverityAll,
		Period:      "1-7,00:00-24:00",
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "user.updatemedia", seen[0].Method)
	assert.JSONEq(t, `{
		"users": {"userid": "1"},
		"medias": [{
			"mediatypeid": "5",
			"sendto": "http://alerta:8080/api;key",
			"active": 0,
			"severity": 63,
			"period": "1-7,00:00-24:00"
		}]
	}`, string(seen[0].Params))
}

func TestActionsFilterByName(t *testing.T) {
	t.Parallel()

	client, transport := newMockedClient(t)
	client.auth = "token"
	var seen []capturedRequest
	transport.RegisterResponder(http.MethodPost, testURL+"/api_jsonrpc.php",
		rpcResponder(t, &seen, []map[string]string{{"actionid": "7", "name": "Forward to Alerta"}}))

	actions, err := client.Actions(context.Background(), "Forward to Alerta")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "7", actions[0].ID)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(seen[0].Params, &sent))
	assert.Equal(t, map[string]any{"name": []any{"Forward to Alerta"}}, sent["filter"])
}

func TestDeleteSendsIDArray(t *testing.T) {
	t.Parallel()

	client, transport := newMockedClient(t)
	client.auth = "token"
	var seen []capturedRequest
	transport.RegisterResponder(http.MethodPost, testURL+"/api_jsonrpc.php",
		rpcResponder(t, &seen, map[string][]string{"triggerids": {"13"}}))

	require.NoError(t, client.DeleteTriggers(context.Background(), "13"))
	require.NoError(t, client.DeleteItems(context.Background(), "12"))
	require.Len(t, seen, 2)
	assert.JSONEq(t, `["13"]`, string(seen[0].Params))
	assert.Equal(t, "item.delete", seen[1].Method)
	assert.JSONEq(t, `["12"]`, string(seen[1].Params))
}

func TestAPIErrorWithoutData(t *testing.T) {
	t.Parallel()

	err := &APIError{Method: "host.get", Code: -32500, Message: "Application error."}
	assert.Equal(t, "zabbix api host.get: Application error. (code -32500)", err.Error())
}
