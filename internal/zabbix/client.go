package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"zac/internal/config"
)

const (
	endpointPath   = "/api_jsonrpc.php"
	rpcVersion     = "2.0"
	contentType    = "application/json-rpc"
	maxErrorBody   = 4096
	defaultTimeout = 30 * time.Second
)

var (
	// ErrNotLoggedIn is returned when an authenticated method is called before Login.
	ErrNotLoggedIn = errors.New("zabbix api: not logged in")
	// ErrEmptyResult is returned when a create call responds without ids.
	ErrEmptyResult = errors.New("zabbix api: empty result")
)

// unauthenticated methods must be sent without the auth field.
var unauthenticated = map[string]struct{}{
	"apiinfo.version": {},
	"user.login":      {},
}

// APIError is the JSON-RPC error object returned by the server.
type APIError struct {
	Method  string `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// Error formats method, message and server details.
func (e *APIError) Error() string {
	if e.Data == "" {
		return fmt.Sprintf("zabbix api %s: %s (code %d)", e.Method, e.Message, e.Code)
	}
	return fmt.Sprintf("zabbix api %s: %s %s (code %d)", e.Method, e.Message, e.Data, e.Code)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	Auth    string `json:"auth,omitempty"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *APIError       `json:"error"`
	ID      int             `json:"id"`
}

// Client talks JSON-RPC to the administrative API and owns one session.
// Params: endpoint URL, HTTP client, and logger.
// Returns: sequential API client; not safe for concurrent use.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
	auth     string
	nextID   int
}

// NewClient creates an API client for the configured server URL.
// Params: zabbix config section and logger.
// Returns: client without session; call Login before authenticated methods.
func NewClient(cfg config.ZabbixConfig, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		endpoint: Endpoint(cfg.URL),
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Endpoint appends the JSON-RPC path to a server URL unless already present.
// Params: server URL from configuration.
// Returns: full JSON-RPC endpoint URL.
func Endpoint(serverURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if strings.HasSuffix(trimmed, endpointPath) {
		return trimmed
	}
	return trimmed + endpointPath
}

// HTTPClient exposes the underlying transport client for test mocking.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// LoggedIn reports whether a session token is held.
func (c *Client) LoggedIn() bool {
	return c.auth != ""
}

// Login authenticates and stores the session token.
// Params: context, user name, and password.
// Returns: API or transport error.
func (c *Client) Login(ctx context.Context, user, password string) error {
	var token string
	params := map[string]string{"user": user, "password": password}
	if err := c.Call(ctx, "user.login", params, &token); err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("user.login: %w", ErrEmptyResult)
	}
	c.auth = token
	return nil
}

// APIVersion returns the server API version string.
func (c *Client) APIVersion(ctx context.Context) (string, error) {
	var version string
	if err := c.Call(ctx, "apiinfo.version", map[string]any{}, &version); err != nil {
		return "", err
	}
	return version, nil
}

// Call performs one JSON-RPC round trip and decodes result into out.
// Params: context, method name, params value, and optional result pointer.
// Returns: *APIError for server-side errors, wrapped transport errors otherwise.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	request := rpcRequest{
		JSONRPC: rpcVersion,
		Method:  method,
		Params:  params,
	}
	if _, ok := unauthenticated[method]; !ok {
		if c.auth == "" {
			return fmt.Errorf("%s: %w", method, ErrNotLoggedIn)
		}
		request.Auth = c.auth
	}
	c.nextID++
	request.ID = c.nextID

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	httpRequest.Header.Set("Content-Type", contentType)

	started := time.Now()
	response, err := c.http.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer response.Body.Close()
	c.logger.Debug("zabbix api call", "method", method, "id", request.ID, "status", response.StatusCode, "elapsed", time.Since(started).String())

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return unexpectedHTTPStatusError(method, response)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		decoded.Error.Method = method
		return decoded.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// unexpectedHTTPStatusError formats non-2xx HTTP response with optional body.
// Params: method label and HTTP response.
// Returns: status-only or status+body error.
func unexpectedHTTPStatusError(method string, response *http.Response) error {
	rawBody, readErr := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
	if readErr != nil {
		return fmt.Errorf("%s status=%d (read body error: %w)", method, response.StatusCode, readErr)
	}
	trimmedBody := strings.TrimSpace(string(rawBody))
	if trimmedBody == "" {
		return fmt.Errorf("%s status=%d", method, response.StatusCode)
	}
	return fmt.Errorf("%s status=%d body=%s", method, response.StatusCode, trimmedBody)
}
