package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/charters/internal/model"
	"github.com/alfredjeanlab/charters/internal/presence"
)

// HTTPClient implements CharterClient using the charters HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func charterPath(id string) string {
	return "/v1/charters/" + url.PathEscape(id)
}

// --- Charters ---

func (c *HTTPClient) CreateCharter(ctx context.Context, req *CreateCharterRequest) (*CreateCharterResponse, error) {
	var resp CreateCharterResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/charters", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetCharter(ctx context.Context, id string) (*model.Charter, error) {
	var ch model.Charter
	if err := c.doJSON(ctx, http.MethodGet, charterPath(id), nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *HTTPClient) ListCharters(ctx context.Context) ([]*model.Charter, error) {
	var resp struct {
		Charters []*model.Charter `json:"charters"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/charters", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Charters, nil
}

func (c *HTTPClient) UpdateCharter(ctx context.Context, id string, req *UpdateCharterRequest) (*UpdateCharterResponse, error) {
	var resp UpdateCharterResponse
	if err := c.doJSON(ctx, http.MethodPut, charterPath(id), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Sections ---

func (c *HTTPClient) SectionNames(ctx context.Context) ([]model.SectionName, error) {
	var resp struct {
		Sections []model.SectionName `json:"sections"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sections", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sections, nil
}

func (c *HTTPClient) ListSections(ctx context.Context, charterID string) ([]*model.CharterSection, error) {
	var resp struct {
		Sections []*model.CharterSection `json:"sections"`
	}
	if err := c.doJSON(ctx, http.MethodGet, charterPath(charterID)+"/sections", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sections, nil
}

func (c *HTTPClient) GetSection(ctx context.Context, charterID, name string) (*model.CharterSection, error) {
	var sec model.CharterSection
	path := charterPath(charterID) + "/sections/" + url.PathEscape(name)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &sec); err != nil {
		return nil, err
	}
	return &sec, nil
}

// --- Versions ---

func (c *HTTPClient) ListVersions(ctx context.Context, charterID string, req *ListVersionsRequest) (*ListVersionsResponse, error) {
	q := url.Values{}
	if req != nil {
		if req.Limit > 0 {
			q.Set("limit", strconv.Itoa(req.Limit))
		}
		if req.Offset > 0 {
			q.Set("offset", strconv.Itoa(req.Offset))
		}
		if req.Order != "" {
			q.Set("order", req.Order)
		}
	}

	path := charterPath(charterID) + "/versions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListVersionsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetVersion(ctx context.Context, charterID string, version int) (*model.CharterVersion, error) {
	var v model.CharterVersion
	path := charterPath(charterID) + "/versions/" + strconv.Itoa(version)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// --- Activity ---

func (c *HTTPClient) Editors(ctx context.Context, charterID string) ([]presence.Entry, error) {
	var resp struct {
		Editors []presence.Entry `json:"editors"`
	}
	if err := c.doJSON(ctx, http.MethodGet, charterPath(charterID)+"/editors", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Editors, nil
}

func (c *HTTPClient) GetEvents(ctx context.Context, charterID string, limit int) ([]*model.Event, error) {
	path := charterPath(charterID) + "/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// FieldError is one schema violation reported by the server.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError represents an error response from the server. Kind carries the
// server's error kind (e.g. "NotFound", "ValidationError") when it sent one.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
	Retryable  bool
	Fields     []FieldError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether err is a server error that may be repeated
// unchanged.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

// decodeAPIError understands both error shapes the server sends: the plain
// {"error": msg} and the charter write form {"error": kind, "message": msg}.
func decodeAPIError(status int, body []byte) *APIError {
	var errResp struct {
		Error     string       `json:"error"`
		Message   string       `json:"message"`
		Retryable bool         `json:"retryable"`
		Fields    []FieldError `json:"fields"`
	}
	if json.Unmarshal(body, &errResp) != nil || errResp.Error == "" {
		return &APIError{StatusCode: status, Message: string(body)}
	}
	apiErr := &APIError{
		StatusCode: status,
		Message:    errResp.Error,
		Retryable:  errResp.Retryable,
		Fields:     errResp.Fields,
	}
	if errResp.Message != "" {
		apiErr.Kind = errResp.Error
		apiErr.Message = errResp.Message
	}
	return apiErr
}
