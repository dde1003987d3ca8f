// Package baas is the portal's client of the hosted backend: identity and row storage.
package baas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/records"
	"github.com/eduweave/eduweave/core/rest"
	"github.com/eduweave/eduweave/core/session"
	"github.com/eduweave/eduweave/core/user"
)

// Endpoints
const (
	tokenPath     = "/auth/v1/token"
	logoutPath    = "/auth/v1/logout"
	userPath      = "/auth/v1/user"
	authorizePath = "/auth/v1/authorize"
	restPath      = "/rest/v1/"
)

// APIError is a non-2xx answer of the backend.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend: %d %s", e.Status, http.StatusText(e.Status))
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var (
	_ session.IdentityProvider = (*Client)(nil)
	_ records.DataSource       = (*Client)(nil)
)

func NewClient(conf core.BackendConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: conf.RequestTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(conf.URL, "/"),
		apiKey:     conf.APIKey,
		httpClient: httpClient,
	}
}

// do sends a JSON request and decodes a JSON answer into dst (unless nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string, body, dst interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return errorFromResponse(resp)
	}
	if dst == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(dst), "decoding response")
}

// errorFromResponse reads either {"error": msg} or a {field: msg} map. A field map becomes
// a core.ValidationError so that callers can show it next to the form.
func errorFromResponse(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		if msg, ok := payload["error"].(string); ok {
			apiErr.Message = msg
		} else if len(payload) > 0 {
			apiErr.Fields = make(map[string]string, len(payload))
			for k, v := range payload {
				apiErr.Fields[k] = fmt.Sprint(v)
			}
		}
	}
	if resp.StatusCode == http.StatusBadRequest && len(apiErr.Fields) > 0 {
		fields := make([]string, 0, len(apiErr.Fields))
		for f := range apiErr.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		fldErrs := make([]core.FieldError, 0, len(fields))
		for _, f := range fields {
			fldErrs = append(fldErrs, core.FieldError{Field: f, Error: apiErr.Fields[f]})
		}
		return core.NewValidationError(apiErr, fldErrs...)
	}
	return apiErr
}

// Identity

func (c *Client) SignIn(ctx context.Context, email, password string) (session.Credentials, error) {
	var creds session.Credentials
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, tokenPath, url.Values{"grant_type": {"password"}}, "", body, &creds)
	if err != nil {
		return session.Credentials{}, err
	}
	return creds, nil
}

func (c *Client) SignOut(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, logoutPath, nil, token, nil, nil)
}

func (c *Client) GetCurrentUser(ctx context.Context, token string) (user.User, error) {
	var usr user.User
	if err := c.do(ctx, http.MethodGet, userPath, nil, token, nil, &usr); err != nil {
		return user.User{}, err
	}
	return usr, nil
}

// FederatedSignInURL builds the Google authorize address. No request is made.
func (c *Client) FederatedSignInURL(_ context.Context, redirectTo string) (string, error) {
	if redirectTo == "" {
		return "", errors.New("missing redirect address")
	}
	q := url.Values{"provider": {"google"}, "redirect_to": {redirectTo}}
	return c.baseURL + authorizePath + "?" + q.Encode(), nil
}

// Rows

func (c *Client) Select(ctx context.Context, token, collection string, q rest.Query) ([]rest.Row, error) {
	rows := make([]rest.Row, 0)
	if err := c.do(ctx, http.MethodGet, restPath+collection, q.Values(), token, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) Insert(ctx context.Context, token, collection string, rows ...rest.Row) ([]rest.Row, error) {
	out := make([]rest.Row, 0, len(rows))
	if err := c.do(ctx, http.MethodPost, restPath+collection, nil, token, rows, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, token, collection string, q rest.Query, patch rest.Row) ([]rest.Row, error) {
	out := make([]rest.Row, 0)
	if err := c.do(ctx, http.MethodPatch, restPath+collection, q.Values(), token, patch, &out); err != nil {
		return nil, err
	}
	return out, nil
}
