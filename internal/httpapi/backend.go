package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Backend makes authenticated JSON calls against one provider API.
// Tests substitute a Backend pointed at an httptest server.
type Backend interface {
	Call(ctx context.Context, method, path string, body any, v any) error
	CallRaw(ctx context.Context, method, path, contentType string, body io.Reader, v any) error
}

// Config is the HTTP implementation of Backend.
type Config struct {
	Name       string
	BaseURL    string
	APIKey     string
	AuthScheme string // "Bearer" or "" for a bare key
	HTTPClient *http.Client
	// CallTimeout bounds each Call; zero means DefaultCallTimeout. CallRaw
	// carries uploads and is bounded by its context only.
	CallTimeout time.Duration
}

const DefaultCallTimeout = time.Minute

// DefaultHTTPClient has no overall deadline so media transfers of any size
// can finish; the transport still bounds connecting and waiting for headers.
var DefaultHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 2 * time.Minute,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
	},
}

func (c Config) Call(ctx context.Context, method, path string, body any, v any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.name(), err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	timeout := c.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.CallRaw(ctx, method, path, contentType, reader, v)
}

func (c Config) CallRaw(ctx context.Context, method, path, contentType string, body io.Reader, v any) error {
	req, err := c.NewRequest(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	return c.Do(req, v)
}

// NewRequest resolves path against BaseURL unless it is already absolute.
func (c Config) NewRequest(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Request, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		target = strings.TrimRight(c.BaseURL, "/") + path
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.name(), err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.APIKey != "" {
		if c.AuthScheme != "" {
			req.Header.Set("Authorization", c.AuthScheme+" "+c.APIKey)
		} else {
			req.Header.Set("Authorization", c.APIKey)
		}
	}
	return req, nil
}

// Do executes req and decodes a JSON response into v. Non-2xx responses
// become *Error.
func (c Config) Do(req *http.Request, v any) error {
	client := c.HTTPClient
	if client == nil {
		client = DefaultHTTPClient
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s %s: %w", c.name(), req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", c.name(), err)
	}

	if res.StatusCode >= 400 {
		apiErr := &Error{Provider: c.name(), Status: res.StatusCode, Path: req.URL.Path}
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(resBody, &body) == nil && (body.Error != "" || body.Message != "") {
			apiErr.Message = firstNonEmpty(body.Error, body.Message)
		} else {
			apiErr.Message = strings.TrimSpace(string(resBody))
		}
		return apiErr
	}

	if v != nil && len(resBody) > 0 {
		if err := json.Unmarshal(resBody, v); err != nil {
			return fmt.Errorf("%s: decode response: %w", c.name(), err)
		}
	}
	return nil
}

func (c Config) name() string {
	if c.Name == "" {
		return "api"
	}
	return c.Name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
