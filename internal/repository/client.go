package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrPlatformUnavailable wraps transport failures talking to the learning platform.
var ErrPlatformUnavailable = errors.New("learning platform unavailable")

// APIError is a non-2xx answer from the learning platform.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("platform request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("platform request failed with status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the platform.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type errorResponse struct {
	Error   any    `json:"error"`
	Message string `json:"message"`
}

// PlatformClient talks JSON over HTTP to the learning platform. The exam,
// submission and certificate repositories share one client.
type PlatformClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewPlatformClient creates a new PlatformClient. A nil httpClient gets a
// client with the given timeout.
func NewPlatformClient(baseURL, token string, timeout time.Duration, httpClient *http.Client, log zerolog.Logger) *PlatformClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &PlatformClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		log:        log.With().Str("component", "platform_client").Logger(),
	}
}

func pathJoin(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

func (c *PlatformClient) doJSON(ctx context.Context, method, path string, requestBody, responseBody any) (int, error) {
	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	contentType := ""
	if requestBody != nil {
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, responseBody)
}

func (c *PlatformClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, responseBody any) (int, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	request.Header.Set("Accept", "application/json")
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %v", ErrPlatformUnavailable, err)
	}
	defer response.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", response.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Platform request")

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: response.StatusCode}
		var payload errorResponse
		if err := json.NewDecoder(response.Body).Decode(&payload); err == nil {
			switch v := payload.Error.(type) {
			case string:
				apiErr.Message = v
			case map[string]any:
				if msg, ok := v["message"].(string); ok {
					apiErr.Message = msg
				}
			}
			if apiErr.Message == "" {
				apiErr.Message = payload.Message
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(response.StatusCode)
		}
		return response.StatusCode, apiErr
	}

	if responseBody == nil || response.StatusCode == http.StatusNoContent {
		return response.StatusCode, nil
	}
	if err := json.NewDecoder(response.Body).Decode(responseBody); err != nil {
		return response.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return response.StatusCode, nil
}
