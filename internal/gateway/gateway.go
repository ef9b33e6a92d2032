package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Header names understood by the Data Lab services.
const (
	HeaderAuthToken     = "X-DL-AuthToken"
	HeaderUser          = "X-DL-User"
	HeaderClientVersion = "X-DL-ClientVersion"
	HeaderTimeout       = "X-DL-TimeoutRequest"

	userAgent = "datalab-go/0.1"
)

// Client issues authenticated requests against one service base URL.
// It is strictly synchronous: every call blocks until the response is
// fully read or the transport times out. There is no retry and no
// backoff; failure policy lives in the callers.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway for the service rooted at baseURL,
// e.g. "https://datalab.noirlab.edu/query".
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// BaseURL returns the service root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get performs one GET against path (joined to the base URL) with the
// given query parameters, injecting the auth headers for token. A non-2xx
// status or a transport failure returns a *ServiceError; the body of an
// error response is propagated verbatim as the error message.
func (c *Client) Get(ctx context.Context, token, path string, q url.Values, extra http.Header) (*Response, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: creating request: %w", err)
	}

	c.setHeaders(req, token, extra)

	return c.do(req, path)
}

// Download streams the payload at rawURL into w, returning the number of
// bytes written. Used for the second phase of a file get, where the
// storage service has handed back a one-time transfer URL.
func (c *Client) Download(ctx context.Context, token, rawURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("gateway: creating download request: %w", err)
	}

	c.setHeaders(req, token, nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &ServiceError{Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, &ServiceError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &ServiceError{Message: err.Error(), Cause: err}
	}

	c.logger.Debug("download complete", slog.Int64("bytes", n))

	return n, nil
}

// Upload PUTs body to rawURL with the given content type. Used for the
// second phase of a file put. size < 0 means unknown length.
func (c *Client) Upload(ctx context.Context, token, rawURL, contentType string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rawURL, body)
	if err != nil {
		return fmt.Errorf("gateway: creating upload request: %w", err)
	}

	c.setHeaders(req, token, nil)
	req.Header.Set("Content-Type", contentType)

	if size >= 0 {
		req.ContentLength = size
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ServiceError{Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		return &ServiceError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	return nil
}

// do executes the prepared request and normalizes the outcome.
func (c *Client) do(req *http.Request, path string) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ServiceError{Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Message: err.Error(), Cause: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Debug("request failed",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	c.logger.Debug("request succeeded",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return &Response{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// setHeaders applies the standard Data Lab headers plus any extras.
// The X-DL-User header carries the first token segment; the services use
// it for logging only, so a malformed token simply omits it.
func (c *Client) setHeaders(req *http.Request, token string, extra http.Header) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/ascii")

	if token != "" {
		req.Header.Set(HeaderAuthToken, token)

		if user, _, ok := strings.Cut(token, "."); ok {
			req.Header.Set(HeaderUser, user)
		}
	}

	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
}
