package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/noaodatalab/datalab-go/internal/gateway"
)

// Language selects the query dialect for a submission.
type Language string

const (
	LangSQL  Language = "sql"
	LangADQL Language = "adql"
)

// DefaultTimeout is the process-wide sync-query timeout request in
// seconds, attached as the X-DL-TimeoutRequest header. The server may
// cap it at its own maximum.
const DefaultTimeout = 120

// clientVersion is reported on every query request.
const clientVersion = "datalab-go/0.1"

// Catalog-specific spatial-indexing function namespaces that are not part
// of standard ADQL. Queries using them are refused before any network
// call.
var disallowedADQLPrefixes = []string{"q3c_", "healpix_", "htm_"}

// ErrNoQuery means Submit was called with empty query text.
var ErrNoQuery = errors.New("query: no query specified")

// Request describes one query submission.
type Request struct {
	Text     string
	Language Language
	Format   string // output format (csv, votable, fits, ...)
	Output   string // "" | local path | vos:// path | mydb:// table
	Async    bool
	Timeout  int // seconds; 0 uses the client default
}

// SubmitResult is the outcome of a Submit call. For async submissions
// JobID carries the server-assigned id; for sync queries Body is the
// complete result payload.
type SubmitResult struct {
	JobID string
	Body  []byte
}

// Client talks to the query manager service. It holds no job state; a
// QueryJob lives server-side and the caller keeps only its id.
type Client struct {
	gw      *gateway.Client
	profile string
	timeout int
	logger  *slog.Logger
}

// NewClient creates a query client using the given gateway and service
// profile.
func NewClient(gw *gateway.Client, profile string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		gw:      gw,
		profile: profile,
		timeout: DefaultTimeout,
		logger:  logger,
	}
}

// SetTimeout changes the default timeout request (seconds) for
// subsequent submissions.
func (c *Client) SetTimeout(seconds int) {
	c.timeout = seconds
}

// Timeout returns the current default timeout request in seconds.
func (c *Client) Timeout() int {
	return c.timeout
}

// Submit sends one query to the service. For req.Async the response body
// is the job id; otherwise it is the result payload itself. A sync
// result is additionally written to req.Output when that names a local
// destination (remote vos:// and mydb:// targets are materialized
// server-side).
func (c *Client) Submit(ctx context.Context, token string, req Request) (*SubmitResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrNoQuery
	}

	if req.Language == LangADQL {
		if err := checkADQLFunctions(req.Text); err != nil {
			return nil, err
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	q := url.Values{}
	q.Set(string(req.Language), req.Text)
	q.Set("ofmt", req.Format)
	q.Set("out", req.Output)
	q.Set("async", strconv.FormatBool(req.Async))
	q.Set("profile", c.profile)

	hdr := http.Header{}
	hdr.Set(gateway.HeaderTimeout, strconv.Itoa(timeout))
	hdr.Set(gateway.HeaderClientVersion, clientVersion)

	resp, err := c.gw.Get(ctx, token, "/query", q, hdr)
	if err != nil {
		return nil, fmt.Errorf("query: submit: %w", err)
	}

	if req.Async {
		jobID := resp.Text()
		c.logger.Info("async query submitted", slog.String("job_id", jobID))

		return &SubmitResult{JobID: jobID}, nil
	}

	if isLocalOutput(req.Output) {
		dest := strings.TrimPrefix(req.Output, "file://")
		if err := os.WriteFile(dest, resp.Body, 0o644); err != nil {
			return nil, fmt.Errorf("query: writing result to %s: %w", dest, err)
		}
	}

	return &SubmitResult{Body: resp.Body}, nil
}

// Status polls the state of an async job once. Any non-200 response
// surfaces as a ServiceError.
func (c *Client) Status(ctx context.Context, token, jobID string) (Status, error) {
	resp, err := c.jobCall(ctx, token, "/status", jobID)
	if err != nil {
		return "", err
	}

	return ParseStatus(resp.Text())
}

// Results fetches the result payload of an async job. It is only
// meaningful once Status reports COMPLETED; an earlier call returns
// whatever partial or error content the server currently has.
func (c *Client) Results(ctx context.Context, token, jobID string) ([]byte, error) {
	resp, err := c.jobCall(ctx, token, "/results", jobID)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// JobError fetches the server-side error text of a failed async job.
func (c *Client) JobError(ctx context.Context, token, jobID string) (string, error) {
	resp, err := c.jobCall(ctx, token, "/error", jobID)
	if err != nil {
		return "", err
	}

	return resp.Text(), nil
}

// Abort requests termination of an async job. Best-effort: failures are
// surfaced, never retried.
func (c *Client) Abort(ctx context.Context, token, jobID string) error {
	_, err := c.jobCall(ctx, token, "/abort", jobID)
	return err
}

// ListTables lists the tables (or one table's schema, when table is
// non-empty) in the user's MyDB.
func (c *Client) ListTables(ctx context.Context, token, table string) (string, error) {
	q := url.Values{}
	q.Set("table", table)
	q.Set("profile", c.profile)

	resp, err := c.gw.Get(ctx, token, "/list", q, nil)
	if err != nil {
		return "", fmt.Errorf("query: listing mydb tables: %w", err)
	}

	return resp.Text(), nil
}

// DropTable removes a table from the user's MyDB.
func (c *Client) DropTable(ctx context.Context, token, table string) error {
	q := url.Values{}
	q.Set("table", table)
	q.Set("profile", c.profile)

	resp, err := c.gw.Get(ctx, token, "/delete", q, nil)
	if err != nil {
		return fmt.Errorf("query: dropping mydb table %s: %w", table, err)
	}

	// The delete endpoint reports failure in-band with a 200 status.
	if strings.HasPrefix(strings.ToLower(resp.Text()), "error") {
		return &gateway.ServiceError{StatusCode: resp.StatusCode, Message: resp.Text()}
	}

	return nil
}

// jobCall issues one GET against a jobid-keyed endpoint.
func (c *Client) jobCall(ctx context.Context, token, path, jobID string) (*gateway.Response, error) {
	q := url.Values{}
	q.Set("jobid", jobID)
	q.Set("profile", c.profile)

	hdr := http.Header{}
	hdr.Set(gateway.HeaderClientVersion, clientVersion)

	resp, err := c.gw.Get(ctx, token, path, q, hdr)
	if err != nil {
		return nil, fmt.Errorf("query: %s job %s: %w", strings.TrimPrefix(path, "/"), jobID, err)
	}

	return resp, nil
}

// checkADQLFunctions enforces the client-side policy against
// catalog-specific function namespaces in ADQL text.
func checkADQLFunctions(text string) error {
	lowered := strings.ToLower(text)
	for _, prefix := range disallowedADQLPrefixes {
		if strings.Contains(lowered, prefix) {
			return fmt.Errorf("query: %s functions are not allowed in ADQL queries: %w",
				strings.TrimSuffix(prefix, "_"), gateway.ErrPermission)
		}
	}

	return nil
}

// isLocalOutput reports whether out names a local filesystem destination
// rather than a remote vos:// or mydb:// target.
func isLocalOutput(out string) bool {
	if out == "" {
		return false
	}

	out = strings.TrimPrefix(out, "file://")

	// Remote targets are "vos:..." or "mydb:..."; anything else,
	// including bare relative paths, is local.
	scheme, _, found := strings.Cut(out, ":")
	if !found {
		return true
	}

	return scheme != "vos" && scheme != "mydb"
}
