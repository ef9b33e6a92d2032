package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "dltest.99998.99998.test_access"

func TestGetSetsAuthHeaders(t *testing.T) {
	var gotToken, gotUser, gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(HeaderAuthToken)
		gotUser = r.Header.Get(HeaderUser)
		gotQuery = r.URL.RawQuery

		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)

	q := url.Values{}
	q.Set("name", "vos://results")

	resp, err := c.Get(context.Background(), testToken, "/ls", q, nil)
	require.NoError(t, err)

	assert.Equal(t, testToken, gotToken)
	assert.Equal(t, "dltest", gotUser)
	assert.Equal(t, "name=vos%3A%2F%2Fresults", gotQuery)
	assert.Equal(t, "OK", resp.Text())
}

func TestGetExtraHeaders(t *testing.T) {
	var gotTimeout string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTimeout = r.Header.Get(HeaderTimeout)
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)

	extra := http.Header{}
	extra.Set(HeaderTimeout, "300")

	_, err := c.Get(context.Background(), testToken, "/query", nil, extra)
	require.NoError(t, err)
	assert.Equal(t, "300", gotTimeout)
}

func TestGetEmptyTokenOmitsHeaders(t *testing.T) {
	var sawToken bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawToken = r.Header[HeaderAuthToken]
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)

	_, err := c.Get(context.Background(), "", "/ping", nil, nil)
	require.NoError(t, err)
	assert.False(t, sawToken)
}

func TestGetServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Error: no such node\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)

	resp, err := c.Get(context.Background(), testToken, "/stat", nil, nil)
	require.Error(t, err)
	assert.Nil(t, resp)

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "Error: no such node", se.Message)

	assert.True(t, errors.Is(err, ErrService))
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.False(t, IsStatus(err, http.StatusInternalServerError))
}

func TestGetTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, http.DefaultClient, nil)

	_, err := c.Get(context.Background(), testToken, "/ping", nil, nil)
	require.Error(t, err)

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, se.StatusCode)
	assert.Contains(t, err.Error(), "transport")
}

func TestDownload(t *testing.T) {
	payload := strings.Repeat("x", 4096)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), testToken, srv.URL+"/xfer/abc", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, buf.String())
}

func TestDownloadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)

	var buf bytes.Buffer
	_, err := c.Download(context.Background(), testToken, srv.URL+"/xfer/abc", &buf)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusGone))
	assert.Zero(t, buf.Len())
}

func TestUpload(t *testing.T) {
	var gotBody []byte
	var gotMethod, gotCT string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)

	body := strings.NewReader("file contents")
	err := c.Upload(context.Background(), testToken, srv.URL+"/xfer/abc", "application/octet-stream", body, int64(body.Len()))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "application/octet-stream", gotCT)
	assert.Equal(t, "file contents", string(gotBody))
}

func TestUploadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)

	err := c.Upload(context.Background(), testToken, srv.URL+"/xfer/abc", "application/octet-stream", strings.NewReader("x"), 1)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusInsufficientStorage))
}

func TestResponseKind(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        BodyKind
	}{
		{"json", "application/json", KindJSON},
		{"json with charset", "application/json; charset=utf-8", KindJSON},
		{"plain text", "text/plain", KindText},
		{"ascii", "text/ascii", KindText},
		{"missing header", "", KindText},
		{"fits payload", "application/fits", KindBinary},
		{"octet stream", "application/octet-stream", KindBinary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Response{ContentType: tt.contentType}
			assert.Equal(t, tt.want, r.Kind())
		})
	}
}

func TestResponseText(t *testing.T) {
	r := &Response{Body: []byte("  OK\n")}
	assert.Equal(t, "OK", r.Text())
}

func TestServiceErrorMessage(t *testing.T) {
	se := &ServiceError{StatusCode: 500, Message: "boom"}
	assert.Equal(t, "datalab: HTTP 500: boom", se.Error())

	transport := &ServiceError{Message: "connection refused", Cause: errors.New("connection refused")}
	assert.Equal(t, "datalab: transport: connection refused", transport.Error())
}
