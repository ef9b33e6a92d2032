package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noaodatalab/datalab-go/internal/auth"
	"github.com/noaodatalab/datalab-go/internal/gateway"
	"github.com/noaodatalab/datalab-go/internal/query"
)

// setTestApp installs an app context whose query client talks to the
// given handler, restoring the previous globals on cleanup.
func setTestApp(t *testing.T, handler http.HandlerFunc) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	oldApp, oldQuiet := app, flagQuiet
	t.Cleanup(func() { app, flagQuiet = oldApp, oldQuiet })

	flagQuiet = true

	gw := gateway.NewClient(srv.URL, srv.Client(), nil)

	app = &appContext{
		logger: slog.Default(),
		query:  query.NewClient(gw, "default", nil),
		token:  string(auth.AnonToken),
	}
}

func TestWaitForJob_CompletesAfterPolling(t *testing.T) {
	var polls int

	setTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)

		polls++
		if polls < 2 {
			fmt.Fprint(w, "EXECUTING")
			return
		}

		fmt.Fprint(w, "COMPLETED")
	})

	status, err := waitForJob(context.Background(), "job123", 1, 60)
	require.NoError(t, err)
	assert.Equal(t, query.StatusCompleted, status)
	assert.Equal(t, 2, polls)
}

func TestWaitForJob_AbortsAtTimeout(t *testing.T) {
	// The job never finishes; once the elapsed time passes the cap the
	// loop aborts the job and reports the timeout.
	var aborted bool

	setTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			fmt.Fprint(w, "EXECUTING")
		case "/abort":
			aborted = true
			fmt.Fprint(w, "OK")
		default:
			t.Fatalf("unexpected request to %s", r.URL.Path)
		}
	})

	_, err := waitForJob(context.Background(), "job123", 1, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "job123")
	assert.True(t, aborted)
}

func TestWaitForJob_ErrorStateIsTerminal(t *testing.T) {
	setTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)
		fmt.Fprint(w, "ERROR")
	})

	status, err := waitForJob(context.Background(), "job123", 1, 60)
	require.NoError(t, err)
	assert.Equal(t, query.StatusError, status)
}

func TestWaitForJob_StatusFailureStopsPolling(t *testing.T) {
	setTestApp(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Error: no such job", http.StatusNotFound)
	})

	_, err := waitForJob(context.Background(), "nosuch", 1, 60)
	require.Error(t, err)
	assert.True(t, gateway.IsStatus(err, http.StatusNotFound))
}
