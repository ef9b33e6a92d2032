package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noaodatalab/datalab-go/internal/storage"
)

func TestReportBatch_SingleSuccess(t *testing.T) {
	oldQuiet := flagQuiet
	t.Cleanup(func() { flagQuiet = oldQuiet })
	flagQuiet = true

	res := &storage.BatchResult{Entries: []storage.Outcome{
		{Source: "vos://a.fits", Dest: "a.fits"},
	}}

	assert.NoError(t, reportBatch(res))
}

func TestReportBatch_AllSucceed(t *testing.T) {
	res := &storage.BatchResult{Entries: []storage.Outcome{
		{Source: "vos://a.fits"},
		{Source: "vos://b.fits"},
	}}

	assert.NoError(t, reportBatch(res))
}

func TestReportBatch_PartialFailure(t *testing.T) {
	// Every entry is reported; the summary error counts the failures.
	res := &storage.BatchResult{Entries: []storage.Outcome{
		{Source: "vos://a.fits"},
		{Source: "vos://b.fits", Err: errors.New("permission denied")},
		{Source: "vos://c.fits"},
	}}

	err := reportBatch(res)
	require.Error(t, err)
	assert.Equal(t, "1 of 3 files failed", err.Error())
}
