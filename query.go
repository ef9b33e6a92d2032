package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/noaodatalab/datalab-go/internal/jobs"
	"github.com/noaodatalab/datalab-go/internal/query"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run an SQL or ADQL query",
		Long: `Run a query against the Data Lab query manager.

Synchronous queries print (or save) the result directly. With --async the
server runs the query as a job and the job id is printed; add --wait to
poll until the job reaches a terminal state and then fetch the results.`,
		Args: cobra.NoArgs,
		RunE: runQuery,
	}

	cmd.Flags().String("sql", "", "SQL query text")
	cmd.Flags().String("adql", "", "ADQL query text")
	cmd.Flags().String("fmt", "csv", "result format (csv, votable, fits, ...)")
	cmd.Flags().String("out", "", "output target: local path, vos:// path, or mydb:// table")
	cmd.Flags().Bool("async", false, "submit as an asynchronous job")
	cmd.Flags().Bool("wait", false, "with --async, poll until the job finishes")
	cmd.Flags().Int("poll", 5, "poll interval in seconds for --wait")
	cmd.Flags().Int("timeout", 0, "query timeout request in seconds (default from config)")

	return cmd
}

func newQstatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qstatus",
		Short: "Poll the status of an async query job",
		Args:  cobra.NoArgs,
		RunE:  runQstatus,
	}

	cmd.Flags().String("jobId", "", "async job id")
	_ = cmd.MarkFlagRequired("jobId")

	return cmd
}

func newQresultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qresults",
		Short: "Fetch the results of a completed async query job",
		Args:  cobra.NoArgs,
		RunE:  runQresults,
	}

	cmd.Flags().String("jobId", "", "async job id")
	cmd.Flags().String("fname", "", "write results to this file instead of stdout")
	_ = cmd.MarkFlagRequired("jobId")

	return cmd
}

func newQabortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qabort",
		Short: "Abort a running async query job",
		Args:  cobra.NoArgs,
		RunE:  runQabort,
	}

	cmd.Flags().String("jobId", "", "async job id")
	_ = cmd.MarkFlagRequired("jobId")

	return cmd
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List async query jobs submitted from this machine",
		Args:  cobra.NoArgs,
		RunE:  runJobs,
	}

	cmd.Flags().Int("limit", 20, "maximum number of jobs to show (0 for all)")

	return cmd
}

func newMyDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mydb",
		Short: "Manage tables in your MyDB",
	}

	list := &cobra.Command{
		Use:   "list [table]",
		Short: "List MyDB tables, or one table's schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			table := ""
			if len(args) == 1 {
				table = args[0]
			}

			out, err := app.query.ListTables(context.Background(), app.token, table)
			if err != nil {
				return err
			}

			fmt.Println(out)

			return nil
		},
	}

	drop := &cobra.Command{
		Use:   "drop <table>",
		Short: "Drop a MyDB table",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := app.query.DropTable(context.Background(), app.token, args[0]); err != nil {
				return err
			}

			statusf("Table %s dropped.\n", args[0])

			return nil
		},
	}

	cmd.AddCommand(list)
	cmd.AddCommand(drop)

	return cmd
}

func runQuery(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	sqlText, _ := cmd.Flags().GetString("sql")
	adqlText, _ := cmd.Flags().GetString("adql")
	format, _ := cmd.Flags().GetString("fmt")
	out, _ := cmd.Flags().GetString("out")
	async, _ := cmd.Flags().GetBool("async")
	wait, _ := cmd.Flags().GetBool("wait")
	pollSec, _ := cmd.Flags().GetInt("poll")
	timeout, _ := cmd.Flags().GetInt("timeout")

	if (sqlText == "") == (adqlText == "") {
		return fmt.Errorf("exactly one of --sql or --adql is required")
	}

	req := query.Request{
		Text:     sqlText,
		Language: query.LangSQL,
		Format:   format,
		Output:   out,
		Async:    async,
		Timeout:  timeout,
	}
	if adqlText != "" {
		req.Text = adqlText
		req.Language = query.LangADQL
	}

	result, err := app.query.Submit(ctx, app.token, req)
	if err != nil {
		return err
	}

	if !async {
		if out == "" {
			os.Stdout.Write(result.Body)
		} else {
			statusf("Results written to %s.\n", out)
		}

		return nil
	}

	recordJob(ctx, jobs.Record{
		JobID:    result.JobID,
		Query:    req.Text,
		Language: string(req.Language),
		Format:   format,
		Output:   out,
	})

	if !wait {
		fmt.Println(result.JobID)
		return nil
	}

	status, err := waitForJob(ctx, result.JobID, pollSec, app.query.Timeout())
	if err != nil {
		return err
	}

	updateJob(ctx, result.JobID, string(status))

	switch status {
	case query.StatusCompleted:
		body, err := app.query.Results(ctx, app.token, result.JobID)
		if err != nil {
			return err
		}

		os.Stdout.Write(body)

		return nil
	case query.StatusError:
		msg, err := app.query.JobError(ctx, app.token, result.JobID)
		if err != nil {
			return err
		}

		return fmt.Errorf("job %s failed: %s", result.JobID, msg)
	default:
		return fmt.Errorf("job %s finished as %s", result.JobID, status)
	}
}

// waitForJob is the caller-driven poll loop: one blocking status call
// per interval, stopping at a terminal state or when the elapsed time
// passes the query timeout (in which case the job is aborted).
func waitForJob(ctx context.Context, jobID string, pollSec, timeoutSec int) (query.Status, error) {
	if pollSec < 1 {
		pollSec = 1
	}

	elapsed := 0

	for {
		status, err := app.query.Status(ctx, app.token, jobID)
		if err != nil {
			return "", err
		}

		if status.Terminal() {
			return status, nil
		}

		if elapsed > timeoutSec {
			if abortErr := app.query.Abort(ctx, app.token, jobID); abortErr != nil {
				app.logger.Warn("abort after timeout failed", "job_id", jobID, "error", abortErr)
			}

			return "", fmt.Errorf("query timeout (%d sec) exceeded waiting for job %s", timeoutSec, jobID)
		}

		statusf("Status = %s; elapsed %ds\n", status, elapsed)
		time.Sleep(time.Duration(pollSec) * time.Second)
		elapsed += pollSec
	}
}

func runQstatus(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	jobID, _ := cmd.Flags().GetString("jobId")

	status, err := app.query.Status(ctx, app.token, jobID)
	if err != nil {
		return err
	}

	updateJob(ctx, jobID, string(status))
	fmt.Println(status)

	return nil
}

func runQresults(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	jobID, _ := cmd.Flags().GetString("jobId")
	fname, _ := cmd.Flags().GetString("fname")

	body, err := app.query.Results(ctx, app.token, jobID)
	if err != nil {
		return err
	}

	if fname != "" {
		if err := os.WriteFile(fname, body, 0o644); err != nil {
			return fmt.Errorf("writing results to %s: %w", fname, err)
		}

		statusf("Results written to %s.\n", fname)

		return nil
	}

	os.Stdout.Write(body)

	return nil
}

func runQabort(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	jobID, _ := cmd.Flags().GetString("jobId")

	if err := app.query.Abort(ctx, app.token, jobID); err != nil {
		return err
	}

	updateJob(ctx, jobID, string(query.StatusAborted))
	statusf("Job %s aborted.\n", jobID)

	return nil
}

func runJobs(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	limit, _ := cmd.Flags().GetInt("limit")

	ledger, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer ledger.Close()

	records, err := ledger.List(ctx, limit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		statusf("No jobs recorded.\n")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.JobID,
			r.Status,
			formatTime(r.SubmittedAt),
			truncate(r.Query, 60),
		})
	}

	printTable(os.Stdout, []string{"JOB ID", "STATUS", "SUBMITTED", "QUERY"}, rows)

	return nil
}

// openLedger opens the job-history database under the Data Lab home.
func openLedger(ctx context.Context) (*jobs.Ledger, error) {
	return jobs.Open(ctx, filepath.Join(app.dir, "jobs.db"), app.logger)
}

// recordJob writes a submission into the local ledger. Best-effort: a
// ledger problem never fails the query that already ran server-side.
func recordJob(ctx context.Context, rec jobs.Record) {
	ledger, err := openLedger(ctx)
	if err != nil {
		app.logger.Warn("job ledger unavailable", "error", err)
		return
	}
	defer ledger.Close()

	if err := ledger.Record(ctx, rec); err != nil {
		app.logger.Warn("could not record job", "job_id", rec.JobID, "error", err)
	}
}

// updateJob stores the latest observed status in the ledger, best-effort.
func updateJob(ctx context.Context, jobID, status string) {
	ledger, err := openLedger(ctx)
	if err != nil {
		app.logger.Warn("job ledger unavailable", "error", err)
		return
	}
	defer ledger.Close()

	if err := ledger.UpdateStatus(ctx, jobID, status); err != nil {
		app.logger.Warn("could not update job status", "job_id", jobID, "error", err)
	}
}
