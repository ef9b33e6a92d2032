package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/noaodatalab/datalab-go/internal/auth"
	"github.com/noaodatalab/datalab-go/internal/config"
	"github.com/noaodatalab/datalab-go/internal/gateway"
	"github.com/noaodatalab/datalab-go/internal/query"
	"github.com/noaodatalab/datalab-go/internal/storage"
	"github.com/noaodatalab/datalab-go/internal/tokenfile"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagToken      string
	flagProfile    string
	flagVerbose    bool
	flagQuiet      bool
)

// app holds the effective configuration and service clients built by
// PersistentPreRunE. Available to all subcommands.
var app *appContext

// appContext wires the per-service gateways, the session, and the
// resolved default token for one command invocation. There are no
// ambient globals below this level: every component receives its
// collaborators through its constructor.
type appContext struct {
	cfg    *config.Config
	dir    string // ~/.datalab
	logger *slog.Logger

	session *auth.Session
	query   *query.Client
	store   *storage.Store

	token string // resolved default token for this invocation
}

// transportSlack pads the HTTP client timeout beyond the requested query
// timeout so the server, not the transport, decides when a sync query
// has run too long.
const transportSlack = 30 * time.Second

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "datalab",
		Short:   "Data Lab command-line client",
		Long:    "A client for the Data Lab science platform: authentication, SQL/ADQL queries, and vos:// remote storage.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return buildApp()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (default ~/.datalab/config.toml)")
	cmd.PersistentFlags().StringVar(&flagToken, "token", "", "auth token or username to act as")
	cmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "service profile override")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newQstatusCmd())
	cmd.AddCommand(newQresultsCmd())
	cmd.AddCommand(newQabortCmd())
	cmd.AddCommand(newJobsCmd())
	cmd.AddCommand(newMyDBCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newCpCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newLnCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newRmdirCmd())
	cmd.AddCommand(newTagCmd())
	cmd.AddCommand(newLoadCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// buildApp loads configuration and constructs the service clients.
func buildApp() error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	path := flagConfigPath
	if path == "" {
		path = config.Path(dir)
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}

	profile := cfg.Service.Profile
	if flagProfile != "" {
		profile = flagProfile
	}

	logger := buildLogger()

	httpClient := &http.Client{
		Timeout: time.Duration(cfg.Service.Timeout)*time.Second + transportSlack,
	}

	authGW := gateway.NewClient(cfg.Service.AuthURL, httpClient, logger)
	queryGW := gateway.NewClient(cfg.Service.QueryURL, httpClient, logger)
	storeGW := gateway.NewClient(cfg.Service.StorageURL, httpClient, logger)

	qc := query.NewClient(queryGW, profile, logger)
	qc.SetTimeout(cfg.Service.Timeout)

	app = &appContext{
		cfg:     cfg,
		dir:     dir,
		logger:  logger,
		session: auth.NewSession(authGW, profile, dir, logger),
		query:   qc,
		store:   storage.NewStore(storeGW, logger),
		token:   resolveToken(cfg, dir),
	}

	app.session.Adopt(auth.Token(app.token))

	return nil
}

// resolveToken picks the default token for this invocation: an explicit
// --token value (a raw token, or a username whose cached token file is
// read), then the logged-in user's cached token, then anonymous.
func resolveToken(cfg *config.Config, dir string) string {
	if flagToken != "" {
		if auth.Token(flagToken).Valid() {
			return flagToken
		}

		// Probably a bare username; look for their token file.
		if tok, err := tokenfile.Load(dir, flagToken); err == nil && tok != "" {
			return tok
		}

		return string(auth.AnonToken)
	}

	if cfg.LoggedIn() {
		if tok, err := tokenfile.Load(dir, cfg.Login.User); err == nil && tok != "" {
			return tok
		}
	}

	return string(auth.AnonToken)
}

// buildLogger creates an slog.Logger at a level selected by the
// --verbose and --quiet flags.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// saveLoginState records the logged-in (or logged-out) user in the
// config file so later invocations resolve the right token.
func saveLoginState(user, status string) error {
	path := flagConfigPath
	if path == "" {
		path = config.Path(app.dir)
	}

	app.cfg.Login.User = user
	app.cfg.Login.Status = status

	if err := config.Save(path, app.cfg); err != nil {
		return fmt.Errorf("saving login state: %w", err)
	}

	return nil
}
