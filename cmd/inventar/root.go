package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/erazemk/inventar/internal/auth"
	"github.com/erazemk/inventar/internal/catalog"
	"github.com/erazemk/inventar/internal/client"
	"github.com/erazemk/inventar/internal/config"
	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/gateway"
	"github.com/erazemk/inventar/internal/locks"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/store"
	"github.com/erazemk/inventar/internal/workflow"
)

// errNotLoggedIn is returned by commands that need a session when none is stored.
var errNotLoggedIn = errors.New("not logged in, run: inventar login")

// app holds the components a command works with.
type app struct {
	cfg    *config.Config
	db     *sql.DB
	store  *store.Store
	auth   *auth.Manager
	api    *client.Client
	locks  *locks.Coordinator
	cache  *catalog.Cache
	runner *workflow.Runner

	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	closeLog func()
}

// newRootCmd builds the command tree. in, out and errOut replace the standard
// streams so that tests can drive the CLI.
func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	v := config.New()
	var envFile string
	a := &app{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "inventar",
		Short: "Inventory client for tracking ТМЦ through their lifecycle",
		Long: `inventar talks to the inventory backend: it lists items, locks them for
editing and moves them through their lifecycle (transfer, work, service,
confirmation, write-off).

Settings come from flags, INVENTAR_* environment variables and an optional
.env file, in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(v, envFile)
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "optional file with settings")
	flags.String("api-url", "", "backend API root (INVENTAR_API_URL)")
	flags.String("db", "", "local cache database path (INVENTAR_DB)")
	flags.Duration("timeout", 0, "HTTP request timeout (INVENTAR_TIMEOUT)")
	flags.String("log-level", "", "debug, info, warn or error (INVENTAR_LOG_LEVEL)")
	flags.String("log", "", "also write logs to this file (INVENTAR_LOG_FILE)")
	bindFlags(v, root, map[string]string{
		config.KeyAPIURL:   "api-url",
		config.KeyDB:       "db",
		config.KeyTimeout:  "timeout",
		config.KeyLogLevel: "log-level",
		config.KeyLogFile:  "log",
	})

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newSyncCmd(a),
		newItemsCmd(a),
		newShowCmd(a),
		newCountersCmd(a),
		newActionsCmd(a),
		newDoCmd(a),
		newCreateCmd(a),
		newEditCmd(a),
		newLockCmd(a),
		newUnlockCmd(a),
	)
	return root
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		// Only an explicitly set flag overrides the environment.
		_ = v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag))
	}
}

// open loads the configuration and wires the components together.
func (a *app) open(v *viper.Viper, envFile string) error {
	cfg, err := config.Load(v, envFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	closeLog, err := setupLogger(a.errOut, a.errOut, cfg.LogFile, cfg.Level())
	if err != nil {
		return err
	}
	a.closeLog = closeLog

	database, err := db.Open(cfg.DB)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return err
	}
	a.db = database
	a.store = store.New(database)

	a.auth = auth.NewManager(
		auth.NewHTTPTransport(cfg.APIURL, cfg.Timeout),
		auth.WithStore(a.store),
		auth.WithRefreshSkew(cfg.RefreshSkew),
	)
	a.auth.OnTerminate(func(cause error) {
		slog.Error("session terminated", "error", cause)
		fmt.Fprintln(a.errOut, "Session expired. Log in again with: inventar login")
	})

	g := gateway.New(cfg.APIURL, a.auth, cfg.Timeout)
	a.api = client.New(g)
	a.locks = locks.New(g, a.auth.Username)
	a.cache = catalog.New(a.api, catalog.WithLocks(a.locks), catalog.WithSnapshots(a.store))

	slog.Debug("client ready", "api", cfg.APIURL, "db", cfg.DB)
	return nil
}

// session restores the stored session and builds the action runner.
func (a *app) session(ctx context.Context) error {
	ok, err := a.auth.Restore(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errNotLoggedIn
	}
	admin := model.RoleAtLeast(a.auth.Role(), model.RoleAdmin)
	a.runner = workflow.New(a.api, a.locks, a.cache, a.auth, admin)
	return nil
}

// loadCatalog fills the cache from the backend, falling back to the last
// snapshot when the backend cannot be reached.
func (a *app) loadCatalog(ctx context.Context) error {
	err := a.cache.Sync(ctx)
	if err == nil {
		return nil
	}
	var netErr *gateway.NetworkError
	if !errors.As(err, &netErr) {
		return err
	}

	loaded, lerr := a.cache.LoadSnapshot(ctx)
	if lerr != nil || !loaded {
		return err
	}
	_, at := a.cache.Stale()
	fmt.Fprintf(a.errOut, "Backend unreachable, showing catalog from %s.\n", at.Local().Format(model.HistoryDateLayout))
	return nil
}

// run wraps a command body so that the database and log file are closed
// whatever the outcome.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.close()
		return fn(cmd, args)
	}
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.closeLog != nil {
		a.closeLog()
	}
}
