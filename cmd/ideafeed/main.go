// Command ideafeed reads and writes the idea feed from a terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/internal/cache"
	"github.com/Vanequal/ideafeed/internal/feed"
	"github.com/Vanequal/ideafeed/internal/session"
	"github.com/Vanequal/ideafeed/internal/store"
	"github.com/Vanequal/ideafeed/internal/views"
	"github.com/Vanequal/ideafeed/pkg/config"
	"github.com/Vanequal/ideafeed/pkg/logging"
)

// app holds what every command needs, built once before the command runs
type app struct {
	cfg       *config.Config
	session   *session.Session
	client    *backend.Client
	svc       *feed.Service
	viewed    *views.Store
	snapshots *cache.Cache
}

var (
	cli app

	verbose bool
	section string
	themeID int64

	rootCmd = &cobra.Command{
		Use:           "ideafeed",
		Short:         "Browse ideas, questions, publications and tasks from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.open(cmd.Context(), cmd.Annotations["auth"] != "none")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			cli.close()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log backend traffic to stderr")
	rootCmd.PersistentFlags().StringVarP(&section, "section", "s", "ideas", "section code or short name (ideas, qa, publications, tasks)")
	rootCmd.PersistentFlags().Int64VarP(&themeID, "theme", "t", 0, "theme id, 0 for every theme")

	registerCommands(rootCmd)
}

func (a *app) open(ctx context.Context, authenticated bool) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := cfg.Logging
	logCfg.Format = "text"
	if !verbose {
		logCfg.Level = "ERROR"
	}
	if err := logging.InitLogger(&logCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Login runs anonymously, so the session gets its own client
	auth, err := backend.New(&cfg.API, nil)
	if err != nil {
		return err
	}
	a.session = session.New(auth)
	a.client, err = backend.New(&cfg.API, a.session)
	if err != nil {
		return err
	}

	a.snapshots, err = cache.New(&cfg.Redis)
	if err != nil {
		return err
	}
	a.viewed, err = views.Open(&cfg.Views)
	if err != nil {
		return err
	}

	if !authenticated {
		return nil
	}
	switch {
	case cfg.Session.Token != "":
		a.session.SetToken(cfg.Session.Token)
	case cfg.Session.InitData != "":
		if err := a.session.Login(ctx, cfg.Session.InitData); err != nil {
			return err
		}
	}
	if err := a.session.Ensure(ctx); err != nil {
		if errors.Is(err, session.ErrNoInitData) {
			return errors.New("not signed in: set IDEAFEED_TOKEN or IDEAFEED_INIT_DATA, or run `ideafeed login`")
		}
		return err
	}

	// Snapshots carry the user's reactions, so they are scoped to the token
	a.svc = feed.NewService(a.client, store.New(),
		feed.WithPageSize(cfg.API.PageSize),
		feed.WithSnapshots(a.snapshots, "token:"+cache.HashKey(a.session.Token())))
	return nil
}

func (a *app) close() {
	if a.viewed != nil {
		a.viewed.Close()
	}
	a.snapshots.Close()
	if logging.Logger != nil {
		_ = logging.Logger.Sync()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}
