package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/credvault/internal/adapter/driven/aesgcm"
	anthropicadapter "github.com/ericfisherdev/credvault/internal/adapter/driven/anthropic"
	githubadapter "github.com/ericfisherdev/credvault/internal/adapter/driven/github"
	gitlabadapter "github.com/ericfisherdev/credvault/internal/adapter/driven/gitlab"
	sqliteadapter "github.com/ericfisherdev/credvault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/credvault/internal/adapter/driving/tool"
	"github.com/ericfisherdev/credvault/internal/application"
	"github.com/ericfisherdev/credvault/internal/config"
	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// build-time override (e.g. -ldflags "-X main.version=1.2.3")
var version = "dev"

// Global (root-level) flag values.
type globalFlags struct {
	user    string
	dbPath  string
	verbose bool
	debug   bool
	json    bool
}

// app is the composition root shared by every subcommand. It is built in
// PersistentPreRunE and torn down in PersistentPostRunE.
type app struct {
	cfg        *config.Config
	flags      *globalFlags
	db         *sqliteadapter.DB
	store      *sqliteadapter.CredentialRepo
	cipher     driven.Cipher
	manager    *application.CredentialManager
	controller *application.CredentialController
	dispatcher *tool.Dispatcher
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root Cobra command.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	a := &app{flags: flags}

	cmd := &cobra.Command{
		Use:   "credvault",
		Short: "Scoped, encrypted credential vault",
		Long: strings.TrimSpace(`
credvault stores API credentials for source-hosting and AI providers,
encrypted at rest and isolated per user, provider and scope.

Scopes:
  ""                          personal (default)
  <name>                      named, e.g. work
  project:<project>           project default environment
  project:<project>:<env>     project environment, e.g. project:myapp:staging

The master key is read from CREDVAULT_SECRET_KEY.`),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsVault(cmd) {
				return nil
			}
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.user, "user", "u", "", "User id owning the credentials (default CREDVAULT_USER or $USER)")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "SQLite database path (default CREDVAULT_DB_PATH)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose (info) logging")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging (overrides --verbose)")
	cmd.PersistentFlags().BoolVar(&flags.json, "json", false, "Print results as JSON")
	cmd.Version = version

	cmd.AddCommand(
		newProvidersCmd(a),
		newSetCmd(a),
		newSetProjectCmd(a),
		newGetCmd(a),
		newDeleteCmd(a),
		newValidateCmd(a),
		newListCmd(a),
		newProjectsCmd(a),
		newCloneCmd(a),
		newHeadersCmd(a),
		newVerifyCmd(a),
		newHelpProviderCmd(a),
		newRecommendCmd(a),
		newQuickSetupCmd(a),
		newRotateKeyCmd(a),
		newToolCmd(a),
	)

	return cmd
}

// skipsVault reports whether cmd runs without opening the database.
func skipsVault(cmd *cobra.Command) bool {
	return cmd.Annotations["vault"] == "none"
}

// open loads configuration and wires adapters, in the order the process
// depends on them.
func (a *app) open(ctx context.Context) error {
	// 1. Load configuration (fail fast on malformed values).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.flags.dbPath != "" {
		cfg.DBPath = a.flags.dbPath
	}
	if a.flags.user != "" {
		cfg.DefaultUser = a.flags.user
	}
	a.cfg = cfg

	initLogging(cfg.LogLevel, a.flags)
	slog.Info("config loaded",
		"db_path", cfg.DBPath,
		"storage_timeout", cfg.StorageTimeout,
		"user", cfg.DefaultUser,
		"secret_key_set", cfg.HasSecretKey(),
	)

	// 2. Open the vault database; Open also migrates the schema.
	db, err := sqliteadapter.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	a.db = db
	slog.Info("database ready", "path", cfg.DBPath)

	// 3. Cipher. A missing key leaves the cipher nil; every operation that
	// needs it reports model.ErrEncryptionKeyNotSet.
	if cfg.HasSecretKey() {
		c, err := aesgcm.NewFromSecret(cfg.SecretKey)
		if err != nil {
			return fmt.Errorf("CREDVAULT_SECRET_KEY: %w", err)
		}
		a.cipher = c
		slog.Debug("cipher ready", "key_id", c.KeyID())
	}

	// 4. Application services and driving adapters.
	a.store = sqliteadapter.NewCredentialRepo(db, sqliteadapter.WithOpTimeout(cfg.StorageTimeout))
	a.manager = application.NewCredentialManager(a.store, a.cipher, nil, slog.Default())
	a.controller = application.NewCredentialController(a.manager, slog.Default(),
		githubadapter.NewVerifier(),
		gitlabadapter.NewVerifier(cfg.GitLabBaseURL, nil),
		anthropicadapter.NewVerifier(cfg.AnthropicBaseURL, nil),
	)
	a.dispatcher = tool.NewDispatcher(a.controller, slog.Default())
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// user returns the effective user id.
func (a *app) user() (string, error) {
	if a.cfg.DefaultUser == "" {
		return "", errors.New("no user id: pass --user or set CREDVAULT_USER")
	}
	return a.cfg.DefaultUser, nil
}

// requireKey fails early for commands that cannot work without the master
// key, before any secret is read from the terminal.
func (a *app) requireKey() error {
	if a.cipher == nil {
		return model.ErrEncryptionKeyNotSet
	}
	return nil
}

func initLogging(configured slog.Level, flags *globalFlags) {
	level := configured
	switch {
	case flags.debug:
		level = slog.LevelDebug
	case flags.verbose:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	slog.Debug("logging initialized", "level", level.String())
}
