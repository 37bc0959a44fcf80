package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/internal/logger"
)

type app struct {
	out  io.Writer
	in   io.Reader
	open backendOpener

	configPath  string
	envFile     string
	databaseURL string
	timeout     time.Duration

	cfg tenantauth.Config
	log *zap.Logger
}

func newApp(out io.Writer, in io.Reader) *app {
	return &app{out: out, in: in, open: openPostgres}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tenantauthctl",
		Short:         "Operate a tenantauth database",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.out)
	root.SetIn(a.in)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading TENANTAUTH_* variables")
	pf.StringVar(&a.databaseURL, "database-url", "", "PostgreSQL URL (overrides TENANTAUTH_DATABASE_URL)")
	pf.DurationVar(&a.timeout, "timeout", 30*time.Second, "deadline for the whole command")

	root.AddCommand(
		newMigrateCmd(a),
		newBootstrapClientCmd(a),
		newTempPasswordCmd(a),
		newLoginCmd(a),
	)
	return root
}

func (a *app) loadConfig() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}
	cfg, err := tenantauth.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.databaseURL != "" {
		cfg.Database.URL = a.databaseURL
	}
	a.cfg = cfg
	a.log = logger.New(cfg.Log)
	return nil
}

// withBackend opens the backend under the command deadline and closes it afterwards.
func (a *app) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	b, err := a.open(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer b.Close()
	defer a.log.Sync() //nolint:errcheck
	return fn(ctx, b)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
