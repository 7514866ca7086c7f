package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/MrEthical07/branchauth"
	"github.com/MrEthical07/branchauth/authstate"
	"github.com/MrEthical07/branchauth/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app holds what PersistentPreRunE builds for the subcommands.
type app struct {
	v      *viper.Viper
	log    *zap.Logger
	engine *branchauth.Engine
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "branchctl",
		Short:         "Branch-scoped session client for the restaurant back office",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "YAML config file (BRANCHAUTH_* env overrides apply)")
	flags.String("base-url", "", "remote API base URL")
	flags.String("backend", "", "store backend: memory, file, redis, postgres")
	flags.String("store-path", "", "file backend path")
	flags.String("log-level", "warn", "log level")
	flags.String("log-format", "console", "log format: console or json")
	flags.BoolP("output-json", "j", false, "print JSON")

	a.v.SetEnvPrefix("BRANCHCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(flags)

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
		newBranchCmd(a),
		newRequestCmd(a),
		newRefDataCmd(a),
		newPINCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	log, err := newLogger(a.v.GetString("log-level"), a.v.GetString("log-format"))
	if err != nil {
		return err
	}
	a.log = log

	cfg, err := a.config()
	if err != nil {
		return err
	}

	b := branchauth.New().WithConfig(cfg).WithLogger(log)
	if cfg.Audit.Enabled {
		b = b.WithAuditSink(branchauth.NewJSONWriterSink(os.Stderr))
	}
	if cmd.Name() == serveCmdName {
		b = b.WithMetricsEnabled(true).WithLatencyHistograms(true)
	}
	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	a.engine = engine
	cmd.SetContext(branchauth.WithSource(cmd.Context(), "cli"))
	return nil
}

// config layers the YAML file, BRANCHAUTH_* env, and then flags or BRANCHCTL_* env.
func (a *app) config() (branchauth.Config, error) {
	cfg, err := branchauth.ReadConfig(a.v.GetString("config"))
	if err != nil {
		return branchauth.Config{}, err
	}

	if v := a.v.GetString("base-url"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := a.v.GetString("backend"); v != "" {
		cfg.Store.Backend = v
	}
	if v := a.v.GetString("store-path"); v != "" {
		cfg.Store.FilePath = v
	}
	return cfg, cfg.Validate()
}

func (a *app) close() error {
	if a.log != nil {
		defer func() { _ = a.log.Sync() }()
	}
	if a.engine == nil {
		return nil
	}
	return a.engine.Close()
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// print writes v as indented JSON, or as its plain form when JSON output is off.
func (a *app) print(cmd *cobra.Command, v any, plain string) error {
	out := cmd.OutOrStdout()
	if !a.v.GetBool("output-json") && plain != "" {
		_, err := fmt.Fprintln(out, plain)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stateView is a State without the remote token.
type stateView struct {
	Status   authstate.Status `json:"status"`
	IsPinSet bool             `json:"isPinSet"`
	Locked   bool             `json:"locked"`
	User     *session.User    `json:"user,omitempty"`
}

func viewOf(st branchauth.State) stateView {
	v := stateView{Status: st.Status, IsPinSet: st.IsPinSet, Locked: st.Locked}
	if st.User != nil {
		u := st.User.User
		v.User = &u
	}
	return v
}
