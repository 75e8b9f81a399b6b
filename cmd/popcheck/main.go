// Command popcheck connects to a POP3 server, authenticates and prints a
// summary of the maildrop.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/emersion/go-mailwire/config"
	"github.com/emersion/go-mailwire/internal/logging"
	"github.com/emersion/go-mailwire/pop3client"
)

var (
	configPath  string
	host        string
	username    string
	passwordEnv string
	topHeaders  bool
	debug       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "popcheck [flags]",
		Short:         "Check a POP3 account",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	flags.StringVar(&host, "host", "", "server host, overrides the configuration")
	flags.StringVarP(&username, "username", "u", "", "username, overrides the configuration")
	flags.StringVar(&passwordEnv, "password-env", "POPCHECK_PASSWORD", "environment variable holding the password or access token")
	flags.BoolVar(&topHeaders, "subjects", false, "print the subject of each message")
	flags.BoolVar(&debug, "debug", false, "print all commands and responses")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "popcheck: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if host != "" {
		cfg.Host = host
	}
	if username != "" {
		cfg.Auth.Username = username
	}
	if cfg.Host == "" {
		return nil, errors.New("no server host configured")
	}
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	for _, key := range cfg.Undecoded {
		logger.Warn("unknown configuration key", "key", key)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	ch := &checker{
		cfg:      cfg,
		password: os.Getenv(passwordEnv),
		subjects: topHeaders,
		logger:   logger,
		out:      cmd.OutOrStdout(),
	}
	if debug {
		ch.debug = os.Stderr
	}

	if u, err := cfg.GetProxyURL(); err != nil {
		return err
	} else if u != nil {
		if ch.dialer, err = pop3client.ProxyDialer(u); err != nil {
			return err
		}
	}

	return ch.run(ctx)
}
