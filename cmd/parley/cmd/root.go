package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsarna/parley/pkg/parley/api"
	"github.com/tsarna/parley/pkg/parley/auth"
	"github.com/tsarna/parley/pkg/parley/config"
)

// appVersion is stamped into --version output and the metrics provider.
const appVersion = "0.1.0"

var (
	verbose  bool
	debug    bool
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley terminal chat client",
	Long: `Parley is a terminal client for Webex-style cloud messaging.

It signs in with OAuth, lists the rooms you are a member of, and joins a
room for an interactive chat session fed by the platform's realtime event
stream.`,
	Version: appVersion,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug output")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "warn", "log level (debug, info, warn, error)")
}

func setupLogger() (*zap.Logger, error) {
	level := logLevel

	// Override log level based on flags
	if debug {
		level = "debug"
	} else if verbose && level == "warn" {
		level = "info"
	}

	var zapLevel zap.AtomicLevel
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn", "warning":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	cfg.Development = debug

	return cfg.Build()
}

// clientCredentials reads the OAuth integration credentials from the
// environment. There is no safe way to ship a client secret inside a public
// binary, so users bring their own integration.
func clientCredentials() (clientID, clientSecret string) {
	return os.Getenv("PARLEY_CLIENT_ID"), os.Getenv("PARLEY_CLIENT_SECRET")
}

// newAuthProvider loads the on-disk configuration and wraps it in a token
// provider. Shared by every command that talks to the platform.
func newAuthProvider(logger *zap.Logger) (*config.Config, *auth.Provider, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	clientID, clientSecret := clientCredentials()
	return cfg, auth.NewProvider(cfg, clientID, clientSecret, logger), nil
}

// newAPIClient builds the REST client backed by the provider's token source.
func newAPIClient(cfg *config.Config, provider *auth.Provider, logger *zap.Logger) (*api.Client, error) {
	return api.NewClient().
		WithBaseURL(cfg.APIBaseURL).
		WithTokenSource(provider.Source()).
		WithLogger(logger).
		Build()
}
