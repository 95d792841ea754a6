// Package cli holds the holdedctl commands.
package cli

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fichaje/holded-relay/internal/config"
	"github.com/fichaje/holded-relay/internal/logger"
	"github.com/fichaje/holded-relay/internal/model"
	"github.com/fichaje/holded-relay/internal/relayclient"
)

var version = "dev"

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	version = v
}

// app is the state shared by every subcommand of one invocation.
type app struct {
	relayURL  string
	apiKey    string
	timeout   time.Duration
	colorFlag string
	verbose   bool

	session relayclient.Session
	client  *relayclient.Client
	printer *Printer
	log     zerolog.Logger
}

// Execute runs holdedctl with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "holdedctl",
		Short: "Clock in and out of Holded through the relay",
		Long: `holdedctl talks to a holded-relay instance on behalf of one Holded API key.

The key and relay address come from HOLDEDCTL_API_KEY and HOLDEDCTL_RELAY_URL
(or a .env file); flags override both.

Example usage:
  holdedctl employees              # List employees
  holdedctl times 5f1a...          # Show an employee's time entries
  holdedctl clockin 5f1a...        # Start the clock
  holdedctl clockout 5f1a...       # Stop the clock`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.init,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.relayURL, "relay-url", "", "relay base URL (default from HOLDEDCTL_RELAY_URL)")
	flags.StringVar(&a.apiKey, "api-key", "", "Holded API key (default from HOLDEDCTL_API_KEY)")
	flags.DurationVar(&a.timeout, "timeout", 0, "per request timeout (default from HOLDEDCTL_TIMEOUT)")
	flags.StringVar(&a.colorFlag, "color", "auto", "color output: auto, always, never")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		newEmployeesCmd(a),
		newTimesCmd(a),
		newClockCmd(a, clockIn),
		newClockCmd(a, clockOut),
		newVersionCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	level := "warn"
	if a.verbose {
		level = "debug"
	}
	a.log = logger.NewWithWriter(config.ObservabilityConfig{
		LogLevel:    level,
		LogFormat:   "console",
		ServiceName: "holdedctl",
	}, cmd.ErrOrStderr())

	mode, err := ParseColorMode(a.colorFlag)
	if err != nil {
		return err
	}
	a.printer = NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("relay-url") {
		cfg.RelayURL = a.relayURL
	}
	if flags.Changed("api-key") {
		cfg.APIKey = a.apiKey
	}
	if flags.Changed("timeout") {
		cfg.Timeout = a.timeout
	}

	a.session = relayclient.Session{RelayURL: cfg.RelayURL, APIKey: model.Credential(cfg.APIKey)}
	a.client = relayclient.New(&http.Client{Timeout: cfg.Timeout})

	a.log.Debug().
		Str("relay_url", cfg.RelayURL).
		Object("api_key", a.session.APIKey).
		Dur("timeout", cfg.Timeout).
		Msg("session loaded")
	return nil
}

// explain adds a hint to errors the user can fix from the command line.
func explain(err error) error {
	if errors.Is(err, relayclient.ErrNoCredential) {
		return fmt.Errorf("%w: pass --api-key or set HOLDEDCTL_API_KEY", err)
	}
	return err
}
