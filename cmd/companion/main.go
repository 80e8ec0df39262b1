// Command companion runs the conference companion API and the attendee and
// speaker commands that talk to it.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "companion",
		Short:         "Conference companion: agenda, speakers and meeting requests",
		Long:          "companion serves the conference companion API and lets attendees and speakers follow the live agenda and manage meeting requests from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (TOML, YAML or JSON)")
	flags.StringVar(&opts.envFile, "env-file", "", "dotenv file loaded before reading the environment (default .env)")
	flags.StringVar(&opts.apiURL, "api-url", "", "companion API base URL (overrides COMPANION_API_URL)")
	flags.StringVar(&opts.token, "token", "", "access token (overrides COMPANION_API_TOKEN)")
	flags.StringVar(&opts.eventID, "event", "", "event id (overrides COMPANION_EVENT_ID)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newExpireCmd(opts),
		newUserCmd(opts),
		newLoginCmd(opts),
		newAgendaCmd(opts),
		newRequestsCmd(opts),
		newLimitsCmd(opts),
	)
	return rootCmd
}
