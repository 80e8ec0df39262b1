package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/conference-companion/internal/application"
	"github.com/example/conference-companion/internal/logging"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the companion API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(true)
			if err != nil {
				return err
			}
			logger := logging.New(cmd.OutOrStdout(), cfg.LogFormat, cfg.LogLevel)
			ctx := logging.ContextWithLogger(cmd.Context(), logger)

			srv, err := newServer(ctx, cfg, logger, time.Now)
			if err != nil {
				logger.Error("failed to start server", "error", err)
				return err
			}
			defer func() {
				if cerr := srv.Close(); cerr != nil {
					logger.Error("failed to release resources", "error", cerr)
				}
			}()
			return srv.Run(ctx)
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(false)
			if err != nil {
				return err
			}
			logger := commandLogger(cmd, cfg)
			st, err := openStore(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.pool.Migrate(cmd.Context(), logger); err != nil {
				return err
			}
			status, err := st.pool.MigrationStatus(cmd.Context(), logger)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema at version %s\n", status.CurrentVersion)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(false)
			if err != nil {
				return err
			}
			logger := commandLogger(cmd, cfg)
			st, err := openStore(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer st.Close()

			status, err := st.pool.MigrationStatus(cmd.Context(), logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, applied := range status.AppliedMigrations {
				_, _ = fmt.Fprintf(out, "applied\t%s\t%s\n", applied.Version, applied.AppliedAt.Format(time.RFC3339))
			}
			for _, pending := range status.PendingMigrations {
				_, _ = fmt.Fprintf(out, "pending\t%s\t%s\n", pending.Version, pending.Description)
			}
			_, _ = fmt.Fprintf(out, "current: %s, pending: %d\n", status.CurrentVersion, status.PendingCount)
			return nil
		},
	})
	return cmd
}

func newExpireCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Expire pending meeting requests past their deadline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(false)
			if err != nil {
				return err
			}
			logger := commandLogger(cmd, cfg)
			st, err := openStore(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			defer st.Close()

			// Changes go through the configured broker so running servers
			// push the expiries to their subscribers.
			broker, err := newBroker(cfg, logger)
			if err != nil {
				return err
			}
			defer broker.Close()

			svc := newServices(st.repos, serviceDeps{cfg: cfg, publisher: broker, now: time.Now, logger: logger})
			expired, err := svc.requests.ExpireStale(cmd.Context())
			if err != nil {
				return err
			}
			for _, req := range expired {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s -> %s\texpired at %s\n", req.ID, req.RequesterID, req.SpeakerID, req.ExpiresAt.Format(time.RFC3339))
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "expired %d request(s)\n", len(expired))
			return nil
		},
	}
}

type userCreateFlags struct {
	email    string
	name     string
	password string
	tier     string
	speaker  bool
	slug     string
	admin    bool
}

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts directly in the database",
	}

	var flags userCreateFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account with its pass and speaker profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(false)
			if err != nil {
				return err
			}
			logger := commandLogger(cmd, cfg)
			st, err := openStore(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			defer st.Close()

			svc := newServices(st.repos, serviceDeps{cfg: cfg, now: time.Now, logger: logger})
			user, err := svc.users.CreateUser(cmd.Context(), application.CreateUserParams{
				Principal: application.Principal{UserID: "cli", IsAdmin: true},
				Input: application.UserInput{
					Email:       flags.email,
					DisplayName: flags.name,
					Password:    flags.password,
					Tier:        application.PassTier(flags.tier),
					IsAdmin:     flags.admin,
					IsSpeaker:   flags.speaker,
					SpeakerSlug: flags.slug,
				},
			})
			if err != nil {
				return describeServiceError(err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", user.ID, user.Email, application.PassTier(flags.tier).DisplayName())
			return nil
		},
	}
	f := create.Flags()
	f.StringVar(&flags.email, "email", "", "account email")
	f.StringVar(&flags.name, "name", "", "display name")
	f.StringVar(&flags.password, "password", "", "initial password")
	f.StringVar(&flags.tier, "tier", string(application.TierGeneral), "pass tier: general, business or vip")
	f.BoolVar(&flags.speaker, "speaker", false, "create a speaker profile")
	f.StringVar(&flags.slug, "slug", "", "speaker slug (derived from the name when empty)")
	f.BoolVar(&flags.admin, "admin", false, "grant administrator rights")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

// describeServiceError flattens validation failures into one readable error.
func describeServiceError(err error) error {
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) || !vErr.HasErrors() {
		return err
	}
	return fmt.Errorf("%w: %s", err, formatFields(vErr.FieldErrors))
}
