package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/conference-companion/internal/client"
	"github.com/example/conference-companion/internal/config"
	"github.com/example/conference-companion/internal/realtime"
	"github.com/example/conference-companion/internal/tracker"
)

// remote is the client side state of one command invocation.
type remote struct {
	cfg config.Config
	api *client.Client
	cmd *cobra.Command
}

func (o *rootOptions) remote(cmd *cobra.Command) (*remote, error) {
	cfg, err := o.load(false)
	if err != nil {
		return nil, err
	}
	api, err := newAPIClient(cfg, commandLogger(cmd, cfg))
	if err != nil {
		return nil, err
	}
	return &remote{cfg: cfg, api: api, cmd: cmd}, nil
}

// controller returns a lifecycle controller loaded for the token's user.
func (r *remote) controller(ctx context.Context, role client.Role) (*tracker.Controller, error) {
	subject, err := tokenSubject(r.api.Token())
	if err != nil {
		return nil, err
	}
	logger := commandLogger(r.cmd, r.cfg)
	controller := tracker.NewController(r.api, nil, nil, time.Now, logger)
	if err := controller.SetIdentity(ctx, tracker.Identity{UserID: subject, Role: role}); err != nil {
		logger.WarnContext(ctx, "initial refresh incomplete", "error", err)
	}
	return controller, nil
}

func parseRole(value string) (client.Role, error) {
	switch role := client.Role(value); role {
	case client.RoleRequester, client.RoleSpeaker:
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q, want requester or speaker", value)
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for an access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := opts.remote(cmd)
			if err != nil {
				return err
			}
			token, err := r.api.Login(cmd.Context(), email, password)
			if err != nil {
				return userFacing(err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token.Token)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "signed in as %s, token expires %s\n", token.User.Email, token.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newAgendaCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Import or follow the event agenda",
	}
	cmd.AddCommand(newAgendaImportCmd(opts), newAgendaLiveCmd(opts))
	return cmd
}

func newAgendaImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the agenda of the event with a JSON file (administrators only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.remote(cmd)
			if err != nil {
				return err
			}
			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read agenda file: %w", err)
			}
			result, err := r.api.ImportAgenda(cmd.Context(), r.cfg.EventID, body)
			if err != nil {
				return userFacing(err)
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "imported %d session(s) into %s\n", result.Imported, result.EventID)
			for _, warning := range result.Warnings {
				detail := warning.Location + warning.Speaker
				if detail != "" {
					detail = " (" + detail + ")"
				}
				_, _ = fmt.Fprintf(out, "warning: %s overlaps %s: %s%s\n", warning.SlotID, warning.WithSlotID, warning.Type, detail)
			}
			return nil
		},
	}
}

func newAgendaLiveCmd(opts *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Show the running and the next session, refreshed live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := opts.remote(cmd)
			if err != nil {
				return err
			}
			days, err := eventCalendar(r.cfg, time.Now)
			if err != nil {
				return err
			}
			live := tracker.NewAgendaTracker(r.api, r.cfg.EventID, days, tracker.Intervals{}, time.Now, commandLogger(cmd, r.cfg))
			out := cmd.OutOrStdout()

			if once {
				if err := live.Refresh(cmd.Context()); err != nil {
					return userFacing(err)
				}
				printDays(out, live.Days())
				printAgendaState(out, live.State())
				return nil
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- live.Run(ctx) }()
			for {
				select {
				case err := <-done:
					return err
				case state := <-live.Updates():
					printAgendaState(out, state)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "print the agenda and the current state once and exit")
	return cmd
}

func newRequestsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "requests",
		Aliases: []string{"req"},
		Short:   "Send and answer meeting requests",
	}
	cmd.AddCommand(
		newRequestsListCmd(opts),
		newRequestsSendCmd(opts),
		newRequestsCancelCmd(opts),
		newRequestsAnswerCmd(opts, "accept"),
		newRequestsAnswerCmd(opts, "decline"),
		newRequestsWatchCmd(opts),
	)
	return cmd
}

func newRequestsListCmd(opts *rootOptions) *cobra.Command {
	var role string
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your meeting requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseRole(role)
			if err != nil {
				return err
			}
			r, err := opts.remote(cmd)
			if err != nil {
				return err
			}
			requests, err := r.api.MeetingRequests(cmd.Context(), parsed, statuses...)
			if err != nil {
				return userFacing(err)
			}
			if len(requests) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no meeting requests")
				return nil
			}
			for _, req := range requests {
				printRequest(cmd.OutOrStdout(), req, false)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(client.RoleRequester), "requester or speaker")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "only these statuses (pending, accepted, declined, cancelled, expired)")
	return cmd
}

func newRequestsSendCmd(opts *rootOptions) *cobra.Command {
	var params client.NewMeetingRequest
	cmd := &cobra.Command{
		Use:   "send <speaker-id>",
		Short: "Send a meeting request to a speaker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.remote(cmd)
			if err != nil {
				return err
			}
			controller, err := r.controller(cmd.Context(), client.RoleRequester)
			if err != nil {
				return err
			}
			params.SpeakerID = args[0]
			created, err := controller.Create(cmd.Context(), params)
			if err != nil {
				return userFacing(err)
			}
			out := cmd.OutOrStdout()
			printRequest(out, created, false)
			printLimits(out, controller.Quota().Limits())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&params.Message, "message", "", "message to the speaker")
	f.StringVar(&params.Note, "note", "", "private note")
	f.IntVar(&params.DurationMinutes, "duration", 15, "meeting length in minutes")
	f.Float64Var(&params.BoostAmount, "boost", 0, "boost amount")
	return cmd
}

func newRequestsCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "Withdraw a pending request you sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.remote(cmd)
			if err != nil {
				return err
			}
			controller, err := r.controller(cmd.Context(), client.RoleRequester)
			if err != nil {
				return err
			}
			cancelled, err := controller.Cancel(cmd.Context(), args[0])
			if err != nil {
				return userFacing(err)
			}
			out := cmd.OutOrStdout()
			printRequest(out, cancelled, false)
			printLimits(out, controller.Quota().Limits())
			return nil
		},
	}
}

// newRequestsAnswerCmd builds the speaker side accept and decline commands.
func newRequestsAnswerCmd(opts *rootOptions, action string) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   action + " <request-id>",
		Short: "Answer a pending request addressed to you (" + action + ")",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.remote(cmd)
			if err != nil {
				return err
			}
			controller, err := r.controller(cmd.Context(), client.RoleSpeaker)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if action == "accept" {
				accepted, err := controller.Accept(cmd.Context(), args[0], text)
				if err != nil {
					return userFacing(err)
				}
				printRequest(out, accepted.Request, false)
				_, _ = fmt.Fprintf(out, "meeting %s scheduled (%d minutes)\n", accepted.Meeting.ID, accepted.Meeting.DurationMinutes)
				return nil
			}
			declined, err := controller.Decline(cmd.Context(), args[0], text)
			if err != nil {
				return userFacing(err)
			}
			printRequest(out, declined, false)
			return nil
		},
	}
	if action == "accept" {
		cmd.Flags().StringVar(&text, "notes", "", "notes for the requester")
	} else {
		cmd.Flags().StringVar(&text, "reason", "", "reason shown to the requester")
	}
	return cmd
}

func newRequestsWatchCmd(opts *rootOptions) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow your meeting requests as they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseRole(role)
			if err != nil {
				return err
			}
			r, err := opts.remote(cmd)
			if err != nil {
				return err
			}
			controller, err := r.controller(cmd.Context(), parsed)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printBoard(out, controller.Board())

			identity := controller.Identity()
			filter := "requester_id=eq." + identity.UserID
			if parsed == client.RoleSpeaker {
				filter = "speaker_id=eq." + identity.UserID
			}
			sub := tracker.NewSubscriber(r.api.RealtimeURL(realtime.TableMeetingRequests, filter), r.api.Token, controller.Board(), commandLogger(cmd, r.cfg))
			sub.OnChange(func(change realtime.Change) {
				_, _ = fmt.Fprintf(out, "%s %s %s\n", change.OccurredAt.Format(time.RFC3339), change.Type, change.RecordID)
				if entry, ok := controller.Board().Get(change.RecordID); ok {
					printRequest(out, entry.Request, entry.Provisional)
				}
			})
			if err := sub.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(client.RoleRequester), "requester or speaker")
	return cmd
}

func newLimitsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Show your pass and remaining meeting requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := opts.remote(cmd)
			if err != nil {
				return err
			}
			pass, err := r.api.Pass(cmd.Context())
			if err != nil {
				return userFacing(err)
			}
			limits, err := r.api.Limits(cmd.Context())
			if err != nil {
				return userFacing(err)
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "pass: %s (%s)\n", pass.TicketLabel, pass.Status)
			printLimits(out, limits)
			return nil
		},
	}
}
