package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/conference-companion/internal/agenda"
	"github.com/example/conference-companion/internal/client"
	"github.com/example/conference-companion/internal/tracker"
)

var errNoToken = errors.New("no access token: run `companion login` or set COMPANION_API_TOKEN")

// tokenSubject reads the user id from an access token without verifying it.
// The server verifies every call; the subject only scopes local state.
func tokenSubject(token string) (string, error) {
	if token == "" {
		return "", errNoToken
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("read access token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("access token has no subject")
	}
	return claims.Subject, nil
}

// userFacing rewrites API errors into the sentence shown to users and keeps
// the error chain intact.
func userFacing(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
		return fmt.Errorf("%s %s: %w", client.Describe(err), formatFields(apiErr.Fields), err)
	}
	if apiErr != nil || errors.Is(err, client.ErrLimitUnavailable) {
		return fmt.Errorf("%s: %w", client.Describe(err), err)
	}
	return err
}

func formatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+fields[key])
	}
	return strings.Join(parts, "; ")
}

func printRequest(w io.Writer, req client.MeetingRequest, provisional bool) {
	marker := ""
	if provisional {
		marker = " (sending)"
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s -> %s\t%dm\t%s%s\n",
		req.ID, req.Status, req.RequesterID, req.SpeakerID, req.DurationMinutes,
		req.CreatedAt.Format(time.RFC3339), marker)
}

func printBoard(w io.Writer, board *tracker.RequestBoard) {
	entries := board.Entries()
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "no meeting requests")
		return
	}
	for _, entry := range entries {
		printRequest(w, entry.Request, entry.Provisional)
	}
}

func printLimits(w io.Writer, limits client.RequestLimits) {
	_, _ = fmt.Fprintf(w, "ticket: %s\nused: %d of %d\nremaining: %d\ncan send: %t\n",
		limits.TicketType, limits.TotalRequests, limits.RequestLimit, limits.RemainingRequests, limits.CanSendRequest)
	if limits.NextRequestAllowedAt != nil {
		_, _ = fmt.Fprintf(w, "next request allowed at: %s\n", limits.NextRequestAllowedAt.Format(time.RFC3339))
	}
}

func printAgendaState(w io.Writer, state tracker.AgendaState) {
	snap := state.Snapshot
	switch {
	case snap.Current != nil:
		_, _ = fmt.Fprintf(w, "NOW  %s  %s  %.0f%%  %s left\n",
			agenda.FormatTimeRange(*snap.Current), snap.Current.Title, state.Progress.Percent, state.Progress.Remaining)
	case state.InEventPeriod:
		_, _ = fmt.Fprintln(w, "NOW  no session running")
	default:
		_, _ = fmt.Fprintln(w, "outside the event days")
	}
	if snap.Next != nil {
		_, _ = fmt.Fprintf(w, "NEXT %s  %s", agenda.FormatTimeRange(*snap.Next), snap.Next.Title)
		if snap.Next.Location != "" {
			_, _ = fmt.Fprintf(w, " @ %s", snap.Next.Location)
		}
		_, _ = fmt.Fprintln(w)
	}
}

func printDays(w io.Writer, buckets []agenda.DayBucket) {
	for _, bucket := range buckets {
		label := bucket.Label
		if label == "" {
			label = "Agenda"
		}
		_, _ = fmt.Fprintln(w, label)
		for _, item := range bucket.Items {
			_, _ = fmt.Fprintf(w, "  %-19s  %-12s  %s\n", agenda.FormatTimeRange(item), item.Type, item.Title)
		}
	}
}
