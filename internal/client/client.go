// Package client talks to the companion API on behalf of an attendee or
// speaker. A Client is built once per process and shared by every caller.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/example/conference-companion/internal/agenda"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 8 << 20
	userAgent       = "companion-client"
)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sets the initial bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is a JSON client for the companion API.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger

	mu    sync.RWMutex
	token string
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: defaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "client")
	return c, nil
}

// SetToken replaces the bearer token used by later calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields"`
}

// request performs one API call and returns the raw response body of a
// successful call.
func (c *Client) request(ctx context.Context, method, endpoint string, query url.Values, body any) ([]byte, error) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	target := c.base.JoinPath(endpoint)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.DebugContext(ctx, "api call", "method", method, "endpoint", endpoint,
		"status", resp.StatusCode, "duration_ms", time.Since(started).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeFailure(resp.StatusCode, raw)
	}
	return raw, nil
}

func decodeFailure(status int, raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Error == "" {
		return &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
	}
	return &APIError{Status: status, Code: env.Code, Message: env.Error, Fields: env.Fields}
}

// call performs a request and decodes the envelope data into out.
func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	raw, err := c.request(ctx, method, endpoint, query, body)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return &APIError{Status: http.StatusOK, Code: env.Code, Message: env.Error, Fields: env.Fields}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Token, error) {
	var token Token
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, http.MethodPost, "/api/auth/token", nil, body, &token); err != nil {
		return Token{}, err
	}
	c.SetToken(token.Token)
	return token, nil
}

// Agenda fetches the sessions of an event. Every envelope shape the agenda
// source produces is accepted.
func (c *Client) Agenda(ctx context.Context, eventID string) ([]agenda.Item, error) {
	raw, err := c.request(ctx, http.MethodGet, "/api/agenda", url.Values{"eventId": {eventID}}, nil)
	if err != nil {
		return nil, err
	}
	items, err := agenda.DecodeEnvelope(raw)
	if err != nil {
		var srcErr *agenda.SourceError
		if errors.As(err, &srcErr) {
			return nil, &APIError{Status: http.StatusOK, Message: srcErr.Message}
		}
		return nil, err
	}
	return items, nil
}

// ImportAgenda replaces the agenda of an event with the items in body.
func (c *Client) ImportAgenda(ctx context.Context, eventID string, body []byte) (ImportResult, error) {
	var result ImportResult
	err := c.call(ctx, http.MethodPut, "/api/agenda", url.Values{"eventId": {eventID}}, body, &result)
	return result, err
}

// Limits fetches the caller's quota snapshot.
func (c *Client) Limits(ctx context.Context) (RequestLimits, error) {
	var limits RequestLimits
	err := c.call(ctx, http.MethodGet, "/api/limits", nil, nil, &limits)
	return limits, err
}

// Pass fetches the caller's pass.
func (c *Client) Pass(ctx context.Context) (Pass, error) {
	var pass Pass
	err := c.call(ctx, http.MethodGet, "/api/pass", nil, nil, &pass)
	return pass, err
}

// Role selects which side of meeting requests to list.
type Role string

const (
	RoleRequester Role = "requester"
	RoleSpeaker   Role = "speaker"
)

// MeetingRequests lists the caller's requests for role, optionally filtered
// by status.
func (c *Client) MeetingRequests(ctx context.Context, role Role, statuses ...string) ([]MeetingRequest, error) {
	query := url.Values{"role": {string(role)}}
	if len(statuses) > 0 {
		query.Set("status", strings.Join(statuses, ","))
	}
	var out []MeetingRequest
	err := c.call(ctx, http.MethodGet, "/api/meeting-requests", query, nil, &out)
	return out, err
}

// CreateMeetingRequest sends a new request to a speaker.
func (c *Client) CreateMeetingRequest(ctx context.Context, params NewMeetingRequest) (MeetingRequest, error) {
	var out MeetingRequest
	err := c.call(ctx, http.MethodPost, "/api/meeting-requests", nil, params, &out)
	return out, err
}

// CancelMeetingRequest withdraws a pending request.
func (c *Client) CancelMeetingRequest(ctx context.Context, id string) (MeetingRequest, error) {
	var out MeetingRequest
	err := c.call(ctx, http.MethodPost, "/api/meeting-requests/"+url.PathEscape(id)+"/cancel", nil, nil, &out)
	return out, err
}

// AcceptMeetingRequest accepts a request addressed to the caller.
func (c *Client) AcceptMeetingRequest(ctx context.Context, id, notes string) (Acceptance, error) {
	var out Acceptance
	body := map[string]string{"notes": notes}
	err := c.call(ctx, http.MethodPost, "/api/meeting-requests/"+url.PathEscape(id)+"/accept", nil, body, &out)
	return out, err
}

// DeclineMeetingRequest declines a request addressed to the caller.
func (c *Client) DeclineMeetingRequest(ctx context.Context, id, reason string) (MeetingRequest, error) {
	var out MeetingRequest
	body := map[string]string{"reason": reason}
	err := c.call(ctx, http.MethodPost, "/api/meeting-requests/"+url.PathEscape(id)+"/decline", nil, body, &out)
	return out, err
}

// Speaker fetches a speaker profile by id or slug.
func (c *Client) Speaker(ctx context.Context, idOrSlug string) (Speaker, error) {
	var out Speaker
	err := c.call(ctx, http.MethodGet, "/api/speakers/"+url.PathEscape(idOrSlug), nil, nil, &out)
	return out, err
}

// NetworkingStats fetches the caller's networking summary.
func (c *Client) NetworkingStats(ctx context.Context) (NetworkingStats, error) {
	var out NetworkingStats
	err := c.call(ctx, http.MethodGet, "/api/networking/stats", nil, nil, &out)
	return out, err
}

// Meetings lists the caller's scheduled meetings.
func (c *Client) Meetings(ctx context.Context) ([]Meeting, error) {
	var out []Meeting
	err := c.call(ctx, http.MethodGet, "/api/meetings", nil, nil, &out)
	return out, err
}

// ToggleBlock blocks or unblocks a user and reports the new state.
func (c *Client) ToggleBlock(ctx context.Context, userID string) (bool, error) {
	var out struct {
		Blocked bool `json:"blocked"`
	}
	err := c.call(ctx, http.MethodPost, "/api/blocks/"+url.PathEscape(userID), nil, nil, &out)
	return out.Blocked, err
}

// RealtimeURL returns the websocket address of the change stream for table,
// optionally narrowed by a filter such as "requester_id=eq.<id>".
func (c *Client) RealtimeURL(table, filter string) string {
	u := c.base.JoinPath("/api/realtime")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	query := url.Values{}
	if table != "" {
		query.Set("table", table)
	}
	if filter != "" {
		query.Set("filter", filter)
	}
	u.RawQuery = query.Encode()
	return u.String()
}
