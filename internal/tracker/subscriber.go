package tracker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/conference-companion/internal/realtime"
)

// Subscriber keeps a websocket subscription to the change stream open and
// feeds every change into a RequestBoard.
type Subscriber struct {
	url        string
	token      func() string
	board      *RequestBoard
	dialer     *websocket.Dialer
	onChange   func(realtime.Change)
	maxBackoff time.Duration
	logger     *slog.Logger
}

// NewSubscriber creates a subscriber for the stream at url. token is asked
// for the bearer token on every connection attempt.
func NewSubscriber(url string, token func() string, board *RequestBoard, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		url:        url,
		token:      token,
		board:      board,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		maxBackoff: 30 * time.Second,
		logger:     logger.With("component", "tracker.subscriber"),
	}
}

// OnChange registers a callback invoked after a change was applied.
func (s *Subscriber) OnChange(fn func(realtime.Change)) {
	s.onChange = fn
}

// Run consumes the stream until ctx is cancelled, reconnecting with
// exponential backoff.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := 500 * time.Millisecond
	for {
		connected, err := s.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = 500 * time.Millisecond
		}
		s.logger.WarnContext(ctx, "change stream interrupted, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

func (s *Subscriber) consume(ctx context.Context) (bool, error) {
	header := http.Header{}
	if s.token != nil {
		if token := s.token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, errors.New("change stream rejected the access token")
		}
		return false, err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	s.logger.InfoContext(ctx, "change stream connected")
	for {
		var change realtime.Change
		if err := conn.ReadJSON(&change); err != nil {
			return true, err
		}
		if s.board != nil {
			s.board.ApplyChange(change)
		}
		if s.onChange != nil {
			s.onChange(change)
		}
	}
}
