// Package realtime keeps a websocket open to the server's change notifier and
// turns change events into debounced sync triggers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/dmitrijs2005/notesync/internal/client/client"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/rpc"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultDebounce = 800 * time.Millisecond
	maxMessageSize  = 64 << 10
)

var dial = websocket.Dial

type Listener struct {
	endpoint  string
	token     string
	sessionID string
	onChange  func()
	logger    logging.Logger

	debounce  time.Duration
	retryBase time.Duration
	retryCap  time.Duration

	connected atomic.Bool

	mu    sync.Mutex
	timer *time.Timer
}

type Option func(*Listener)

func WithDebounce(d time.Duration) Option {
	return func(l *Listener) { l.debounce = d }
}

// WithReconnect sets the first and the largest pause between reconnects.
func WithReconnect(base, maxWait time.Duration) Option {
	return func(l *Listener) {
		if base > 0 {
			l.retryBase = base
		}
		if maxWait > 0 {
			l.retryCap = maxWait
		}
	}
}

// NewListener watches endpoint (e.g. ws://host:8080/ws) for changes of the
// token's owner. sessionID must match the one the gRPC client sends so the
// server does not echo this device's own changes.
func NewListener(endpoint, token, sessionID string, onChange func(), l logging.Logger, opts ...Option) *Listener {
	ln := &Listener{
		endpoint:  endpoint,
		token:     token,
		sessionID: sessionID,
		onChange:  onChange,
		logger:    l.With("module", "realtime"),
		debounce:  DefaultDebounce,
		retryBase: time.Second,
		retryCap:  time.Minute,
	}
	for _, o := range opts {
		o(ln)
	}
	return ln
}

// Connected reports whether the listener currently holds a live connection.
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

func (l *Listener) backoff() retry.Backoff {
	b := retry.NewExponential(l.retryBase)
	b = retry.WithCappedDuration(l.retryCap, b)
	return retry.WithJitterPercent(20, b)
}

// Run connects and reconnects until ctx is done. It gives up only when the
// server rejects the token.
func (l *Listener) Run(ctx context.Context) error {
	b := l.backoff()
	for {
		greeted, err := l.listen(ctx)
		l.connected.Store(false)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, client.ErrUnauthorized) {
			return err
		}
		if greeted {
			b = l.backoff()
		}

		wait, _ := b.Next()
		l.logger.Debug(ctx, "realtime connection lost", "error", err, "retry_in", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (l *Listener) dialURL() (string, error) {
	u, err := url.Parse(l.endpoint)
	if err != nil {
		return "", fmt.Errorf("realtime url: %w", err)
	}
	if l.sessionID != "" {
		q := u.Query()
		q.Set(rpc.SessionHeaderName, l.sessionID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// listen runs one connection. greeted reports whether the server said hello.
func (l *Listener) listen(ctx context.Context) (greeted bool, err error) {
	target, err := l.dialURL()
	if err != nil {
		return false, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+l.token)
	conn, resp, err := dial(ctx, target, &websocket.DialOptions{HTTPHeader: header})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, client.ErrUnauthorized
		}
		return false, fmt.Errorf("%w: %v", client.ErrUnavailable, err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return greeted, err
		}

		var msg rpc.RealtimeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			l.logger.Warn(ctx, "bad realtime frame", "error", err)
			continue
		}

		switch msg.Type {
		case rpc.MessageHello:
			greeted = true
			l.connected.Store(true)
			l.logger.Info(ctx, "realtime connected", "session_id", msg.SessionID, "server_time", msg.ServerTime)
			// catch up on anything missed while disconnected
			l.schedule()
		case rpc.MessageChange:
			l.logger.Debug(ctx, "remote change", "kind", msg.Kind, "record_id", msg.RecordID, "version", msg.Version)
			l.schedule()
		}
	}
}

// schedule fires onChange once events have been quiet for the debounce
// period.
func (l *Listener) schedule() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer == nil {
		l.timer = time.AfterFunc(l.debounce, l.onChange)
		return
	}
	l.timer.Reset(l.debounce)
}
