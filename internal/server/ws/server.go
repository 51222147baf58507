// Package ws is the websocket transport of the change notifier. Each
// connection joins its owner's group in the hub and receives a frame per
// change applied by another session.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/dmitrijs2005/notesync/internal/clock"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/rpc"
	"github.com/dmitrijs2005/notesync/internal/server/auth"
	"github.com/dmitrijs2005/notesync/internal/server/notify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	writeTimeout = 5 * time.Second
	maxSessionID = 64
)

type Server struct {
	address      string
	hub          *notify.Hub
	jwtSecret    []byte
	logger       logging.Logger
	pingInterval time.Duration
	now          func() time.Time
}

func NewServer(a string, hub *notify.Hub, secretKey string, l logging.Logger) *Server {
	return &Server{
		address:      a,
		hub:          hub,
		jwtSecret:    []byte(secretKey),
		logger:       l.With("module", "ws_server"),
		pingInterval: 30 * time.Second,
		now:          time.Now,
	}
}

// Router mounts the notifier endpoints:
//
//	GET /ws      websocket upgrade, authenticated by access token
//	GET /health  liveness probe
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	return r
}

func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// hijacked connections end with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping websocket server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting websocket server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ownerID(r *http.Request) (string, error) {
	token := auth.TokenFromAuthorization(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get(common.AccessTokenHeaderName)
	}
	if token == "" {
		return "", common.ErrInvalidToken
	}
	return auth.GetOwnerIDFromToken(token, s.jwtSecret)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := s.ownerID(r)
	if err != nil {
		s.logger.Warn(ctx, "Rejected websocket connection", "remote", r.RemoteAddr, "error", err.Error())
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID := r.URL.Query().Get(rpc.SessionHeaderName)
	if sessionID == "" || len(sessionID) > maxSessionID {
		sessionID = uuid.NewString()
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn(ctx, "WebSocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.CloseNow()

	sub := s.hub.Join(ownerID, sessionID)
	defer sub.Close()

	connLog := s.logger.With("owner", ownerID, "session", sessionID)
	connLog.Info(ctx, "Client connected", "sessions", s.hub.Sessions(ownerID))

	// clients never send data frames; this only services control frames
	// and reports the peer going away
	ctx = conn.CloseRead(ctx)

	hello := rpc.RealtimeMessage{Type: rpc.MessageHello, ServerTime: clock.Format(s.now()), SessionID: sessionID}
	if err := s.write(ctx, conn, hello); err != nil {
		connLog.Warn(ctx, "Failed to send hello", "error", err.Error())
		return
	}

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			connLog.Info(context.Background(), "Client disconnected")
			conn.Close(websocket.StatusGoingAway, "")
			return

		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				connLog.Info(ctx, "Client stopped answering pings", "error", err.Error())
				return
			}

		case ev, ok := <-sub.Events():
			if !ok {
				conn.Close(websocket.StatusGoingAway, "")
				return
			}
			if err := s.write(ctx, conn, changeMessage(ev)); err != nil {
				connLog.Warn(ctx, "Failed to send to client", "error", err.Error())
				return
			}
		}
	}
}

func changeMessage(ev notify.Event) rpc.RealtimeMessage {
	return rpc.RealtimeMessage{
		Type:      rpc.MessageChange,
		Kind:      string(ev.Kind),
		RecordID:  ev.RecordID,
		OwnerID:   ev.OwnerID,
		Version:   ev.Version,
		UpdatedAt: ev.UpdatedAt,
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg rpc.RealtimeMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":      "ok",
		"server_time": clock.Format(s.now()),
	})
}
