package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"xrpchan/subprotocol"
)

const wsWriteTimeout = 10 * time.Second

// defaultConnectRatePerMinute and defaultConnectBurst bound how often a
// single account id may attempt to open a peer connection, mirroring the
// per-identifier limiter map an HTTP-facing rate limiter would use.
const (
	defaultConnectRatePerMinute = 30.0
	defaultConnectBurst         = 5
)

// Router handles one decoded peer message and returns the reply protocols to
// write back, mirroring plugin.Orchestrator.HandleMessage's signature so a
// Server can sit directly in front of an Orchestrator.
type Router interface {
	HandleMessage(ctx context.Context, accountID, peerFullAddress string, msg subprotocol.Message) ([]subprotocol.Data, error)
}

// Server accepts inbound peer websocket connections, keeping one live
// connection per account so out-of-band sends (settlement claims, funding
// notices) can reach an already-connected peer without a new dial.
type Server struct {
	Router Router
	Logger *slog.Logger

	// ConnectRatePerMinute and ConnectBurst bound connection attempts per
	// account id. Zero values fall back to defaultConnectRatePerMinute and
	// defaultConnectBurst.
	ConnectRatePerMinute float64
	ConnectBurst         int

	mu       sync.Mutex
	conns    map[string]*websocket.Conn
	limiters map[string]*rate.Limiter
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// ServeHTTP upgrades the request to a websocket and pumps peer frames
// through Router until the connection closes or the request context ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(r.URL.Query().Get("account"))
	if accountID == "" {
		http.Error(w, "missing account", http.StatusBadRequest)
		return
	}
	if !s.connectLimiter(accountID).Allow() {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "connection closed")

	s.register(accountID, conn)
	defer s.unregister(accountID)

	if err := s.pump(r.Context(), accountID, conn); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			s.logger().Warn("peer connection error", slog.String("account_id", accountID), slog.String("error", err.Error()))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) pump(ctx context.Context, accountID string, conn *websocket.Conn) error {
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		env, err := decodeEnvelope(raw)
		if err != nil {
			s.logger().Warn("malformed peer frame", slog.String("account_id", accountID), slog.String("error", err.Error()))
			continue
		}
		msg := subprotocol.Message{Protocols: fromWireData(env.Protocols)}
		reply, err := s.Router.HandleMessage(ctx, accountID, env.PeerAddress, msg)
		if err != nil {
			if writeErr := s.writeError(ctx, conn, accountID, env.RequestID, err); writeErr != nil {
				return writeErr
			}
			continue
		}
		if len(reply) == 0 {
			continue
		}
		if err := s.write(ctx, conn, accountID, "", env.RequestID, reply); err != nil {
			return err
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, accountID, peerAddress, requestID string, protocols []subprotocol.Data) error {
	data, err := encodeEnvelope(accountID, peerAddress, requestID, protocols)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (s *Server) writeError(ctx context.Context, conn *websocket.Conn, accountID, requestID string, cause error) error {
	env := wireEnvelope{AccountID: accountID, RequestID: requestID, Err: cause.Error()}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (s *Server) connectLimiter(accountID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limiters == nil {
		s.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := s.limiters[accountID]
	if ok {
		return l
	}
	perMinute := s.ConnectRatePerMinute
	if perMinute <= 0 {
		perMinute = defaultConnectRatePerMinute
	}
	burst := s.ConnectBurst
	if burst <= 0 {
		burst = defaultConnectBurst
	}
	l = rate.NewLimiter(rate.Limit(perMinute/60.0), burst)
	s.limiters[accountID] = l
	return l
}

func (s *Server) register(accountID string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		s.conns = make(map[string]*websocket.Conn)
	}
	s.conns[accountID] = conn
}

func (s *Server) unregister(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, accountID)
}

// Send delivers protocol data to an already-connected peer out of band, for
// unsolicited sends such as settlement claims and post-funding channel
// refreshes. It implements plugin.PeerSender.
func (s *Server) Send(ctx context.Context, accountID string, protocols []subprotocol.Data) error {
	s.mu.Lock()
	conn, ok := s.conns[accountID]
	s.mu.Unlock()
	if !ok {
		return errNoConnection(accountID)
	}
	return s.write(ctx, conn, accountID, "", "", protocols)
}

type errNoConnection string

func (e errNoConnection) Error() string { return "transport: no live connection for account " + string(e) }
