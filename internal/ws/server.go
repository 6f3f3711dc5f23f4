// Package ws is the realtime gateway's WebSocket layer. It upgrades HTTP
// connections, authenticates them against a bearer token, registers the
// resolved user with the presence registry, and runs the receive loop on an
// epoll-driven worker pool. Deregistration is guaranteed on every exit path:
// peer close, protocol error, heartbeat timeout, and shutdown all converge
// on RemoveConnection.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/meixup/realtime/internal/auth"
	"github.com/meixup/realtime/internal/metrics"
	"github.com/meixup/realtime/internal/presence"
	"github.com/meixup/realtime/internal/protocol"
	"github.com/meixup/realtime/internal/ratelimit"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8080"
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // timeout for WebSocket read operations
	WriteTimeout   time.Duration // bound on a single outbound write
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Server accepts authenticated WebSocket connections and feeds complete text
// frames to the application's message handler. Connection readiness is
// multiplexed through a Poller and frame reads run on a bounded worker pool.
type Server struct {
	config       ServerConfig
	poller       *Poller
	conns        *ConnectionManager
	registry     *presence.Registry
	tokens       *auth.Validator
	limiter      *ratelimit.Limiter // nil disables connection rate limiting
	workerPool   chan struct{}      // semaphore limiting concurrent read workers
	onMessage    func(conn *Connection, data []byte)
	onDisconnect func(conn *Connection) // called after a connection is removed
	httpServer   *http.Server
	done         chan struct{}
	startedAt    time.Time
}

// NewServer creates a Server. The onMessage function is called from a worker
// goroutine whenever a complete WebSocket text frame is received from a
// client; frames from one connection are handed over strictly one at a time,
// in arrival order.
func NewServer(config ServerConfig, registry *presence.Registry, tokens *auth.Validator,
	limiter *ratelimit.Limiter, onMessage func(conn *Connection, data []byte)) *Server {
	return &Server{
		config:     config,
		conns:      NewConnectionManager(),
		registry:   registry,
		tokens:     tokens,
		limiter:    limiter,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		onMessage:  onMessage,
		done:       make(chan struct{}),
	}
}

// Start initializes the poller, configures the HTTP server, and begins
// accepting WebSocket connections. It starts the poll loop in a background
// goroutine and blocks on http.Server.ListenAndServe.
func (s *Server) Start() error {
	var err error
	s.poller, err = NewPoller()
	if err != nil {
		return fmt.Errorf("ws: failed to create poller: %w", err)
	}

	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	go s.pollLoop()

	StartHeartbeat(s, DefaultHeartbeatConfig())

	log.Printf("ws: server listening on %s (workers=%d, max_conns=%d)",
		s.config.ListenAddr, s.config.WorkerPoolSize, s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// handleUpgrade runs the Connecting -> Authenticated -> Active transitions.
// The transport handshake is accepted first; the bearer token is then
// validated, and a failure closes the socket with a policy-violation code
// before the connection ever reaches the presence registry.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	if s.limiter != nil {
		ip := clientIP(r)
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		allowed, _ := s.limiter.Allow(ctx, ip, ratelimit.RuleConnect)
		cancel()
		if !allowed {
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
	}

	token := r.URL.Query().Get("token")

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	userID, err := s.tokens.Validate(token)
	if err != nil {
		log.Printf("ws: auth failed from %s: %v", conn.RemoteAddr(), err)
		s.closeWithPolicyViolation(conn, "authentication failed")
		return
	}

	c := &Connection{
		ID:           uuid.New().String(),
		UserID:       userID,
		Conn:         conn,
		Fd:           socketFD(conn),
		CreatedAt:    time.Now(),
		LastPing:     time.Now(),
		writeTimeout: s.config.WriteTimeout,
	}

	// Active: transport state first, then presence. Register closes any
	// superseded connection for the same user; its poll cleanup follows
	// through RemoveConnection when the closed fd surfaces.
	s.conns.Add(c)
	s.registry.Register(userID, c)

	if err := s.poller.Add(conn); err != nil {
		log.Printf("ws: poller add failed conn=%s user=%d: %v", c.ID, userID, err)
		s.conns.Remove(c.ID)
		s.registry.Release(userID, c)
		return
	}

	s.updateGauges()

	ack, err := protocol.NewServerMessage(protocol.TypeConnected, protocol.ConnectedMsg{UserID: userID})
	if err != nil {
		log.Printf("ws: failed to build connected ack conn=%s: %v", c.ID, err)
	} else if err := c.WriteMessage(ack); err != nil {
		log.Printf("ws: failed to send connected ack conn=%s: %v", c.ID, err)
	}

	log.Printf("ws: user=%d connected conn=%s (total=%d, online=%d)",
		userID, c.ID, s.conns.Count(), s.registry.Count())
}

// closeWithPolicyViolation sends a 1008 close frame and closes the socket.
// Used for connections that never reach Active.
func (s *Server) closeWithPolicyViolation(conn net.Conn, reason string) {
	frame := ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusPolicyViolation, reason))
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_ = ws.WriteFrame(conn, frame)
	_ = conn.Close()
}

// handleHealth responds with the server's health status as JSON, including
// connection and presence counts and uptime. Used by the load balancer for
// health checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		OnlineUsers int    `json:"online_users"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		OnlineUsers: s.registry.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// pollLoop runs the poller wait loop. For each batch of ready connections,
// it dispatches each to a worker goroutine (bounded by the worker pool
// semaphore) that reads and processes the WebSocket frame.
func (s *Server) pollLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.poller.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				// EINTR is expected during signal handling.
				if isEINTR(err) {
					continue
				}
				log.Printf("ws: poller wait error: %v", err)
				continue
			}
		}

		for _, conn := range conns {
			conn := conn // capture for goroutine

			s.workerPool <- struct{}{}

			go func() {
				defer func() { <-s.workerPool }()
				s.readFrame(conn)
			}()
		}
	}
}

// readFrame reads a single WebSocket frame from a ready connection using
// wsutil.NextReader so that control frames (ping, pong, close) are handled
// without blocking on a data frame that may never arrive. If the read fails
// the connection is removed. The per-connection processing flag guarantees
// frames from one connection are read strictly sequentially, which is what
// preserves per-sender ordering end to end.
func (s *Server) readFrame(netConn net.Conn) {
	c := s.conns.GetByConn(netConn)
	if c == nil {
		return
	}

	// Guard against duplicate dispatch from level-triggered epoll.
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&c.processing, 0)

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(netConn, ws.StateServerSide)
	if err != nil {
		// A read timeout means no data was available (stale poll dispatch).
		// Don't kill the connection — the heartbeat handles dead ones.
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}

	_ = netConn.SetReadDeadline(time.Time{})

	// Any frame proves the connection is alive.
	c.LastPing = time.Now()

	if header.OpCode.IsControl() {
		if header.OpCode == ws.OpClose {
			s.RemoveConnection(c)
		}
		return
	}

	data := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			s.RemoveConnection(c)
			return
		}
	}

	if len(data) == 0 {
		return
	}

	if s.onMessage != nil {
		s.onMessage(c, data)
	}
}

// SetOnDisconnect registers a callback invoked after a connection has been
// removed and its presence entry released.
func (s *Server) SetOnDisconnect(fn func(conn *Connection)) {
	s.onDisconnect = fn
}

// RemoveConnection tears a connection down: poller, connection manager, and
// presence registry, in that order. Every exit path of a connection funnels
// here, which is what makes deregistration unconditional — a leaked entry
// would otherwise keep attracting sends until the next failed write.
func (s *Server) RemoveConnection(c *Connection) {
	_ = s.poller.Remove(c.Conn)

	// Only proceed if the connection was actually in the manager. This
	// prevents double cleanup when multiple goroutines race to remove the
	// same connection (e.g. read error + heartbeat timeout).
	if !s.conns.Remove(c.ID) {
		return
	}

	// Release, not Deregister: if the user reconnected already, the newer
	// registration stays.
	s.registry.Release(c.UserID, c)
	s.updateGauges()

	if s.onDisconnect != nil {
		s.onDisconnect(c)
	}

	log.Printf("ws: user=%d disconnected conn=%s (total=%d, online=%d)",
		c.UserID, c.ID, s.conns.Count(), s.registry.Count())
}

// Connections returns the ConnectionManager for external access to
// connection state (e.g. by the heartbeat).
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Registry returns the presence registry the server registers into.
func (s *Server) Registry() *presence.Registry {
	return s.registry
}

// Shutdown performs a graceful shutdown of the server. It stops the HTTP
// listener, signals the poll loop to exit, closes all active connections,
// and cleans up the poller.
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down server...")

	close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("ws: http shutdown error: %v", err)
	}

	for _, c := range s.conns.All() {
		_ = s.poller.Remove(c.Conn)
		s.registry.Release(c.UserID, c)
		c.Close()
	}

	if s.poller != nil {
		_ = s.poller.Close()
	}

	log.Printf("ws: server stopped, all connections closed")
	return nil
}

func (s *Server) updateGauges() {
	metrics.ConnectionsTotal.Set(float64(s.conns.Count()))
	metrics.OnlineUsers.Set(float64(s.registry.Count()))
}

// clientIP extracts the remote host from the request, used as the rate
// limiting identifier for connection attempts.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isEINTR checks if the error is a syscall interrupted error (EINTR),
// which is expected during signal handling and should be retried.
func isEINTR(err error) bool {
	if err == nil {
		return false
	}
	return err.Error() == "interrupted system call" ||
		err.Error() == "errno 4"
}
