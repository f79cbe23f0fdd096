package signaling

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/screenmesh/screenshare-relay/internal/metrics"
	"github.com/screenmesh/screenshare-relay/internal/registry"
)

const (
	defaultIdleTimeout     = 60 * time.Second
	defaultPingInterval    = 20 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultMaxMessageBytes = int64(64 * 1024) // SDP bodies dominate; 64KB is ample.
	defaultSendQueue       = 32
)

// Config configures the signaling server. Zero-valued limits fall back to
// defaults.
type Config struct {
	Logger   *slog.Logger
	Registry *registry.Registry
	Metrics  *metrics.Metrics

	// AllowedOrigins restricts websocket upgrades by Origin header.
	// Empty allows any origin (dev).
	AllowedOrigins []string

	IdleTimeout     time.Duration
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	SendQueueSize   int
}

// Server upgrades HTTP requests to signaling websockets and runs one client
// per connection.
type Server struct {
	log      *slog.Logger
	router   *Router
	limits   wireLimits
	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	met := cfg.Metrics
	if met == nil {
		met = metrics.New()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = registry.New()
	}

	limits := wireLimits{
		idleTimeout:     cfg.IdleTimeout,
		pingInterval:    cfg.PingInterval,
		writeTimeout:    cfg.WriteTimeout,
		maxMessageBytes: cfg.MaxMessageBytes,
		sendQueue:       cfg.SendQueueSize,
	}
	if limits.idleTimeout <= 0 {
		limits.idleTimeout = defaultIdleTimeout
	}
	if limits.pingInterval <= 0 {
		limits.pingInterval = defaultPingInterval
	}
	if limits.writeTimeout <= 0 {
		limits.writeTimeout = defaultWriteTimeout
	}
	if limits.maxMessageBytes <= 0 {
		limits.maxMessageBytes = defaultMaxMessageBytes
	}
	if limits.sendQueue <= 0 {
		limits.sendQueue = defaultSendQueue
	}

	return &Server{
		log:    log,
		router: NewRouter(log, reg, met),
		limits: limits,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowedOrigins),
		},
	}
}

// Router exposes the router, mainly for tests that drive it directly.
func (s *Server) Router() *Router {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newClient(uuid.NewString(), conn, s.router, s.log, s.limits)
	s.router.Register(c)

	go c.writePump()
	c.readPump()
}

// originChecker allows any origin when the list is empty, otherwise
// requires a case-insensitive match on scheme://host.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin; same stance as
			// browsers take for same-origin requests.
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
