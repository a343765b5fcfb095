package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomsync/internal/config"
	"github.com/cory-johannsen/roomsync/internal/frontend/handlers"
	"github.com/cory-johannsen/roomsync/internal/gameserver"
)

// Acceptor serves GET /rooms/:room websockets plus the account, health and
// static routes on one HTTP listener.
type Acceptor struct {
	cfg      config.ServerConfig
	registry *gameserver.Registry
	logger   *zap.Logger
	upgrader websocket.Upgrader
	engine   *gin.Engine

	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
	stopping bool
}

// NewAcceptor builds the router. auth may be nil to disable /login and /signup.
//
// Precondition: registry and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.ServerConfig, registry *gameserver.Registry, auth *handlers.AuthHandler, logger *zap.Logger) *Acceptor {
	a := &Acceptor{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Rooms are public; any page may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		quit: make(chan struct{}),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/rooms/:room", a.handleRoom)
	r.GET("/health", a.handleHealth)
	if auth != nil {
		auth.Register(r)
	}
	if cfg.StaticDir != "" {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.StaticDir))))
	} else {
		r.GET("/", func(c *gin.Context) {
			c.String(http.StatusOK, "Hello, world!")
		})
	}
	a.engine = r
	return a
}

// Handler returns the HTTP handler, for mounting under httptest.
func (a *Acceptor) Handler() http.Handler {
	return a.engine
}

// ListenAndServe starts the HTTP listener and serves until Stop is called.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}
	server := a.newHTTPServer()

	a.mu.Lock()
	if a.stopping {
		a.mu.Unlock()
		listener.Close()
		return nil
	}
	a.listener = listener
	a.server = server
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// newHTTPServer bounds the request header read by the client read timeout.
func (a *Acceptor) newHTTPServer() *http.Server {
	return &http.Server{
		Handler:           a.engine,
		ReadHeaderTimeout: a.cfg.ReadTimeout,
	}
}

// handleRoom resolves the room before upgrading so an invalid id is a plain
// HTTP error rather than a websocket close. Requests that cannot become a
// connection are rejected before the room is created.
func (a *Acceptor) handleRoom(c *gin.Context) {
	roomID := c.Param("room")
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.String(http.StatusBadRequest, "websocket upgrade required")
		return
	}
	if a.isStopping() {
		c.String(http.StatusServiceUnavailable, "server shutting down")
		return
	}
	room, err := a.registry.GetOrCreate(roomID)
	if err != nil {
		switch {
		case errors.Is(err, gameserver.ErrInvalidRoomID):
			c.String(http.StatusBadRequest, "invalid room id")
		case errors.Is(err, gameserver.ErrRegistryClosed):
			c.String(http.StatusServiceUnavailable, "server shutting down")
		default:
			a.logger.Error("resolving room", zap.String("room", roomID), zap.Error(err))
			c.String(http.StatusInternalServerError, "internal error")
		}
		return
	}

	a.mu.Lock()
	if a.stopping {
		a.mu.Unlock()
		c.String(http.StatusServiceUnavailable, "server shutting down")
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	raw, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		a.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", c.Request.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	start := time.Now()
	id := uuid.NewString()
	a.logger.Info("client connected",
		zap.String("remote_addr", c.Request.RemoteAddr),
		zap.String("room", roomID),
		zap.String("participant", id),
	)

	transport := NewConn(raw, a.cfg.ReadTimeout, a.cfg.WriteTimeout, a.cfg.PingInterval, a.cfg.MaxMessageBytes)
	conn := gameserver.NewConnection(id, room, transport, a.cfg.OutboxSize, a.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel context when quit signal received
	go func() {
		select {
		case <-a.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := conn.Serve(ctx); err != nil {
		a.logger.Debug("session ended",
			zap.String("participant", id),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	a.logger.Info("session ended cleanly",
		zap.String("participant", id),
		zap.Duration("duration", time.Since(start)),
	)
}

func (a *Acceptor) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"rooms":  a.registry.Count(),
	})
}

// Stop closes the listener, disconnects every websocket and waits for their
// handlers to return.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.stopping {
		a.mu.Unlock()
		return
	}
	a.stopping = true
	a.running = false
	close(a.quit)
	server := a.server
	a.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.WriteTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			a.logger.Warn("http shutdown", zap.Error(err))
		}
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}

func (a *Acceptor) isStopping() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopping
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Ready reports whether the listener is up.
func (a *Acceptor) Ready() bool {
	return a.IsRunning()
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
