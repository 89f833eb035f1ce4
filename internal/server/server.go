// Package server assembles the gin engine, wires every collaborator package
// together, and runs the HTTP server with graceful shutdown, following the
// shape of the teacher's internal/radio.Server (NewServer + Start(ctx)).
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/airwave/stationd/config"
	"github.com/airwave/stationd/internal/sessionauth"
	"github.com/airwave/stationd/internal/sessionlayer"
	"github.com/airwave/stationd/internal/station"
)

// Server owns the gin engine and the wrapped http.Server, mirroring the
// teacher's Server type.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
}

// New builds the gin engine for the streaming core's HTTP surface (spec.md
// §6) plus the minimal session login/register plumbing endpoints
// (SPEC_FULL.md §4) needed to run standalone, and wraps it in an http.Server.
func New(cfg *config.Config, state *station.State, broadcaster *station.Broadcaster, bus *station.EventBus, auth *sessionauth.Manager) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(securityHeaders())
	engine.Use(corsMiddleware(cfg.CORSOrigins))

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	registerSessionRoutes(engine, auth)

	handlers := sessionlayer.New(state, broadcaster, bus, auth, cfg.MaxClients, config.BroadcastQueueSize)
	engine.GET("/stream", handlers.Stream)
	engine.POST("/heartbeat", handlers.Heartbeat)
	engine.GET("/listeners", handlers.Listeners)
	engine.GET("/song/current", handlers.CurrentSong)
	engine.GET("/ws", handlers.Events)

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      engine,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // streaming responses never time out
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully, matching the teacher's Server.Start.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		slog.Info("http server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// securityHeaders mirrors the teacher's SecurityHeadersMiddleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// corsMiddleware allows the configured origins to call the API with
// credentials (the session cookie), falling back to no CORS headers at all
// when no origins are configured.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// registerSessionRoutes wires the cookie-based login/registration plumbing
// described in SPEC_FULL.md §4: not part of the streaming core itself, but
// needed so the module can resolve a session end to end.
func registerSessionRoutes(engine *gin.Engine, auth *sessionauth.Manager) {
	group := engine.Group("/session")

	group.POST("/register", func(c *gin.Context) {
		var body struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		user, err := auth.Register(c.Request.Context(), body.Username, body.Password)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sessionauth.ErrUsernameTaken) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		if err := auth.IssueSession(c.Writer, user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue session"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"user_id": user.ID, "username": user.Username})
	})

	group.POST("/login", func(c *gin.Context) {
		var body struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		user, err := auth.Login(c.Request.Context(), c.Writer, body.Username, body.Password, c.Request.RemoteAddr)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, sessionauth.ErrRateLimited) {
				status = http.StatusTooManyRequests
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": user.ID, "username": user.Username})
	})

	group.POST("/logout", func(c *gin.Context) {
		auth.ClearSession(c.Writer)
		c.Status(http.StatusNoContent)
	})
}
