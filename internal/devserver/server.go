// Package devserver is a local stand-in for the interview backend. It serves
// the REST and realtime surfaces the client uses, backed by SQLite and a
// scripted interviewer.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gradcompass/interview/internal/auth"
	"github.com/gradcompass/interview/internal/config"
	"github.com/gradcompass/interview/internal/store"
	"github.com/gradcompass/interview/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// Server is the development backend.
type Server struct {
	cfg         *config.ServerConfig
	db          *store.DB
	jwt         *auth.JWTManager
	interviewer *Interviewer
	hub         *hub
	router      *gin.Engine
	now         func() time.Time
}

// New builds the router. The caller owns db.
func New(cfg *config.ServerConfig, db *store.DB, jwt *auth.JWTManager) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:         cfg,
		db:          db,
		jwt:         jwt,
		interviewer: NewInterviewer(cfg.Questions),
		hub:         newHub(),
		now:         time.Now,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: !containsWildcard(s.cfg.AllowedOrigins),
	}))
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", s.register)
		authGroup.POST("/login", s.login)
	}

	interview := router.Group("/interview")
	// The realtime endpoint authenticates by query token itself.
	interview.GET("/ws/:id", s.realtime)

	protected := interview.Group("")
	protected.Use(authMiddleware(s.jwt))
	{
		protected.POST("/start", s.startSession)
		protected.GET("/sessions", s.listSessions)
		protected.GET("/sessions/:id", s.getSession)
	}
	return router
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully and closes
// live realtime channels.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("dev backend listening on %s (database %s)", s.cfg.Addr, s.cfg.DatabasePath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close ends every realtime channel with a going-away close frame.
func (s *Server) Close() {
	s.hub.closeAll()
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}
