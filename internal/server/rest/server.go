// Package rest exposes the TaskKeeper JSON API over HTTP using gin.
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/logging"
	"github.com/dmitrijs2005/taskkeeper/internal/server/blob"
	"github.com/dmitrijs2005/taskkeeper/internal/server/config"
	"github.com/dmitrijs2005/taskkeeper/internal/server/ratelimit"
	"github.com/gin-gonic/gin"
)

type Server struct {
	address       string
	engine        *gin.Engine
	logger        logging.Logger
	users         UserService
	tasks         TaskService
	blobs         blob.Store
	limiter       ratelimit.Limiter
	corsOrigin    string
	maxUploadSize int64
	accessTTL     time.Duration
}

func NewServer(cfg *config.Config, l logging.Logger, us UserService, ts TaskService, blobs blob.Store, limiter ratelimit.Limiter) *Server {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	s := &Server{
		address:       cfg.HTTPAddr,
		logger:        l.With("module", "http_server"),
		users:         us,
		tasks:         ts,
		blobs:         blobs,
		limiter:       limiter,
		corsOrigin:    cfg.CORSOrigin,
		maxUploadSize: cfg.MaxUploadSize,
		accessTTL:     cfg.AccessTokenValidityDuration,
	}

	s.engine = gin.New()
	s.engine.MaxMultipartMemory = 8 << 20
	s.engine.Use(gin.Recovery(), s.loggingMiddleware(), s.corsMiddleware(), s.bodyLimitMiddleware())
	s.registerRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.health)
	s.engine.GET(blob.PublicPrefix+"*key", s.serveBlob)

	api := s.engine.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", s.loginLimitMiddleware(), s.login)
		authGroup.POST("/refresh", s.refresh)
		authGroup.GET("/logout", s.authMiddleware(), s.logout)
		authGroup.POST("/logout", s.authMiddleware(), s.logout)
		authGroup.GET("/me", s.authMiddleware(), s.me)
		authGroup.POST("/register", s.authMiddleware(), s.createUser)
	}

	users := api.Group("/users", s.authMiddleware())
	{
		users.GET("", s.listUsers)
		users.POST("", s.createUser)
		users.GET("/:id", s.getUser)
		users.DELETE("/:id", s.deleteUser)
	}

	tasks := api.Group("/tasks", s.authMiddleware())
	{
		tasks.GET("", s.listTasks)
		tasks.GET("/completed", s.listCompletedTasks)
		tasks.POST("", s.createTask)
		tasks.GET("/:id", s.getTask)
		tasks.PUT("/:id", s.updateTask)
		tasks.DELETE("/:id", s.deleteTask)
		tasks.PUT("/:id/start", s.startTask)
		tasks.PUT("/:id/complete", s.completeTask)
		tasks.POST("/:id/comments", s.addComment)
		tasks.POST("/:id/upload-task-files", s.uploadTaskFiles)
		tasks.POST("/:id/upload-completion-files", s.uploadCompletionFiles)
		tasks.DELETE("/:id/task-files/:fileId", s.removeTaskFile)
		tasks.DELETE("/:id/completion-files/:fileId", s.removeCompletionFile)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}
