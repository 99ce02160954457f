// Package api exposes the import jobs over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/japaniel/yomikomi/pkg/jobs"
)

// Options configures a Server.
type Options struct {
	// Authorizer gates every /api route except health. Nil allows all requests.
	Authorizer func(*gin.Context) error
	// MaxBodyBytes caps request bodies; 0 disables the cap.
	MaxBodyBytes int64
	// UploadDir receives uploaded import files until their job finishes.
	UploadDir string
	Logger    *slog.Logger
}

type Server struct {
	engine *gin.Engine
	log    *slog.Logger
}

// NewServer builds the gin engine over m.
func NewServer(m *jobs.Manager, opts Options) (*Server, error) {
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}
	if err := os.MkdirAll(opts.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", opts.UploadDir, err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(log))
	engine.Use(MaxBodySize(opts.MaxBodyBytes))

	api := &API{jobs: m, uploadDir: opts.UploadDir, log: log}
	registerRoutes(engine, api, opts.Authorizer)

	return &Server{engine: engine, log: log}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", slog.String("addr", addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
