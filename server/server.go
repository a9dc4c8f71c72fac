// Package server exposes the dialog service over HTTP: a chat endpoint,
// conversation history, health, and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowchat-io/flowchat/dialog"
	"github.com/flowchat-io/flowchat/internal/profile"
	"github.com/flowchat-io/flowchat/store"
)

type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile
	service    *dialog.Service
	store      *store.Store
}

func NewServer(profile *profile.Profile, service *dialog.Service, s *store.Store) (*Server, error) {
	if service == nil {
		return nil, errors.New("server requires a dialog service")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("http request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	srv := &Server{
		echoServer: e,
		profile:    profile,
		service:    service,
		store:      s,
	}
	srv.registerRoutes()
	return srv, nil
}

func (s *Server) registerRoutes() {
	e := s.echoServer

	e.GET("/healthz", s.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	g := e.Group("/api/v1")
	g.POST("/chat", s.chat)
	g.GET("/conversations", s.listConversations)
	g.GET("/conversations/:user_id/history", s.conversationHistory)
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	slog.Info("server started", "address", address, "mode", s.profile.Mode)

	select {
	case err := <-errCh:
		return errors.Wrap(err, "failed to start server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echoServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shut down server")
	}
	slog.Info("server stopped")
	return nil
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.profile.Version,
	})
}
