package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kubev2v/transcriber/internal/auth"
	"github.com/kubev2v/transcriber/internal/config"
	handlers "github.com/kubev2v/transcriber/internal/handlers/v1alpha1"
	"github.com/kubev2v/transcriber/pkg/log"
	"github.com/kubev2v/transcriber/pkg/metrics"
	"github.com/kubev2v/transcriber/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg           *config.Config
	handler       *handlers.ServiceHandler
	authenticator auth.Authenticator
	listener      net.Listener
}

// New returns a new instance of the transcriber api server.
func New(
	cfg *config.Config,
	handler *handlers.ServiceHandler,
	authenticator auth.Authenticator,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:           cfg,
		handler:       handler,
		authenticator: authenticator,
		listener:      listener,
	}
}

// Router builds the middleware chain and the api routes.
func (s *Server) Router() (http.Handler, error) {
	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	if err := metricMiddleware.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("failed to register http metrics: %w", err)
	}

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.Service.CorsAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}),
		middleware.RequestID,
		log.Logger(zap.L(), "router"),
		chiMiddleware.Recoverer,
		s.authenticator.Authenticator,
	)

	s.handler.RegisterRoutes(router)
	return router, nil
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router, err := s.Router()
	if err != nil {
		return err
	}
	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
