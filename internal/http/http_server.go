package http

// this is entry point of the http request handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gitlab.com/savesync.net/internal/config"
	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/services/completion"
	"gitlab.com/savesync.net/internal/core/services/deletion"
	"gitlab.com/savesync.net/internal/core/services/operation"
	"gitlab.com/savesync.net/internal/core/services/worker"
	"gitlab.com/savesync.net/internal/handlers"
	"gitlab.com/savesync.net/internal/handlers/admin"
	"gitlab.com/savesync.net/internal/handlers/operations"
	"gitlab.com/savesync.net/internal/handlers/workers"
)

type ServiceProvider struct {
	workerService worker.IWorkerRegistryService
	queue         operation.IOperationQueue
	coordinator   completion.ICompletionCoordinator
	planner       deletion.IDeletionPlanner
	secrets       primary.JWTService
}

func NewServiceProvider(
	workerService worker.IWorkerRegistryService,
	queue operation.IOperationQueue,
	coordinator completion.ICompletionCoordinator,
	planner deletion.IDeletionPlanner,
	secrets primary.JWTService,
) *ServiceProvider {
	return &ServiceProvider{
		workerService: workerService,
		queue:         queue,
		coordinator:   coordinator,
		planner:       planner,
		secrets:       secrets,
	}
}

// RouteRegistrar mounts extra routes, such as the websocket gateway
type RouteRegistrar interface {
	RegisterRoutes(r *mux.Router)
}

type Server struct {
	router          *mux.Router
	Port            int
	ServiceName     string
	ServiceProvider ServiceProvider
	sweepCfg        *config.SweepConfig
	logger          primary.Logger
	extra           []RouteRegistrar
	srv             *http.Server
}

func NewServer(cfg *config.HTTPConfig, sweepCfg *config.SweepConfig, serviceProvider ServiceProvider, logger primary.Logger, extra ...RouteRegistrar) *Server {
	return &Server{
		Port:            cfg.Port,
		ServiceName:     cfg.ServiceName,
		ServiceProvider: serviceProvider,
		sweepCfg:        sweepCfg,
		logger:          logger,
		extra:           extra,
	}
}

func (s *Server) Init() error {
	r := mux.NewRouter()
	sp := s.ServiceProvider
	middleware := handlers.NewMiddleware(sp.secrets)

	workers.NewHandler(sp.workerService, sp.queue, middleware, s.logger).Register(r)
	operations.
		NewOperationHandler(sp.queue, sp.coordinator, sp.workerService, middleware, s.logger).
		RegisterRoutes(r)
	admin.
		NewHandler(sp.queue, sp.coordinator, sp.planner, middleware, s.sweepCfg, s.logger).
		RegisterRoutes(r)
	for _, registrar := range s.extra {
		registrar.RegisterRoutes(r)
	}
	s.router = r
	return nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background; errc receives a listen failure
func (s *Server) Start(ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	// Set up server. No WriteTimeout: websocket sessions set their own deadlines.
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	// Start the server in a goroutine
	go func() {
		s.logger.Info("Server listening", "addr", s.srv.Addr, "service", s.ServiceName)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error", "error", err)
			errc <- err
		}
		close(errc)
	}()
	return errc
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down http server...")
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}
