package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/usecase"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/utils"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Submitter  usecase.IntakeSubmitter
	Intakes    IntakeReader
	Dispatcher usecase.Dispatcher
	Upload     config.UploadConfig
	Admin      config.AdminConfig
	Logger     *zap.Logger
}

// NewRouter builds the gin engine with the intake and admin routes.
func NewRouter(deps Deps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(RequestContext(log.Named("http")), Recovery())
	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, fmt.Errorf("route %s %s not found", c.Request.Method, c.Request.URL.Path))
	})

	NewIntakeHandler(deps.Submitter, deps.Upload).RegisterRoutes(r)
	NewAdminHandler(deps.Intakes, deps.Dispatcher, deps.Admin).RegisterRoutes(r)
	return r
}

// Server runs the public HTTP listener.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer wraps handler in an http.Server using the configured timeouts.
func NewServer(cfg *config.Config, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
		},
		logger: logger,
	}
}

// Start serves in the background. A listener failure is reported on errCh.
func (s *Server) Start(errCh chan<- error) {
	utils.SafeGo(func() {
		s.logger.Info("Starting intake HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Intake HTTP server error", zap.Error(err))
			if errCh != nil {
				errCh <- err
			}
		}
	}, nil)
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping intake HTTP server")
	return s.httpServer.Shutdown(ctx)
}
