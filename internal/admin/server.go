// Package admin serves the HTTP surface of a running controller: health,
// readiness, Prometheus metrics and a session view.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/tether/internal/controller"
	"github.com/danmuck/tether/internal/node"
	"github.com/danmuck/tether/internal/observability"
	"github.com/danmuck/tether/internal/protocol/registry"
	"github.com/danmuck/tether/internal/protocol/session"
)

const version = "0.1.0"

type Options struct {
	Addr        string
	CORSOrigins []string
}

// Server exposes one controller over HTTP.
type Server struct {
	ctrl    *controller.Controller
	opts    Options
	router  *gin.Engine
	started time.Time
	logger  zerolog.Logger
}

var _ node.Node = (*Server)(nil)

func New(ctrl *controller.Controller, opts Options) *Server {
	observability.RegisterMetrics()
	logger := observability.Logger("admin")
	nodeID := ctrl.Config().NodeID

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminRequests(nodeID, logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CORSOrigins),
		AllowMethods: []string{"GET", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ctrl:    ctrl,
		opts:    opts,
		router:  r,
		started: time.Now(),
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) NodeID() string { return s.ctrl.Config().NodeID }

func (s *Server) Kind() string {
	if s.ctrl.Role() == registry.RoleClientOnly {
		return "joiner"
	}
	return "host"
}

// Ready reports whether the controller has a live session.
func (s *Server) Ready() bool { return s.ctrl.IsConnected() }

func (s *Server) HTTPRouter() *gin.Engine { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(s.started).String(),
			"node":     s.NodeID(),
			"kind":     s.Kind(),
			"instance": s.ctrl.InstanceID().String(),
			"version":  version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.Ready() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":    s.Ready(),
			"sessions": s.ctrl.SessionCount(),
			"node":     s.NodeID(),
		})
	})

	s.router.GET("/sessions", func(c *gin.Context) {
		sessions := s.ctrl.Sessions()
		views := make([]session.View, 0, len(sessions))
		for _, sess := range sessions {
			views = append(views, sess.View())
		}
		c.JSON(http.StatusOK, gin.H{
			"local_addr":  s.ctrl.LocalAddr().String(),
			"local_id":    s.ctrl.LocalID(),
			"connected":   s.ctrl.IsConnected(),
			"outstanding": s.ctrl.OutstandingCount(),
			"sessions":    views,
		})
	})

	s.router.DELETE("/sessions/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}
		for _, sess := range s.ctrl.Sessions() {
			if sess.IsLocal() || sess.ID() != int32(id) {
				continue
			}
			s.ctrl.RemoveSession(sess)
			c.JSON(http.StatusOK, gin.H{"status": "removed", "endpoint": sess.Endpoint.String()})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	})

	s.router.GET("/packets", func(c *gin.Context) {
		defs := s.ctrl.Registry().Definitions()
		out := make([]gin.H, 0, len(defs))
		for _, def := range defs {
			out = append(out, gin.H{
				"id":               def.ID,
				"name":             def.Name,
				"ordered":          def.Ordered,
				"reliable":         def.Reliable,
				"requires_session": def.RequiresSession,
				"handlers":         def.HandlerCount(),
			})
		}
		c.JSON(http.StatusOK, gin.H{"packets": out})
	})
}

// Serve runs the HTTP listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
