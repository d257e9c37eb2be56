// Package dashboard serves a read-only JSON view of the running streams:
// connection groups, buffer occupancy, recent metrics and logs, and host
// resources.
package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"cryptonorm/config"
	"cryptonorm/internal/metrics"
	"cryptonorm/internal/stream"
	"cryptonorm/logger"
)

// Source is the running stream set the dashboard reports on.
type Source interface {
	Groups() []stream.GroupInfo
	Buffers() []metrics.Sizer
}

type Server struct {
	cfg             config.DashboardConfig
	log             *logger.Log
	source          Source
	metricStore     *metricStore
	logStore        *logStore
	metricHandler   metrics.MetricHandlerID
	httpServer      *http.Server
	resourceSampler *resourceSampler
}

// NewServer returns nil when the dashboard is disabled.
func NewServer(cfg config.DashboardConfig, log *logger.Log, source Source) *Server {
	if !cfg.Enabled {
		return nil
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}
	if cfg.MetricsHistory <= 0 {
		cfg.MetricsHistory = 200
	}

	metricStore := newMetricStore(cfg.MetricsHistory)
	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	return &Server{
		cfg:             cfg,
		log:             log,
		source:          source,
		metricStore:     metricStore,
		logStore:        logStore,
		metricHandler:   metrics.RegisterMetricHandler(metricStore.handle),
		resourceSampler: newResourceSampler(cfg.MetricsHistory, cfg.RefreshInterval, cfg.DiskPath, log),
	}
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	s.resourceSampler.start(ctx)
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.buildRouter(appName),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.WithComponent("dashboard").WithFields(logger.Fields{"addr": s.cfg.Address}).Info("serving dashboard")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	s.logStore.close()
	s.resourceSampler.stop()
}

func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"app":                 appName,
			"refresh_interval_ms": s.cfg.RefreshInterval.Milliseconds(),
			"endpoints": []string{
				"/api/groups", "/api/buffers", "/api/report",
				"/api/metrics", "/api/logs", "/api/resources",
			},
		})
	})

	router.GET("/api/groups", func(c *gin.Context) {
		groups := s.source.Groups()
		payload := make([]gin.H, 0, len(groups))
		for _, g := range groups {
			subs := make([]string, 0, len(g.Subscriptions))
			for _, sub := range g.Subscriptions {
				subs = append(subs, sub.String())
			}
			payload = append(payload, gin.H{
				"id":            g.ID,
				"exchange":      g.Exchange.String(),
				"url":           g.URL,
				"state":         g.State.String(),
				"subscriptions": subs,
			})
		}
		c.JSON(http.StatusOK, gin.H{"groups": payload})
	})

	router.GET("/api/buffers", func(c *gin.Context) {
		buffers := s.source.Buffers()
		payload := make([]gin.H, 0, len(buffers))
		for _, b := range buffers {
			payload = append(payload, gin.H{"name": b.Name(), "len": b.Len(), "cap": b.Cap()})
		}
		c.JSON(http.StatusOK, gin.H{"buffers": payload})
	})

	router.GET("/api/report", func(c *gin.Context) {
		c.JSON(http.StatusOK, logger.Snapshot())
	})

	router.GET("/api/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"metrics": s.metricStore.snapshot()})
	})

	router.GET("/api/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
	})

	router.GET("/api/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshot()})
	})

	return router
}

// normalizeAddress turns "", ":9090", "host" or "http://host:port" into a
// host:port listen address, defaulting to 0.0.0.0:8080.
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil && parsed.Host != "" {
			addr = parsed.Host
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil || !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}
	return addr
}
