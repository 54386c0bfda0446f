// Package health reports whether the document store answers, over the
// standard gRPC health protocol and a plain HTTP probe.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name clients can check besides the overall "" status.
const Service = "hosa.studyboard.Store"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Checker struct {
	pinger   Pinger
	server   *health.Server
	interval time.Duration
	serving  atomic.Bool
}

func NewChecker(pinger Pinger, interval time.Duration) *Checker {
	c := &Checker{
		pinger:   pinger,
		server:   health.NewServer(),
		interval: interval,
	}
	c.set(false)
	return c
}

// Register exposes the checker on s.
func (c *Checker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, c.server)
}

// Run pings the store until ctx ends, then reports NOT_SERVING for good.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			c.serving.Store(false)
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check pings the store once and updates the reported status.
func (c *Checker) Check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()

	err := c.pinger.Ping(ctx)
	if err != nil && c.serving.Load() {
		log.Error().Err(err).Msg("store ping failed")
	}
	if err == nil && !c.serving.Load() {
		log.Info().Msg("store reachable")
	}
	c.set(err == nil)
}

func (c *Checker) set(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	c.serving.Store(ok)
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(Service, status)
}

func (c *Checker) Serving() bool {
	return c.serving.Load()
}

// HTTP is the gin probe mirroring the gRPC status.
func (c *Checker) HTTP(ctx *gin.Context) {
	if !c.Serving() {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "NOT_SERVING"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "SERVING"})
}
