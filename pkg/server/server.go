/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package server serves the introspection API of an operator: its ports, the partitions of their windows,
// partition size statistics and the prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/numaproj/numawindow/pkg/metrics"
	"github.com/numaproj/numawindow/pkg/operator"
	"github.com/numaproj/numawindow/pkg/shared/logging"
)

// Routes registers the API of op on r.
func Routes(r *gin.Engine, op *operator.Operator, healthCheckers ...metrics.HealthChecker) {
	r.GET("/livez", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/readyz", func(c *gin.Context) {
		for _, hc := range healthCheckers {
			if err := hc.IsHealthy(c.Request.Context()); err != nil {
				logging.FromContext(c.Request.Context()).Errorw("Health check failed", zap.Error(err))
				c.String(http.StatusInternalServerError, err.Error())
				return
			}
		}
		c.Status(http.StatusNoContent)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if os.Getenv(logging.EnvDebug) == "true" {
		pprofRoutes(r.Group("/debug/pprof"))
	}
	v1Routes(r.Group("/api/v1"), NewHandler(op))
}

func pprofRoutes(r gin.IRouter) {
	r.GET("/", gin.WrapF(pprof.Index))
	r.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	r.GET("/profile", gin.WrapF(pprof.Profile))
	r.GET("/symbol", gin.WrapF(pprof.Symbol))
	r.GET("/trace", gin.WrapF(pprof.Trace))
	r.GET("/:profile", func(c *gin.Context) {
		pprof.Handler(c.Param("profile")).ServeHTTP(c.Writer, c.Request)
	})
}

func v1Routes(r gin.IRouter, handler *handler) {
	r.GET("/ports", handler.ListPorts)
	r.GET("/ports/:port/partitions", handler.ListPartitions)
	r.GET("/ports/:port/partitions/stats", handler.GetPartitionStats)
}

type ServerOptions struct {
	Port int
	// HealthCheckers back /readyz
	HealthCheckers []metrics.HealthChecker
}

type server struct {
	options  ServerOptions
	operator *operator.Operator
}

func NewServer(op *operator.Operator, opts ServerOptions) *server {
	return &server{
		options:  opts,
		operator: op,
	}
}

// Start serves until ctx is done.
func (s *server) Start(ctx context.Context) error {
	log := logging.FromContext(ctx)
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{SkipPaths: []string{"/livez", "/metrics"}}), gin.Recovery())
	Routes(router, s.operator, s.options.HealthCheckers...)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.options.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("Failed to shut down the server", zap.Error(err))
		}
	}()
	log.Infow("Starting server", zap.Int("port", s.options.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
