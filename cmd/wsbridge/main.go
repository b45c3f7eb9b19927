package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/streamware/wsbridge/internal"
	"github.com/streamware/wsbridge/internal/app"
	"github.com/streamware/wsbridge/internal/backend"
	"github.com/streamware/wsbridge/internal/config"
	"github.com/streamware/wsbridge/internal/handler"
	bridge_middleware "github.com/streamware/wsbridge/internal/middleware"
	"github.com/streamware/wsbridge/internal/utils"
	"golang.org/x/exp/slices"
	"golang.org/x/time/rate"
)

var upgradePaths = []string{"/ws", "/"}

func main() {
	log.Info(fmt.Sprintf("Bridge %s is running", internal.BridgeVersionRevision))
	config.LoadConfig()
	app.InitMetrics()

	client := backend.NewClient(config.Config.SSEURL, time.Duration(config.Config.BackendConnectTimeout)*time.Second)
	go func() {
		if err := client.WaitReady(context.Background(), time.Minute); err != nil {
			log.Warnf("backend %s still unreachable, serving anyway: %v", config.Config.SSEURL, err)
		}
	}()

	healthManager := app.NewHealthManager()
	healthManager.UpdateHealthStatus(client)
	go healthManager.StartHealthMonitoring(client)

	extractor, err := utils.NewRealIPExtractor(config.Config.TrustedProxyRanges)
	if err != nil {
		log.Warnf("failed to create RealIPExtractor: %v, using defaults", err)
		extractor, _ = utils.NewRealIPExtractor([]string{})
	}

	mux := http.NewServeMux()
	mux.Handle("/health", http.HandlerFunc(healthManager.HealthHandler))
	mux.Handle("/ready", http.HandlerFunc(healthManager.HealthHandler))
	mux.Handle("/version", http.HandlerFunc(app.VersionHandler))
	mux.Handle("/metrics", promhttp.Handler())
	if config.Config.PprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
	}
	go func() {
		log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", config.Config.MetricsPort), mux))
	}()

	e := echo.New()
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		Skipper:           nil,
		DisableStackAll:   true,
		DisablePrintStack: false,
	}))
	e.Use(app.LogrusLoggerMiddleware())
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return !slices.Contains(upgradePaths, c.Path())
		},
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(config.Config.RPSLimit)),
	}))
	e.Use(app.ConnectionsLimitMiddleware(bridge_middleware.NewConnectionLimiter(config.Config.ConnectionsLimit, extractor), func(c echo.Context) bool {
		return !slices.Contains(upgradePaths, c.Path())
	}))

	h := handler.NewHandler(client, handler.SessionConfig{
		FirstFrameTimeout:  time.Duration(config.Config.FirstFrameTimeout) * time.Second,
		BackendIdleTimeout: time.Duration(config.Config.BackendIdleTimeout) * time.Second,
		WriteTimeout:       time.Duration(config.Config.WriteTimeout) * time.Second,
		MaxFrameSize:       config.Config.MaxFrameSize,
	})

	e.GET("/ws", h.ProxyHandler)
	e.GET("/", h.ProxyHandler)

	var existedPaths []string
	for _, r := range e.Routes() {
		existedPaths = append(existedPaths, r.Path)
	}
	p := prometheus.NewPrometheus("http", func(c echo.Context) bool {
		return !slices.Contains(existedPaths, c.Path())
	})
	e.Use(p.HandlerFunc)

	addr := fmt.Sprintf("%s:%d", config.Config.Host, config.Config.Port)
	if config.Config.SelfSignedTLS {
		cert, key, err := utils.GenerateSelfSignedCertificate()
		if err != nil {
			log.Fatalf("failed to generate self signed certificate: %v", err)
		}
		log.Fatal(e.StartTLS(addr, cert, key))
	} else {
		log.Fatal(e.Start(addr))
	}
}
