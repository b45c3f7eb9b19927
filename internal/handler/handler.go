// Package handler accepts WebSocket clients and bridges each one to the
// upstream SSE backend.
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"github.com/streamware/wsbridge/internal/backend"
)

var (
	activeSessionsMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "number_of_active_sessions",
		Help: "The number of active proxy sessions",
	})
	sessionsTotalMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "number_of_sessions_total",
		Help: "The total number of proxy sessions",
	})
	forwardedEventsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "number_of_forwarded_events",
		Help: "The total number of SSE events forwarded to clients",
	})
	badRequestMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "number_of_bad_requests",
		Help: "The total number of bad requests",
	})
	sessionErrorsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "number_of_session_errors",
		Help: "The total number of failed sessions by failure kind",
	}, []string{"kind"})
)

type handler struct {
	backend    *backend.Client
	sessionCfg SessionConfig
	upgrader   websocket.Upgrader
}

func NewHandler(client *backend.Client, sessionCfg SessionConfig) *handler {
	return &handler{
		backend:    client,
		sessionCfg: sessionCfg,
		upgrader: websocket.Upgrader{
			// The bridge is origin-agnostic, browsers talk to it from
			// anywhere.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ProxyHandler upgrades the connection and runs one session on it. The
// session occupies the request's own goroutine, so sessions are concurrent
// and isolated for free; a failing session never touches the listener.
func (h *handler) ProxyHandler(c echo.Context) error {
	log := log.WithField("prefix", "ProxyHandler")

	traceId := ParseOrGenerateTraceID(c.QueryParam("trace_id"))

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		badRequestMetric.Inc()
		log.Infof("upgrade failed for %v: %v", c.RealIP(), err)
		return nil
	}
	log.WithField("trace_id", traceId).Debugf("connection established: %v", c.RealIP())

	NewSession(conn, h.backend, h.sessionCfg, traceId).Run(c.Request().Context())

	log.WithField("trace_id", traceId).Debugf("connection closed: %v", c.RealIP())
	return nil
}
