package config

import (
	"log"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/sirupsen/logrus"
)

var Config = struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Host        string `env:"HOST" envDefault:"0.0.0.0"`
	Port        int    `env:"PORT" envDefault:"8765"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9103"`

	// Backend SSE endpoint the bridge proxies to. The request method and
	// JSON body placement are a deployment contract: the bridge POSTs the
	// client's JSON verbatim and expects a text/event-stream response.
	SSEURL string `env:"SSE_URL,required"`

	ConnectionsLimit   int      `env:"CONNECTIONS_LIMIT" envDefault:"50"`
	RPSLimit           int      `env:"RPS_LIMIT" envDefault:"5"`
	TrustedProxyRanges []string `env:"TRUSTED_PROXY_RANGES" envDefault:"0.0.0.0/0"`

	// Timeouts in seconds. There is no overall session deadline: a healthy
	// backend stream may run for hours, so only the gaps are bounded.
	FirstFrameTimeout     int `env:"FIRST_FRAME_TIMEOUT" envDefault:"30"`
	BackendConnectTimeout int `env:"BACKEND_CONNECT_TIMEOUT" envDefault:"10"`
	BackendIdleTimeout    int `env:"BACKEND_IDLE_TIMEOUT" envDefault:"120"`
	WriteTimeout          int `env:"WRITE_TIMEOUT" envDefault:"10"`

	MaxFrameSize  int64 `env:"MAX_FRAME_SIZE" envDefault:"1048576"` // 1 MB
	SelfSignedTLS bool  `env:"SELF_SIGNED_TLS" envDefault:"false"`
	PprofEnabled  bool  `env:"PPROF_ENABLED" envDefault:"false"`
}{}

func LoadConfig() {
	if err := env.Parse(&Config); err != nil {
		log.Fatalf("config parsing failed: %v\n", err)
	}

	level, err := logrus.ParseLevel(strings.ToLower(Config.LogLevel))
	if err != nil {
		log.Printf("Invalid LOG_LEVEL '%s', using default 'info'. Valid levels: panic, fatal, error, warn, info, debug, trace", Config.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
