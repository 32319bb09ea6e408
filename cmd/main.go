package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	nested "github.com/antonfisher/nested-logrus-formatter"
	log "github.com/sirupsen/logrus"

	"github.io/kevin-rd/k8s-tools/go-ftproxy/internal/ftproxy"
	"github.io/kevin-rd/k8s-tools/go-ftproxy/internal/metrics"
)

var (
	cfg         = ftproxy.DefaultConfig()
	metricsAddr string
	logLevel    string
)

func init() {
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "address for FTP client control connections")
	flag.StringVar(&cfg.UpstreamPort, "upstream-port", cfg.UpstreamPort, "control port of upstream FTP servers")
	flag.DurationVar(&cfg.DataIdleTimeout, "data-timeout", cfg.DataIdleTimeout, "idle timeout on the server data connection")
	flag.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "connect timeout for outgoing connections, 0 for OS default")
	flag.IntVar(&cfg.MaxLineLength, "max-line", cfg.MaxLineLength, "maximum control line length in bytes")
	flag.IntVar(&cfg.MaxSessions, "max-sessions", cfg.MaxSessions, "maximum concurrent sessions, 1 serves clients one at a time")
	flag.StringVar(&metricsAddr, "metrics", ":10081", "metrics listen address, empty to disable")
	flag.StringVar(&logLevel, "log-level", "debug", "log level")

	log.SetFormatter(&nested.Formatter{
		NoColors: false,
	})
	log.SetReportCaller(true)
}

func main() {
	flag.Parse()
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", logLevel, err)
	}
	log.SetLevel(level)
	log.Info("Welcome go ftproxy!")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		count := 0
		for sig := range stopCh {
			count++
			log.Debugf("Receive signal: %v, count: %d", sig, count)

			if count == 1 {
				log.Info("First signal received, initiating graceful shutdown...")
				cancel()
			} else {
				log.Warn("Receive signal again, force exit.")
				os.Exit(1)
			}
		}
	}()

	if metricsAddr != "" {
		go func() {
			log.Info("Starting metrics server...")
			if err := metrics.StartServer(ctx, metricsAddr); err != nil {
				if err == http.ErrServerClosed {
					log.Info("Metrics server has gracefully shutdown.")
				} else {
					log.Fatalf("metrics server error: %v", err)
				}
			}
		}()
	}

	ftproxy.MustStart(ctx, cfg)
	log.Info("Shutdown done.")
}
