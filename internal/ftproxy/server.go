package ftproxy

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.io/kevin-rd/k8s-tools/go-ftproxy/internal/metrics"
)

func MustStart(ctx context.Context, cfg Config) {
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	cfg = cfg.withDefaults()

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Fatalf("fail in listen %s: %v", cfg.ListenAddr, err)
	}
	log.Infof("FTP proxy listening on %s", listener.Addr())

	Serve(ctx, listener, cfg)
}

// Serve accepts clients until ctx is cancelled or the listener is closed,
// running one session per client. Accept failures are logged and do not stop
// the loop. It returns once every session has ended.
func Serve(ctx context.Context, listener net.Listener, cfg Config) {
	cfg = cfg.withDefaults()
	defer func() { _ = listener.Close() }()

	go func() {
		<-ctx.Done()
		log.Info("Close FTP proxy listener...")
		_ = listener.Close()
	}()

	var wg sync.WaitGroup
	sem := make(chan struct{}, cfg.MaxSessions)

	defer func() {
		wg.Wait()
		log.Info("FTP proxy has gracefully shutdown.")
	}()

	for {
		// a free slot is taken before accepting so that MaxSessions 1 serves
		// clients strictly one after another
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}

		conn, err := listener.Accept()
		if err != nil {
			<-sem
			if errors.Is(err, net.ErrClosed) {
				log.Debug("FTP proxy stopped from listener status")
				return
			}
			log.Warn("fail in accept: ", err)
			continue
		}

		wg.Add(1)
		go func(conn net.Conn) {
			defer func() {
				wg.Done()
				<-sem
				log.Infof("Connection closed: %v", conn.RemoteAddr())
			}()

			log.Infof("New connection: %v", conn.RemoteAddr())
			handle(ctx, conn, cfg)
		}(conn)
	}
}

func handle(ctx context.Context, conn net.Conn, cfg Config) {
	labels := prometheus.Labels{"host": remoteHost(conn)}
	metrics.SessionGauge.With(labels).Inc()
	metrics.SessionCounter.With(labels).Inc()
	defer metrics.SessionGauge.With(labels).Dec()

	start := time.Now()
	session := NewSession(conn, cfg)
	err := session.Run(ctx)
	metrics.SessionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		session.log.Warn("session aborted: ", err)
	}
}

func remoteHost(conn net.Conn) string {
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
