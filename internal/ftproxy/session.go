package ftproxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.io/kevin-rd/k8s-tools/go-ftproxy/internal/metrics"
)

type step struct {
	name string
	run  func(ctx context.Context) error
}

// NewSession takes ownership of an accepted client control connection.
func NewSession(conn net.Conn, cfg Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		ID:     uuid.NewString(),
		cfg:    cfg,
		client: newControlConn(conn, cfg.MaxLineLength),
	}
	s.log = log.WithFields(log.Fields{"session": s.ID, "client": conn.RemoteAddr().String()})
	return s
}

// steps is the fixed dialogue. Each step either advances or ends the session.
func (s *Session) steps() []step {
	return []step{
		{"greet", s.greet},
		{"receive_login", s.receiveLogin},
		{"connect_upstream", s.connectUpstream},
		{"server_banner", s.serverBanner},
		{"send_user", s.sendUser},
		{"relay_pass_request", s.relayReply},
		{"receive_pass", s.relayCommand},
		{"relay_login_result", s.relayReply},
		{"relay_syst", s.relaySyst},
		{"receive_port", s.receivePort},
		{"open_active_data", s.openActiveData},
		{"negotiate_passive", s.negotiatePassive},
		{"open_passive_data", s.openPassiveData},
		{"confirm_port", s.confirmPort},
		{"relay_list", s.relayList},
		{"bridge_data", s.bridgeData},
		{"relay_transfer_complete", s.relayReply},
	}
}

// Run drives the dialogue to completion or to the first failing step. All
// streams are closed when it returns. Cancelling ctx closes them early.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.Close)
	defer func() {
		stop()
		s.Close()
	}()

	for _, st := range s.steps() {
		if err := st.run(ctx); err != nil {
			metrics.StepFailures.WithLabelValues(st.name).Inc()
			return &StepError{Step: st.name, Err: err}
		}
	}
	s.log.Debugf("session completed, %d data bytes relayed", s.relayed)
	return nil
}

// Close releases every stream the session holds. It is safe to call more
// than once and from another goroutine.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, c := range []net.Conn{s.active, s.passive, s.server.conn, s.client.conn} {
		if c != nil {
			_ = c.Close()
		}
	}
}

func (s *Session) attach(dst *net.Conn, conn net.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = conn.Close()
		return ErrSessionClosed
	}
	*dst = conn
	return nil
}

func (s *Session) closeData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range []*net.Conn{&s.active, &s.passive} {
		if *c != nil {
			_ = (*c).Close()
			*c = nil
		}
	}
}

func (s *Session) dial(ctx context.Context, addr string) (net.Conn, error) {
	if s.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DialTimeout)
		defer cancel()
	}
	conn, err := s.cfg.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("fail to connect %s: %w", addr, err)
	}
	return conn, nil
}

func (s *Session) greet(context.Context) error {
	return s.client.write(WelcomeLine)
}

func (s *Session) receiveLogin(context.Context) error {
	line, err := s.client.readLine()
	if err != nil {
		return err
	}
	s.log.Debugf("client -> proxy: %q", line)
	s.login, s.upstream, err = ParseLogin(line)
	return err
}

func (s *Session) connectUpstream(ctx context.Context) error {
	conn, err := s.dial(ctx, net.JoinHostPort(s.upstream, s.cfg.UpstreamPort))
	if err != nil {
		return err
	}
	if err := s.attach(&s.server.conn, conn); err != nil {
		return err
	}
	s.server.reader = bufio.NewReaderSize(conn, s.cfg.MaxLineLength)
	s.log = s.log.WithField("upstream", conn.RemoteAddr().String())
	return nil
}

// serverBanner consumes the upstream greeting; the client already got ours.
func (s *Session) serverBanner(context.Context) error {
	banner, err := s.server.readReply()
	if err != nil {
		return err
	}
	s.log.Debugf("server banner: %q", banner)
	return nil
}

func (s *Session) sendUser(context.Context) error {
	return s.server.write("USER " + s.login + "\r\n")
}

func (s *Session) relayReply(context.Context) error {
	reply, err := s.server.readReply()
	if err != nil {
		return err
	}
	s.log.Debugf("server -> client: %q", reply)
	return s.client.write(reply)
}

func (s *Session) relayCommand(context.Context) error {
	line, err := s.client.readLine()
	if err != nil {
		return err
	}
	if verb, _, _ := strings.Cut(line, " "); strings.EqualFold(verb, "PASS") {
		s.log.Debug("client -> server: PASS ****")
	} else {
		s.log.Debugf("client -> server: %q", line)
	}
	return s.server.write(line)
}

func (s *Session) relaySyst(ctx context.Context) error {
	if err := s.relayCommand(ctx); err != nil {
		return err
	}
	return s.relayReply(ctx)
}

func (s *Session) receivePort(context.Context) error {
	line, err := s.client.readLine()
	if err != nil {
		return err
	}
	s.log.Debugf("client -> proxy: %q", line)
	s.activeEP, err = ParsePort(line)
	return err
}

func (s *Session) openActiveData(ctx context.Context) error {
	conn, err := s.dial(ctx, s.activeEP.String())
	if err != nil {
		return err
	}
	return s.attach(&s.active, conn)
}

func (s *Session) negotiatePassive(context.Context) error {
	if err := s.server.write(PasvCommand); err != nil {
		return err
	}
	reply, err := s.server.readReply()
	if err != nil {
		return err
	}
	s.log.Debugf("server -> proxy: %q", reply)
	s.pasvEP, err = ParsePasv(reply)
	return err
}

func (s *Session) openPassiveData(ctx context.Context) error {
	conn, err := s.dial(ctx, s.pasvEP.String())
	if err != nil {
		return err
	}
	return s.attach(&s.passive, conn)
}

func (s *Session) confirmPort(context.Context) error {
	return s.client.write(PortOKLine)
}

func (s *Session) relayList(ctx context.Context) error {
	if err := s.relayCommand(ctx); err != nil {
		return err
	}
	return s.relayReply(ctx)
}

// bridgeData copies the listing from the server's data stream to the
// client's. Only a cancelled session fails this step: an idle timeout or a
// data error still lets the server report the transfer status.
func (s *Session) bridgeData(ctx context.Context) error {
	sink := s.active
	dst := writerFunc(func(p []byte) (int, error) {
		if s.log.Logger.IsLevelEnabled(log.TraceLevel) {
			s.log.Tracef("listing: %s", p)
		}
		return sink.Write(p)
	})
	n, err := Bridge(ctx, dst, s.passive, s.cfg.DataIdleTimeout)
	s.closeData()
	s.relayed += n
	metrics.DataBytes.Add(float64(n))

	switch {
	case err == nil:
		s.log.Debugf("data transfer done, %d bytes", n)
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, ErrDataTimeout):
		metrics.DataTimeouts.Inc()
		s.log.Infof("data transfer stopped after %d bytes: %v", n, err)
	default:
		s.log.Warnf("data transfer failed after %d bytes: %v", n, err)
	}
	return nil
}
