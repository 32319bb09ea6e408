package ftproxy

import (
	"context"
	"fmt"
	"net"
	"time"
)

// MinLineLength is the smallest control line buffer bufio accepts.
const MinLineLength = 16

// Dialer opens the proxy's outgoing streams: the upstream control connection
// and both data connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Config struct {
	ListenAddr   string
	UpstreamPort string
	// DataIdleTimeout bounds each read on the server data connection. Zero
	// waits forever.
	DataIdleTimeout time.Duration
	// DialTimeout of zero leaves connect timeouts to the OS.
	DialTimeout   time.Duration
	MaxLineLength int
	// MaxSessions bounds concurrent sessions. 1 serves clients one at a time.
	MaxSessions int
	Dialer      Dialer
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:0",
		UpstreamPort:    DefaultFTPPort,
		DataIdleTimeout: 5 * time.Second,
		MaxLineLength:   DefaultLineSize,
		MaxSessions:     1000,
	}
}

// Validate rejects settings that cannot be honoured as given.
func (c Config) Validate() error {
	if c.MaxLineLength != 0 && c.MaxLineLength < MinLineLength {
		return fmt.Errorf("max line length %d is below %d bytes", c.MaxLineLength, MinLineLength)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max sessions %d is negative", c.MaxSessions)
	}
	return nil
}

// withDefaults fills zero fields so a partially built Config is usable.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.UpstreamPort == "" {
		c.UpstreamPort = d.UpstreamPort
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = d.MaxLineLength
	} else if c.MaxLineLength < MinLineLength {
		c.MaxLineLength = MinLineLength
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = d.MaxSessions
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{Timeout: c.DialTimeout}
	}
	return c
}
