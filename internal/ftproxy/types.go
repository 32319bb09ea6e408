package ftproxy

import (
	"bufio"
	"net"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Wire literals produced by the proxy itself.
const (
	WelcomeLine     = "220 Bienvenue au proxy :) \r\n"
	PasvCommand     = "PASV\r\n"
	PortOKLine      = "200 PORT Command successful\r\n"
	DefaultFTPPort  = "21"
	DefaultLineSize = 1024
)

// CodePassive is the only reply code the proxy inspects. Every other reply is
// relayed whatever its code.
const CodePassive = 227

// Endpoint is a host/port pair decoded from six-field FTP notation.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

type controlConn struct {
	reader *bufio.Reader
	conn   net.Conn
}

// Session is one relayed client dialogue. Every stream it holds is closed by
// Close, which Run always calls on return.
type Session struct {
	ID  string
	cfg Config
	log *log.Entry

	mu     sync.Mutex
	closed bool

	client controlConn
	server controlConn
	// active is dialed to the client's PORT endpoint, passive to the server's
	// 227 endpoint.
	active  net.Conn
	passive net.Conn

	login    string
	upstream string
	activeEP Endpoint
	pasvEP   Endpoint
	relayed  int64
}
