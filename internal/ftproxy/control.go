package ftproxy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
)

func newControlConn(conn net.Conn, maxLine int) controlConn {
	return controlConn{reader: bufio.NewReaderSize(conn, maxLine), conn: conn}
}

// readLine reads one CRLF-terminated line, including its terminator. Lines
// that do not fit in the reader's buffer are rejected.
func (c controlConn) readLine() (string, error) {
	line, err := c.reader.ReadSlice('\n')
	switch {
	case err == nil:
		return string(line), nil
	case errors.Is(err, bufio.ErrBufferFull):
		return "", fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, c.reader.Size())
	case errors.Is(err, io.EOF):
		return "", ErrPeerClosed
	default:
		return "", err
	}
}

// readReply reads a complete server reply. A multi-line reply ("ddd-...")
// runs until the line starting with the same code and a space. The bytes are
// returned exactly as received.
func (c controlConn) readReply() (string, error) {
	first, err := c.readLine()
	if err != nil {
		return "", err
	}
	if len(first) < 4 || first[3] != '-' || !isCode(first[:3]) {
		return first, nil
	}
	reply := first
	for {
		line, err := c.readLine()
		if err != nil {
			return "", err
		}
		reply += line
		if len(line) >= 4 && line[:3] == first[:3] && line[3] == ' ' {
			return reply, nil
		}
	}
}

func (c controlConn) write(s string) error {
	_, err := io.WriteString(c.conn, s)
	return err
}

func isCode(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) == 3
}
