package ftproxy

import (
	"errors"
	"net"
)

var (
	ErrMalformedLogin = errors.New("malformed login, expected login@server")
	ErrMalformedPort  = errors.New("malformed PORT command")
	ErrMalformedPasv  = errors.New("malformed PASV reply")
	ErrLineTooLong    = errors.New("control line too long")
	ErrPeerClosed     = errors.New("peer closed connection")
	ErrDataTimeout    = errors.New("data connection idle timeout")
	ErrSessionClosed  = errors.New("session closed")
)

// StepError records which step of the dialogue failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
