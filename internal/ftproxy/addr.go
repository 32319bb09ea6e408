package ftproxy

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLogin splits a "login@server" line on its first '@'. A leading USER
// verb is accepted since real clients send "USER login@server".
func ParseLogin(line string) (login, server string, err error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) > 5 && strings.EqualFold(line[:5], "USER ") {
		line = line[5:]
	}
	login, server, ok := strings.Cut(line, "@")
	server = strings.TrimSpace(server)
	if !ok || login == "" || server == "" || strings.ContainsAny(server, " \t") {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedLogin, line)
	}
	return login, server, nil
}

// ParsePort decodes "PORT h1,h2,h3,h4,p1,p2".
func ParsePort(line string) (Endpoint, error) {
	line = strings.TrimRight(line, "\r\n")
	verb, args, ok := strings.Cut(line, " ")
	if !ok || !strings.EqualFold(verb, "PORT") {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrMalformedPort, line)
	}
	ep, err := parseHostPort(strings.TrimSpace(args))
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrMalformedPort, err)
	}
	return ep, nil
}

// ParsePasv decodes "227 <any text> (h1,h2,h3,h4,p1,p2)". Only the reply code
// and the parenthesised group are checked.
func ParsePasv(reply string) (Endpoint, error) {
	reply = strings.TrimRight(reply, "\r\n")
	if !strings.HasPrefix(reply, strconv.Itoa(CodePassive)) {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrMalformedPasv, reply)
	}
	open := strings.IndexByte(reply, '(')
	if open < 0 {
		return Endpoint{}, fmt.Errorf("%w: no address in %q", ErrMalformedPasv, reply)
	}
	end := strings.IndexByte(reply[open:], ')')
	if end < 0 {
		return Endpoint{}, fmt.Errorf("%w: no address in %q", ErrMalformedPasv, reply)
	}
	ep, err := parseHostPort(reply[open+1 : open+end])
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrMalformedPasv, err)
	}
	return ep, nil
}

// FormatHostPort is the inverse of parseHostPort, used for IPv4 endpoints.
func FormatHostPort(ep Endpoint) string {
	return fmt.Sprintf("%s,%d,%d", strings.ReplaceAll(ep.Host, ".", ","), ep.Port/256, ep.Port%256)
}

func parseHostPort(fields string) (Endpoint, error) {
	parts := strings.Split(fields, ",")
	if len(parts) != 6 {
		return Endpoint{}, fmt.Errorf("expected 6 fields, got %d in %q", len(parts), fields)
	}
	var n [6]int
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return Endpoint{}, fmt.Errorf("field %d is not a decimal: %q", i+1, p)
		}
		v, err := strconv.Atoi(p)
		if err != nil || v > 255 {
			return Endpoint{}, fmt.Errorf("field %d out of range: %q", i+1, p)
		}
		n[i] = v
	}
	return Endpoint{
		Host: fmt.Sprintf("%d.%d.%d.%d", n[0], n[1], n[2], n[3]),
		Port: n[4]*256 + n[5],
	}, nil
}
