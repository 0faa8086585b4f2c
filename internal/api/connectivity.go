package api

import (
	"fmt"
	"net"
	"net/url"
	"time"
)

// ConnectivityChecker answers the pre-flight "are we online" question.
// Offline requests fail fast instead of burning the HTTP client timeout.
type ConnectivityChecker interface {
	Online() bool
}

// DialChecker probes reachability with a short TCP dial to the API host.
type DialChecker struct {
	addr    string
	timeout time.Duration
}

// NewDialChecker builds a checker for the host of baseURL.
func NewDialChecker(baseURL string) (*DialChecker, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}

	host := u.Host
	if u.Port() == "" {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	return &DialChecker{addr: host, timeout: 3 * time.Second}, nil
}

// Online reports whether the API host accepts a TCP connection.
func (c *DialChecker) Online() bool {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

// AlwaysOnline returns a checker that never reports offline. Used in tests
// and when the pre-flight probe is disabled.
func AlwaysOnline() ConnectivityChecker {
	return alwaysOnline{}
}
