package domain

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Credentials are the optional username/password pair embedded in an input line.
type Credentials struct {
	Username string
	Password string
}

// Proxy is one parsed input entry. It is built once by the parser and never mutated.
type Proxy struct {
	Host        string
	Port        uint16
	Credentials *Credentials
}

func NewProxy(host string, port int, username, password string) (Proxy, error) {
	host = strings.Trim(strings.TrimSpace(host), "[]")
	if host == "" {
		return Proxy{}, fmt.Errorf("proxy host is empty")
	}
	if port < 1 || port > 65535 {
		return Proxy{}, fmt.Errorf("proxy port %d out of range", port)
	}

	proxy := Proxy{Host: host, Port: uint16(port)}
	if username != "" {
		proxy.Credentials = &Credentials{Username: username, Password: password}
	}

	return proxy, nil
}

// Address returns host:port, bracketing IPv6 hosts.
func (proxy Proxy) Address() string {
	return net.JoinHostPort(proxy.Host, strconv.Itoa(int(proxy.Port)))
}

func (proxy Proxy) HasAuth() bool {
	return proxy.Credentials != nil && proxy.Credentials.Username != ""
}

func (proxy Proxy) Username() string {
	if proxy.Credentials == nil {
		return ""
	}
	return proxy.Credentials.Username
}

func (proxy Proxy) Password() string {
	if proxy.Credentials == nil {
		return ""
	}
	return proxy.Credentials.Password
}

func (proxy Proxy) String() string {
	return proxy.Address()
}
