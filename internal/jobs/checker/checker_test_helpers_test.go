package checker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"proxysheet/internal/domain"
)

// startEchoIPServer serves the body a reachability target such as httpbin.org/ip returns.
func startEchoIPServer(t *testing.T, egressIP string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"origin": %q}`, egressIP)
	}))
	t.Cleanup(server.Close)
	return server
}

// startSOCKS5Server runs a minimal SOCKS5 server that supports CONNECT with
// either no authentication or a single username/password pair.
func startSOCKS5Server(t *testing.T, username, password string) domain.Proxy {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go serveSOCKS5(conn, username, password)
		}
	}()

	return proxyFromAddr(t, listener.Addr().String(), "", "")
}

func serveSOCKS5(conn net.Conn, username, password string) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil || header[0] != 5 {
		return
	}
	methods := make([]byte, header[1])
	if _, err := io.ReadFull(conn, methods); err != nil {
		return
	}

	method := byte(0x00)
	if username != "" {
		method = 0x02
	}
	if !bytes.Contains(methods, []byte{method}) {
		_, _ = conn.Write([]byte{5, 0xFF})
		return
	}
	if _, err := conn.Write([]byte{5, method}); err != nil {
		return
	}

	if method == 0x02 {
		user, pass, err := readUserPass(conn)
		if err != nil {
			return
		}
		if user != username || pass != password {
			_, _ = conn.Write([]byte{1, 1})
			return
		}
		if _, err := conn.Write([]byte{1, 0}); err != nil {
			return
		}
	}

	request := make([]byte, 4)
	if _, err := io.ReadFull(conn, request); err != nil || request[1] != 1 {
		return
	}

	var host string
	switch request[3] {
	case 1:
		ip := make([]byte, net.IPv4len)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	case 3:
		length := make([]byte, 1)
		if _, err := io.ReadFull(conn, length); err != nil {
			return
		}
		name := make([]byte, length[0])
		if _, err := io.ReadFull(conn, name); err != nil {
			return
		}
		host = string(name)
	case 4:
		ip := make([]byte, net.IPv6len)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	default:
		return
	}

	portBytes := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBytes); err != nil {
		return
	}
	port := binary.BigEndian.Uint16(portBytes)

	target, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))), 2*time.Second)
	if err != nil {
		_, _ = conn.Write([]byte{5, 5, 0, 1, 0, 0, 0, 0, 0, 0})
		return
	}
	defer target.Close()

	if _, err := conn.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0}); err != nil {
		return
	}
	_ = conn.SetDeadline(time.Time{})

	go func() { _, _ = io.Copy(target, conn) }()
	_, _ = io.Copy(conn, target)
}

func readUserPass(conn net.Conn) (string, string, error) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		return "", "", err
	}
	user := make([]byte, header[1])
	if _, err := io.ReadFull(conn, user); err != nil {
		return "", "", err
	}
	passLen := make([]byte, 1)
	if _, err := io.ReadFull(conn, passLen); err != nil {
		return "", "", err
	}
	pass := make([]byte, passLen[0])
	if _, err := io.ReadFull(conn, pass); err != nil {
		return "", "", err
	}
	return string(user), string(pass), nil
}

// closedPortProxy returns a proxy pointing at a port nothing listens on.
func closedPortProxy(t *testing.T) domain.Proxy {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	return proxyFromAddr(t, addr, "", "")
}

func proxyFromAddr(t *testing.T, addr, username, password string) domain.Proxy {
	t.Helper()

	addr = strings.TrimPrefix(addr, "http://")
	host, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %q: %v", addr, err)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		t.Fatalf("port %q: %v", rawPort, err)
	}
	proxy, err := domain.NewProxy(host, port, username, password)
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	return proxy
}

func withCredentials(proxy domain.Proxy, username, password string) domain.Proxy {
	proxy.Credentials = &domain.Credentials{Username: username, Password: password}
	return proxy
}
