package zmq4engine

import (
	"net"
	"strconv"
	"strings"

	"github.com/multifrost/zsock/engine"
)

// findFreePort asks the OS for an unused TCP port on host.
func findFreePort(host string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, translate(err)
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, translate(err)
	}
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port, nil
}

// splitTCP splits a tcp:// endpoint into host and port text.
func splitTCP(endpoint string) (host, port string, ok bool) {
	addr, found := strings.CutPrefix(endpoint, "tcp://")
	if !found {
		return "", "", false
	}
	i := strings.LastIndexByte(addr, ':')
	if i < 0 {
		return "", "", false
	}
	return addr[:i], addr[i+1:], true
}

// resolveBind replaces a wildcard TCP port with a concrete free one, since
// the last endpoint must name the port actually bound.
func resolveBind(endpoint string) (listen, last string, err error) {
	host, port, ok := splitTCP(endpoint)
	if !ok {
		return endpoint, endpoint, nil
	}
	addr := host
	if host == "*" || host == "" {
		addr = "0.0.0.0"
	}
	addr = strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
	if port == "*" || port == "0" {
		n, err := findFreePort(addr)
		if err != nil {
			return "", "", err
		}
		port = strconv.Itoa(n)
	}
	listen = "tcp://" + host + ":" + port

	shown := host
	if host == "*" || host == "0.0.0.0" || host == "" {
		shown = "127.0.0.1"
	}
	return listen, "tcp://" + shown + ":" + port, nil
}

func isWildcardConnect(endpoint string) bool {
	_, port, ok := splitTCP(endpoint)
	return ok && (port == "*" || port == "0")
}

func invalidEndpoint(endpoint string) error {
	return engine.Errorf(engine.EINVAL, "endpoint %q", endpoint)
}
