package zsock

import (
	"net"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Transport is the scheme of an endpoint.
type Transport string

const (
	TCP    Transport = "tcp"
	IPC    Transport = "ipc"
	Inproc Transport = "inproc"
)

const (
	maxInprocName = 256
	maxIPCPath    = 107
	maxHostName   = 253
)

// Endpoint is a parsed transport address.
type Endpoint struct {
	Transport Transport
	// Host is "*" for every interface, an IP literal without brackets, or a
	// DNS name. TCP only.
	Host string
	// Port is 0 for an ephemeral port chosen at bind. TCP only.
	Port int
	// Path is the IPC path or inproc name.
	Path string
}

var endpointCache = newEndpointCache()

func newEndpointCache() *lru.Cache[string, Endpoint] {
	c, err := lru.New[string, Endpoint](512)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseEndpoint validates s and splits it into its parts.
func ParseEndpoint(s string) (Endpoint, error) {
	if ep, ok := endpointCache.Get(s); ok {
		return ep, nil
	}
	ep, err := parseEndpoint(s)
	if err != nil {
		return Endpoint{}, err
	}
	endpointCache.Add(s, ep)
	return ep, nil
}

func invalidEndpoint(s, reason string) error {
	return &Error{Kind: KindInvalidEndpoint, Op: "parse", Endpoint: s, Reason: reason}
}

func parseEndpoint(s string) (Endpoint, error) {
	scheme, addr, ok := strings.Cut(s, "://")
	if !ok {
		return Endpoint{}, invalidEndpoint(s, "missing scheme")
	}
	switch Transport(scheme) {
	case TCP:
		return parseTCP(s, addr)
	case IPC:
		if addr == "" {
			return Endpoint{}, invalidEndpoint(s, "empty ipc path")
		}
		if len(addr) > maxIPCPath {
			return Endpoint{}, invalidEndpoint(s, "ipc path too long")
		}
		return Endpoint{Transport: IPC, Path: addr}, nil
	case Inproc:
		if addr == "" || len(addr) > maxInprocName {
			return Endpoint{}, invalidEndpoint(s, "inproc name must be 1 to 256 bytes")
		}
		return Endpoint{Transport: Inproc, Path: addr}, nil
	}
	return Endpoint{}, invalidEndpoint(s, "unknown transport "+strconv.Quote(scheme))
}

func parseTCP(s, addr string) (Endpoint, error) {
	i := strings.LastIndexByte(addr, ':')
	if i < 0 {
		return Endpoint{}, invalidEndpoint(s, "missing port")
	}
	host, portText := addr[:i], addr[i+1:]

	port := 0
	if portText != "*" {
		n, err := strconv.Atoi(portText)
		if err != nil || n < 0 || n > 65535 {
			return Endpoint{}, invalidEndpoint(s, "port must be 1 to 65535, * or 0")
		}
		port = n
	}

	switch {
	case host == "*":
	case strings.HasPrefix(host, "["):
		if !strings.HasSuffix(host, "]") {
			return Endpoint{}, invalidEndpoint(s, "unterminated IPv6 literal")
		}
		host = host[1 : len(host)-1]
		if ip := net.ParseIP(host); ip == nil || ip.To4() != nil {
			return Endpoint{}, invalidEndpoint(s, "bad IPv6 literal")
		}
	case net.ParseIP(host) != nil:
		if strings.Contains(host, ":") {
			return Endpoint{}, invalidEndpoint(s, "IPv6 literal needs brackets")
		}
	case !validHostName(host):
		return Endpoint{}, invalidEndpoint(s, "bad host "+strconv.Quote(host))
	}
	return Endpoint{Transport: TCP, Host: host, Port: port}, nil
}

func validHostName(h string) bool {
	if h == "" || len(h) > maxHostName {
		return false
	}
	for _, label := range strings.Split(h, ".") {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				return false
			}
		}
	}
	return true
}

// IsWildcard reports a TCP endpoint whose port is picked at bind time.
func (e Endpoint) IsWildcard() bool {
	return e.Transport == TCP && e.Port == 0
}

func (e Endpoint) String() string {
	if e.Transport != TCP {
		return string(e.Transport) + "://" + e.Path
	}
	host := e.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := "*"
	if e.Port != 0 {
		port = strconv.Itoa(e.Port)
	}
	return "tcp://" + host + ":" + port
}

// TCPEndpoint builds a TCP endpoint. Port 0 asks for an ephemeral port.
func TCPEndpoint(host string, port int) Endpoint {
	return Endpoint{Transport: TCP, Host: host, Port: port}
}

// IPCEndpoint builds an IPC endpoint.
func IPCEndpoint(path string) Endpoint {
	return Endpoint{Transport: IPC, Path: path}
}

// InprocEndpoint builds an inproc endpoint.
func InprocEndpoint(name string) Endpoint {
	return Endpoint{Transport: Inproc, Path: name}
}
