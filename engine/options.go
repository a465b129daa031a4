package engine

import "time"

// Option names understood by the engines. Values crossing the boundary are
// time.Duration for times, int for counts, bool for switches, []byte for
// identities and 32 byte CURVE keys, and string for PLAIN credentials.
const (
	OptLinger            = "linger"
	OptSendHWM           = "send_hwm"
	OptRecvHWM           = "recv_hwm"
	OptSendTimeout       = "send_timeout"
	OptRecvTimeout       = "recv_timeout"
	OptTCPKeepAlive      = "tcp_keepalive"
	OptIdentity          = "identity"
	OptRouterMandatory   = "router_mandatory"
	OptReconnectInterval = "reconnect_interval"
	OptSubscribe         = "subscribe"
	OptUnsubscribe       = "unsubscribe"
	OptJoin              = "join"
	OptLeave             = "leave"
	OptCurveServer       = "curve_server"
	OptCurvePublicKey    = "curve_public_key"
	OptCurveSecretKey    = "curve_secret_key"
	OptCurveServerKey    = "curve_server_key"
	OptPlainServer       = "plain_server"
	OptPlainUsername     = "plain_username"
	OptPlainPassword     = "plain_password"
)

// MaxGroupLength is the longest Radio/Dish group name in bytes.
const MaxGroupLength = 15

// Mutability says when an option may change.
type Mutability int

const (
	// Mutable options take effect whenever they are set.
	Mutable Mutability = iota
	// BeforeAttach options are only honoured before the first bind or connect.
	BeforeAttach
	// WriteOnly options can be set at any time but not read back.
	WriteOnly
)

func (m Mutability) String() string {
	switch m {
	case Mutable:
		return "mutable"
	case BeforeAttach:
		return "before-attach"
	case WriteOnly:
		return "write-only"
	}
	return "unknown"
}

// OptionSpec is the engine's declaration for one option.
type OptionSpec struct {
	Name       string
	Mutability Mutability
}

// OptionTable is a lookup helper engines use to answer OptionSpec.
type OptionTable map[string]OptionSpec

// NewOptionTable builds a table from specs.
func NewOptionTable(specs ...OptionSpec) OptionTable {
	t := make(OptionTable, len(specs))
	for _, s := range specs {
		t[s.Name] = s
	}
	return t
}

// Lookup returns the OptionSpec registered under name.
func (t OptionTable) Lookup(name string) (OptionSpec, bool) {
	s, ok := t[name]
	return s, ok
}

// AsDuration coerces an option value to a duration, allowing Infinite.
func AsDuration(name string, v any) (time.Duration, error) {
	d, ok := v.(time.Duration)
	if !ok {
		return 0, Errorf(EINVAL, "%s wants a duration, got %T", name, v)
	}
	if d < 0 && d != Infinite {
		return 0, Errorf(EINVAL, "%s %v", name, d)
	}
	return d, nil
}

// AsInt coerces an option value to an int no smaller than floor.
func AsInt(name string, v any, floor int) (int, error) {
	n, ok := v.(int)
	if !ok {
		return 0, Errorf(EINVAL, "%s wants an int, got %T", name, v)
	}
	if n < floor {
		return 0, Errorf(EINVAL, "%s %d", name, n)
	}
	return n, nil
}

// AsBool coerces an option value to a bool.
func AsBool(name string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, Errorf(EINVAL, "%s wants a bool, got %T", name, v)
	}
	return b, nil
}

// AsBytes copies a []byte or string option value.
func AsBytes(name string, v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return append([]byte(nil), b...), nil
	case string:
		return []byte(b), nil
	}
	return nil, Errorf(EINVAL, "%s wants bytes, got %T", name, v)
}
