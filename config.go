package zsock

import (
	"bytes"
	"fmt"
	"time"
)

// SocketConfig declares socket options. Setters record values only; every
// check runs when the config is applied to a socket, before anything reaches
// the engine.
type SocketConfig struct {
	values map[string]any
}

// NewSocketConfig returns an empty config. Unset options keep their defaults.
func NewSocketConfig() *SocketConfig {
	return &SocketConfig{values: make(map[string]any)}
}

// Set records an option by name.
func (c *SocketConfig) Set(name string, value any) *SocketConfig {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	if name == OptionSubscribe {
		prev, _ := c.values[name].([][]byte)
		topics := make([][]byte, len(prev), len(prev)+1)
		copy(topics, prev)
		switch v := value.(type) {
		case []byte:
			c.values[name] = append(topics, append([]byte(nil), v...))
		case string:
			c.values[name] = append(topics, []byte(v))
		case [][]byte:
			for _, t := range v {
				topics = append(topics, append([]byte(nil), t...))
			}
			c.values[name] = topics
		default:
			c.values[name] = value
		}
		return c
	}
	c.values[name] = value
	return c
}

// Get returns a recorded option.
func (c *SocketConfig) Get(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.values[name]
	return v, ok
}

// Len returns the number of recorded options.
func (c *SocketConfig) Len() int {
	if c == nil {
		return 0
	}
	return len(c.values)
}

// Clone returns an independent copy.
func (c *SocketConfig) Clone() *SocketConfig {
	out := NewSocketConfig()
	if c == nil {
		return out
	}
	for k, v := range c.values {
		if topics, ok := v.([][]byte); ok {
			v = append([][]byte(nil), topics...)
		}
		out.values[k] = v
	}
	return out
}

func (c *SocketConfig) Linger(d time.Duration) *SocketConfig { return c.Set(OptionLinger, d) }
func (c *SocketConfig) SendHWM(n int) *SocketConfig          { return c.Set(OptionSendHWM, n) }
func (c *SocketConfig) RecvHWM(n int) *SocketConfig          { return c.Set(OptionRecvHWM, n) }
func (c *SocketConfig) SendTimeout(d time.Duration) *SocketConfig {
	return c.Set(OptionSendTimeout, d)
}
func (c *SocketConfig) RecvTimeout(d time.Duration) *SocketConfig {
	return c.Set(OptionRecvTimeout, d)
}

// TCPKeepAlive sets SO_KEEPALIVE: -1 leaves the OS default, 0 off, 1 on.
func (c *SocketConfig) TCPKeepAlive(mode int) *SocketConfig { return c.Set(OptionTCPKeepAlive, mode) }
func (c *SocketConfig) Identity(id []byte) *SocketConfig    { return c.Set(OptionIdentity, id) }
func (c *SocketConfig) RouterMandatory(on bool) *SocketConfig {
	return c.Set(OptionRouterMandatory, on)
}

// Subscribe adds a prefix filter. The empty topic matches everything.
func (c *SocketConfig) Subscribe(topic []byte) *SocketConfig { return c.Set(OptionSubscribe, topic) }
func (c *SocketConfig) ReconnectInterval(d time.Duration) *SocketConfig {
	return c.Set(OptionReconnectInterval, d)
}
func (c *SocketConfig) CurveServer(on bool) *SocketConfig { return c.Set(OptionCurveServer, on) }

// CurvePublicKey, CurveSecretKey and CurveServerKey take raw 32 byte keys or
// their 40 character Z85 text.
func (c *SocketConfig) CurvePublicKey(key string) *SocketConfig {
	return c.Set(OptionCurvePublicKey, key)
}
func (c *SocketConfig) CurveSecretKey(key string) *SocketConfig {
	return c.Set(OptionCurveSecretKey, key)
}
func (c *SocketConfig) CurveServerKey(key string) *SocketConfig {
	return c.Set(OptionCurveServerKey, key)
}
func (c *SocketConfig) PlainServer(on bool) *SocketConfig { return c.Set(OptionPlainServer, on) }
func (c *SocketConfig) PlainUsername(user string) *SocketConfig {
	return c.Set(OptionPlainUsername, user)
}
func (c *SocketConfig) PlainPassword(pass string) *SocketConfig {
	return c.Set(OptionPlainPassword, pass)
}

func rejected(option, reason string) *Error {
	return &Error{Kind: KindConfigurationRejected, Op: opSetOption, Option: option, Reason: reason}
}

// normalize converts a raw option value to the type the engines expect.
func normalize(name string, v any) (any, error) {
	kind, ok := optionKinds[name]
	if !ok {
		return nil, rejected(name, "unknown option")
	}
	switch kind {
	case kindDuration:
		d, ok := v.(time.Duration)
		if !ok {
			return nil, rejected(name, fmt.Sprintf("want time.Duration, got %T", v))
		}
		if d < 0 && d != Infinite {
			return nil, rejected(name, "negative duration")
		}
		return d, nil
	case kindCount:
		n, ok := v.(int)
		if !ok {
			return nil, rejected(name, fmt.Sprintf("want int, got %T", v))
		}
		if name == OptionTCPKeepAlive {
			if n < -1 || n > 1 {
				return nil, rejected(name, "must be -1, 0 or 1")
			}
		} else if n < 0 {
			return nil, rejected(name, "must not be negative")
		}
		return n, nil
	case kindSwitch:
		b, ok := v.(bool)
		if !ok {
			return nil, rejected(name, fmt.Sprintf("want bool, got %T", v))
		}
		return b, nil
	case kindBytes:
		var id []byte
		switch b := v.(type) {
		case []byte:
			id = append([]byte(nil), b...)
		case string:
			id = []byte(b)
		default:
			return nil, rejected(name, fmt.Sprintf("want []byte, got %T", v))
		}
		if len(id) > 255 {
			return nil, rejected(name, "longer than 255 bytes")
		}
		if len(id) > 0 && id[0] == 0 {
			return nil, rejected(name, "identities starting with a zero byte are reserved")
		}
		return id, nil
	case kindKey:
		key, err := decodeCurveKey(v)
		if err != nil {
			return nil, rejected(name, err.Error())
		}
		return key, nil
	case kindText:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
		return nil, rejected(name, fmt.Sprintf("want string, got %T", v))
	case kindTopics:
		topics, ok := v.([][]byte)
		if !ok {
			return nil, rejected(name, fmt.Sprintf("want []byte topics, got %T", v))
		}
		return topics, nil
	}
	return nil, rejected(name, "unknown option")
}

// resolve validates the options of c for role. base holds the values already
// in effect; the security checks look at base and c together. The result maps
// option names to normalized values.
func (c *SocketConfig) resolve(role Role, base map[string]any) (map[string]any, error) {
	out := make(map[string]any, c.Len())
	if c != nil {
		for _, name := range optionOrder {
			raw, ok := c.values[name]
			if !ok {
				continue
			}
			if !roleAllows(role, name) {
				return nil, rejected(name, "not applicable to "+role.String()+" sockets")
			}
			v, err := normalize(name, raw)
			if err != nil {
				return nil, err
			}
			out[name] = v
		}
		for name := range c.values {
			if _, ok := optionKinds[name]; !ok {
				return nil, rejected(name, "unknown option")
			}
		}
	}

	merged := make(map[string]any, len(base)+len(out))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range out {
		merged[k] = v
	}
	if err := checkSecurity(merged); err != nil {
		return nil, err
	}
	return out, nil
}

func keyOf(m map[string]any, name string) []byte {
	k, _ := m[name].([]byte)
	return k
}

func flagOf(m map[string]any, name string) bool {
	b, _ := m[name].(bool)
	return b
}

func textOf(m map[string]any, name string) string {
	s, _ := m[name].(string)
	return s
}

// checkSecurity enforces CURVE completeness and CURVE/PLAIN exclusion.
func checkSecurity(m map[string]any) error {
	server := flagOf(m, OptionCurveServer)
	pub := keyOf(m, OptionCurvePublicKey)
	sec := keyOf(m, OptionCurveSecretKey)
	serverKey := keyOf(m, OptionCurveServerKey)
	curve := server || pub != nil || sec != nil || serverKey != nil
	plain := flagOf(m, OptionPlainServer) || textOf(m, OptionPlainUsername) != "" || textOf(m, OptionPlainPassword) != ""

	if curve && plain {
		name := OptionPlainServer
		if !flagOf(m, OptionPlainServer) {
			name = OptionPlainUsername
			if textOf(m, OptionPlainUsername) == "" {
				name = OptionPlainPassword
			}
		}
		return rejected(name, "PLAIN and CURVE are mutually exclusive")
	}
	if !curve {
		return nil
	}

	switch {
	case server && serverKey != nil:
		return rejected(OptionCurveServerKey, "a CURVE server does not take a server key")
	case server && sec == nil:
		return rejected(OptionCurveSecretKey, "CURVE server requires a secret key")
	case server && pub == nil:
		return rejected(OptionCurvePublicKey, "CURVE server requires a public key")
	case !server && serverKey == nil:
		return rejected(OptionCurveServerKey, "CURVE keys without curve_server need the server's public key")
	case !server && sec == nil:
		return rejected(OptionCurveSecretKey, "CURVE client requires a secret key")
	case !server && pub == nil:
		return rejected(OptionCurvePublicKey, "CURVE client requires a public key")
	}

	derived, err := CurvePublicKey(sec)
	if err != nil {
		return rejected(OptionCurveSecretKey, err.Error())
	}
	if !bytes.Equal(derived, pub) {
		return rejected(OptionCurvePublicKey, "public key does not match the secret key")
	}
	return nil
}
