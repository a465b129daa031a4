package memengine

import (
	"time"

	"github.com/multifrost/zsock/engine"
)

var optionTable = engine.NewOptionTable(
	engine.OptionSpec{Name: engine.OptLinger, Mutability: engine.Mutable},
	engine.OptionSpec{Name: engine.OptSendHWM, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptRecvHWM, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptSendTimeout, Mutability: engine.Mutable},
	engine.OptionSpec{Name: engine.OptRecvTimeout, Mutability: engine.Mutable},
	engine.OptionSpec{Name: engine.OptTCPKeepAlive, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptIdentity, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptRouterMandatory, Mutability: engine.Mutable},
	engine.OptionSpec{Name: engine.OptReconnectInterval, Mutability: engine.Mutable},
	engine.OptionSpec{Name: engine.OptSubscribe, Mutability: engine.WriteOnly},
	engine.OptionSpec{Name: engine.OptUnsubscribe, Mutability: engine.WriteOnly},
	engine.OptionSpec{Name: engine.OptJoin, Mutability: engine.WriteOnly},
	engine.OptionSpec{Name: engine.OptLeave, Mutability: engine.WriteOnly},
	engine.OptionSpec{Name: engine.OptCurveServer, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptCurvePublicKey, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptCurveSecretKey, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptCurveServerKey, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptPlainServer, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptPlainUsername, Mutability: engine.BeforeAttach},
	engine.OptionSpec{Name: engine.OptPlainPassword, Mutability: engine.BeforeAttach},
)

type options struct {
	linger          time.Duration
	sendHWM         int
	recvHWM         int
	sendTimeout     time.Duration
	recvTimeout     time.Duration
	tcpKeepAlive    int
	identity        []byte
	routerMandatory bool
	reconnectIvl    time.Duration

	curveServer    bool
	curvePublic    []byte
	curveSecret    []byte
	curveServerKey []byte

	plainServer bool
	plainUser   string
	plainPass   string
}

func defaultOptions() options {
	return options{
		linger:       30 * time.Second,
		sendHWM:      1000,
		recvHWM:      1000,
		sendTimeout:  engine.Infinite,
		recvTimeout:  engine.Infinite,
		tcpKeepAlive: -1,
		reconnectIvl: 100 * time.Millisecond,
	}
}

func asKey(name string, v any) ([]byte, error) {
	b, err := engine.AsBytes(name, v)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, engine.Errorf(engine.EINVAL, "%s must be 32 bytes, got %d", name, len(b))
	}
	return b, nil
}

// set applies one option. The caller holds the context lock.
func (s *socket) set(name string, v any) error {
	var err error
	o := &s.opts
	switch name {
	case engine.OptLinger:
		o.linger, err = engine.AsDuration(name, v)
	case engine.OptSendHWM:
		o.sendHWM, err = engine.AsInt(name, v, 0)
	case engine.OptRecvHWM:
		o.recvHWM, err = engine.AsInt(name, v, 0)
	case engine.OptSendTimeout:
		o.sendTimeout, err = engine.AsDuration(name, v)
	case engine.OptRecvTimeout:
		o.recvTimeout, err = engine.AsDuration(name, v)
	case engine.OptTCPKeepAlive:
		o.tcpKeepAlive, err = engine.AsInt(name, v, -1)
		if err == nil && o.tcpKeepAlive > 1 {
			err = engine.Errorf(engine.EINVAL, "%s %d", name, o.tcpKeepAlive)
		}
	case engine.OptIdentity:
		var id []byte
		if id, err = engine.AsBytes(name, v); err == nil {
			if len(id) > 255 || (len(id) > 0 && id[0] == 0) {
				return engine.Errorf(engine.EINVAL, "identity of %d bytes", len(id))
			}
			o.identity = id
		}
	case engine.OptRouterMandatory:
		if s.typ != engine.Router {
			return engine.Errorf(engine.EINVAL, "%s on %s socket", name, s.typ)
		}
		o.routerMandatory, err = engine.AsBool(name, v)
	case engine.OptReconnectInterval:
		o.reconnectIvl, err = engine.AsDuration(name, v)
	case engine.OptSubscribe, engine.OptUnsubscribe:
		if s.typ != engine.Sub {
			return engine.Errorf(engine.EINVAL, "%s on %s socket", name, s.typ)
		}
		var topic []byte
		if topic, err = engine.AsBytes(name, v); err == nil {
			if name == engine.OptSubscribe {
				s.subs[string(topic)]++
			} else if s.subs[string(topic)] > 0 {
				s.subs[string(topic)]--
				if s.subs[string(topic)] == 0 {
					delete(s.subs, string(topic))
				}
			}
		}
	case engine.OptJoin, engine.OptLeave:
		if s.typ != engine.Dish {
			return engine.Errorf(engine.EINVAL, "%s on %s socket", name, s.typ)
		}
		var group []byte
		if group, err = engine.AsBytes(name, v); err != nil {
			return err
		}
		if len(group) == 0 || len(group) > engine.MaxGroupLength {
			return engine.Errorf(engine.EINVAL, "group %q", group)
		}
		_, joined := s.groups[string(group)]
		switch {
		case name == engine.OptJoin && joined, name == engine.OptLeave && !joined:
			return engine.Errorf(engine.EINVAL, "%s %q", name, group)
		case name == engine.OptJoin:
			s.groups[string(group)] = struct{}{}
		default:
			delete(s.groups, string(group))
		}
	case engine.OptCurveServer:
		o.curveServer, err = engine.AsBool(name, v)
	case engine.OptCurvePublicKey:
		o.curvePublic, err = asKey(name, v)
	case engine.OptCurveSecretKey:
		o.curveSecret, err = asKey(name, v)
	case engine.OptCurveServerKey:
		o.curveServerKey, err = asKey(name, v)
	case engine.OptPlainServer:
		o.plainServer, err = engine.AsBool(name, v)
	case engine.OptPlainUsername:
		var b []byte
		b, err = engine.AsBytes(name, v)
		o.plainUser = string(b)
	case engine.OptPlainPassword:
		var b []byte
		b, err = engine.AsBytes(name, v)
		o.plainPass = string(b)
	default:
		return engine.Errorf(engine.EINVAL, "unknown option %q", name)
	}
	return err
}

func (s *socket) get(name string) (any, error) {
	o := &s.opts
	switch name {
	case engine.OptLinger:
		return o.linger, nil
	case engine.OptSendHWM:
		return o.sendHWM, nil
	case engine.OptRecvHWM:
		return o.recvHWM, nil
	case engine.OptSendTimeout:
		return o.sendTimeout, nil
	case engine.OptRecvTimeout:
		return o.recvTimeout, nil
	case engine.OptTCPKeepAlive:
		return o.tcpKeepAlive, nil
	case engine.OptIdentity:
		return append([]byte(nil), o.identity...), nil
	case engine.OptRouterMandatory:
		return o.routerMandatory, nil
	case engine.OptReconnectInterval:
		return o.reconnectIvl, nil
	case engine.OptCurveServer:
		return o.curveServer, nil
	case engine.OptCurvePublicKey:
		return append([]byte(nil), o.curvePublic...), nil
	case engine.OptCurveSecretKey:
		return append([]byte(nil), o.curveSecret...), nil
	case engine.OptCurveServerKey:
		return append([]byte(nil), o.curveServerKey...), nil
	case engine.OptPlainServer:
		return o.plainServer, nil
	case engine.OptPlainUsername:
		return o.plainUser, nil
	case engine.OptPlainPassword:
		return o.plainPass, nil
	case engine.OptSubscribe, engine.OptUnsubscribe:
		return nil, engine.Errorf(engine.EINVAL, "%s is write-only", name)
	}
	return nil, engine.Errorf(engine.EINVAL, "unknown option %q", name)
}

const (
	mechNull  = "NULL"
	mechPlain = "PLAIN"
	mechCurve = "CURVE"
)

func mechanism(s *socket) string {
	switch {
	case s.opts.curveServer || len(s.opts.curveServerKey) > 0:
		return mechCurve
	case s.opts.plainServer || s.opts.plainUser != "":
		return mechPlain
	}
	return mechNull
}

// handshake checks whether a and b can complete a ZMTP greeting. A zero code
// means success.
func handshake(a, b *socket) (engine.EventMask, uint32) {
	if !engine.Compatible(a.typ, b.typ) {
		return engine.EventHandshakeFailedProtocol, engine.ProtocolErrorUnspecified
	}
	ma, mb := mechanism(a), mechanism(b)
	if ma != mb {
		return engine.EventHandshakeFailedProtocol, engine.ProtocolErrorMechanismMismatch
	}
	switch ma {
	case mechCurve:
		if a.opts.curveServer == b.opts.curveServer {
			return engine.EventHandshakeFailedProtocol, engine.ProtocolErrorUnexpectedCommand
		}
		server, client := a, b
		if b.opts.curveServer {
			server, client = b, a
		}
		if string(client.opts.curveServerKey) != string(server.opts.curvePublic) {
			return engine.EventHandshakeFailedProtocol, engine.ProtocolErrorCryptographic
		}
	case mechPlain:
		if a.opts.plainServer == b.opts.plainServer {
			return engine.EventHandshakeFailedProtocol, engine.ProtocolErrorUnexpectedCommand
		}
	}
	return 0, 0
}
