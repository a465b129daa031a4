package zsock

import (
	"time"

	"github.com/multifrost/zsock/engine"
)

// Option names accepted by SocketConfig.Set and Socket.SetOption.
const (
	OptionLinger            = engine.OptLinger
	OptionSendHWM           = engine.OptSendHWM
	OptionRecvHWM           = engine.OptRecvHWM
	OptionSendTimeout       = engine.OptSendTimeout
	OptionRecvTimeout       = engine.OptRecvTimeout
	OptionTCPKeepAlive      = engine.OptTCPKeepAlive
	OptionIdentity          = engine.OptIdentity
	OptionRouterMandatory   = engine.OptRouterMandatory
	OptionReconnectInterval = engine.OptReconnectInterval
	OptionSubscribe         = engine.OptSubscribe
	OptionJoin              = engine.OptJoin
	OptionLeave             = engine.OptLeave
	OptionCurveServer       = engine.OptCurveServer
	OptionCurvePublicKey    = engine.OptCurvePublicKey
	OptionCurveSecretKey    = engine.OptCurveSecretKey
	OptionCurveServerKey    = engine.OptCurveServerKey
	OptionPlainServer       = engine.OptPlainServer
	OptionPlainUsername     = engine.OptPlainUsername
	OptionPlainPassword     = engine.OptPlainPassword
)

// Infinite disables a timeout or makes linger wait for delivery.
const Infinite = engine.Infinite

// Defaults for options a SocketConfig leaves unset.
const (
	DefaultHWM               = 1000
	DefaultLinger            = 30 * time.Second
	DefaultTCPKeepAlive      = -1
	DefaultReconnectInterval = 100 * time.Millisecond
)

// optionOrder is the order options reach the engine. Security comes first
// because the mechanism decides how later options are interpreted.
var optionOrder = []string{
	OptionCurveServer,
	OptionCurvePublicKey,
	OptionCurveSecretKey,
	OptionCurveServerKey,
	OptionPlainServer,
	OptionPlainUsername,
	OptionPlainPassword,
	OptionIdentity,
	OptionSendHWM,
	OptionRecvHWM,
	OptionSendTimeout,
	OptionRecvTimeout,
	OptionLinger,
	OptionTCPKeepAlive,
	OptionReconnectInterval,
	OptionRouterMandatory,
	OptionSubscribe,
}

type valueKind int

const (
	kindDuration valueKind = iota
	kindCount
	kindSwitch
	kindBytes
	kindKey
	kindText
	kindTopics
)

var optionKinds = map[string]valueKind{
	OptionLinger:            kindDuration,
	OptionSendHWM:           kindCount,
	OptionRecvHWM:           kindCount,
	OptionSendTimeout:       kindDuration,
	OptionRecvTimeout:       kindDuration,
	OptionTCPKeepAlive:      kindCount,
	OptionIdentity:          kindBytes,
	OptionRouterMandatory:   kindSwitch,
	OptionReconnectInterval: kindDuration,
	OptionSubscribe:         kindTopics,
	OptionCurveServer:       kindSwitch,
	OptionCurvePublicKey:    kindKey,
	OptionCurveSecretKey:    kindKey,
	OptionCurveServerKey:    kindKey,
	OptionPlainServer:       kindSwitch,
	OptionPlainUsername:     kindText,
	OptionPlainPassword:     kindText,
}

func defaultValues() map[string]any {
	return map[string]any{
		OptionLinger:            DefaultLinger,
		OptionSendHWM:           DefaultHWM,
		OptionRecvHWM:           DefaultHWM,
		OptionSendTimeout:       Infinite,
		OptionRecvTimeout:       Infinite,
		OptionTCPKeepAlive:      DefaultTCPKeepAlive,
		OptionReconnectInterval: DefaultReconnectInterval,
	}
}

// roleAllows reports whether an option makes sense for role.
func roleAllows(role Role, name string) bool {
	switch name {
	case OptionSubscribe:
		return role == RoleSub
	case OptionRouterMandatory:
		return role == RoleRouter
	case OptionIdentity:
		switch role {
		case RoleReq, RoleRep, RoleDealer, RoleRouter:
			return true
		}
		return false
	}
	return true
}
