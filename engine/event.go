package engine

import (
	"encoding/binary"
	"fmt"
)

// EventMask selects monitor events. Codes follow libzmq.
type EventMask uint32

const (
	EventConnected               EventMask = 0x0001
	EventConnectDelayed          EventMask = 0x0002
	EventConnectRetried          EventMask = 0x0004
	EventListening               EventMask = 0x0008
	EventBindFailed              EventMask = 0x0010
	EventAccepted                EventMask = 0x0020
	EventAcceptFailed            EventMask = 0x0040
	EventClosed                  EventMask = 0x0080
	EventCloseFailed             EventMask = 0x0100
	EventDisconnected            EventMask = 0x0200
	EventMonitorStopped          EventMask = 0x0400
	EventHandshakeFailedNoDetail EventMask = 0x0800
	EventHandshakeSucceeded      EventMask = 0x1000
	EventHandshakeFailedProtocol EventMask = 0x2000
	EventHandshakeFailedAuth     EventMask = 0x4000
	EventAll                     EventMask = 0xFFFF
)

// ZMTP protocol error values carried by EventHandshakeFailedProtocol.
const (
	ProtocolErrorUnspecified       uint32 = 0x10000000
	ProtocolErrorUnexpectedCommand uint32 = 0x10000001
	ProtocolErrorInvalidSequence   uint32 = 0x10000002
	ProtocolErrorKeyExchange       uint32 = 0x10000003
	ProtocolErrorCryptographic     uint32 = 0x11000001
	ProtocolErrorMechanismMismatch uint32 = 0x11000002
	ProtocolErrorZAPUnspecified    uint32 = 0x20000000
)

// EncodeEvent builds the two frame monitor message of libzmq's v1 format: a
// six byte frame holding the event code and value, then the endpoint.
func EncodeEvent(code EventMask, value uint32, endpoint string) [][]byte {
	head := make([]byte, 6)
	binary.LittleEndian.PutUint16(head[0:2], uint16(code))
	binary.LittleEndian.PutUint32(head[2:6], value)
	return [][]byte{head, []byte(endpoint)}
}

// DecodeEvent parses a monitor message produced by EncodeEvent.
func DecodeEvent(frames [][]byte) (code EventMask, value uint32, endpoint string, err error) {
	if len(frames) != 2 {
		return 0, 0, "", fmt.Errorf("monitor event: want 2 frames, got %d", len(frames))
	}
	if len(frames[0]) != 6 {
		return 0, 0, "", fmt.Errorf("monitor event: want 6 byte header, got %d", len(frames[0]))
	}
	code = EventMask(binary.LittleEndian.Uint16(frames[0][0:2]))
	value = binary.LittleEndian.Uint32(frames[0][2:6])
	return code, value, string(frames[1]), nil
}
