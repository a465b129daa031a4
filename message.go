package zsock

import (
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/multifrost/zsock/engine"
)

// Message is one frame of a possibly multi-part message. A Message is owned
// by whoever holds it: Send takes the payload and leaves the Message empty, so
// the bytes are never shared between sender and engine.
type Message struct {
	data      []byte
	more      bool
	identity  []byte
	routingID uint32
	group     string
}

// MaxGroupLength is the longest Radio/Dish group name in bytes.
const MaxGroupLength = engine.MaxGroupLength

// checkGroup returns why group is unusable, or "" when it is fine.
func checkGroup(group string) string {
	if group == "" || len(group) > MaxGroupLength {
		return fmt.Sprintf("group must be 1 to %d bytes, got %d", MaxGroupLength, len(group))
	}
	return ""
}

// NewMessage wraps data without copying. The caller gives up data.
func NewMessage(data []byte) *Message {
	return &Message{data: data}
}

// NewMessageString creates a message holding s.
func NewMessageString(s string) *Message {
	return &Message{data: []byte(s)}
}

// CopyMessage creates a message holding a copy of data.
func CopyMessage(data []byte) *Message {
	return &Message{data: append([]byte(nil), data...)}
}

// Bytes returns the payload. It is valid until the message is sent.
func (m *Message) Bytes() []byte { return m.data }

// Len returns the payload size.
func (m *Message) Len() int { return len(m.data) }

// IsEmpty reports a zero-length payload.
func (m *Message) IsEmpty() bool { return len(m.data) == 0 }

// More reports whether further frames of the same message follow. It is set
// on received messages only.
func (m *Message) More() bool { return m.more }

// Identity returns the peer routing id of a message received on a Router
// socket.
func (m *Message) Identity() []byte { return m.identity }

// SetIdentity names the peer a Router socket should route this message to.
func (m *Message) SetIdentity(id []byte) { m.identity = id }

// RoutingID returns the peer a Server socket received this message from.
func (m *Message) RoutingID() uint32 { return m.routingID }

// SetRoutingID names the Client peer a Server socket should send this message
// to. Received ids are never zero.
func (m *Message) SetRoutingID(id uint32) { m.routingID = id }

// Group returns the group a Dish socket received this message in.
func (m *Message) Group() string { return m.group }

// SetGroup sets the group a Radio socket publishes this message to.
func (m *Message) SetGroup(group string) error {
	if reason := checkGroup(group); reason != "" {
		return newError(KindInvalidState, opSend, reason)
	}
	m.group = group
	return nil
}

// Text returns the payload as a string, failing on invalid UTF-8.
func (m *Message) Text() (string, error) {
	if !utf8.Valid(m.data) {
		return "", fmt.Errorf("message payload of %d bytes is not valid UTF-8", len(m.data))
	}
	return string(m.data), nil
}

// String renders the payload for logs: text when printable UTF-8, hex
// otherwise.
func (m *Message) String() string {
	if utf8.Valid(m.data) {
		return string(m.data)
	}
	return hex.EncodeToString(m.data)
}

// Clone returns an independent copy.
func (m *Message) Clone() *Message {
	return &Message{
		data:      append([]byte(nil), m.data...),
		more:      m.more,
		identity:  append([]byte(nil), m.identity...),
		routingID: m.routingID,
		group:     m.group,
	}
}

// take hands the payload over, leaving m empty.
func (m *Message) take() []byte {
	data := m.data
	m.data = nil
	m.identity = nil
	m.routingID = 0
	m.group = ""
	m.more = false
	return data
}

// Multipart is a whole multi-part message as a list of frame payloads.
type Multipart [][]byte

// Strings returns the frames as strings.
func (mp Multipart) Strings() []string {
	out := make([]string, len(mp))
	for i, f := range mp {
		out[i] = string(f)
	}
	return out
}
