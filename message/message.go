// Package message defines the decoded game-frame triple produced by
// the game codec: opcode, declared length, and payload bytes.
package message

import "github.com/lare96/rsbotgroup/buffer"

// Length sentinels used by the 256-entry packet length table.
const (
	LengthVarByte  = -1
	LengthVarShort = -2
)

// Message is an immutable opcode/length/payload triple. On a decoded
// message Size is the resolved body length, for fixed and
// variable-length frames alike. On an outbound message passed to
// game.BuildFrame, a LengthVar* sentinel selects the length prefix to
// write; any other value writes no prefix.
type Message struct {
	Opcode  byte
	Size    int
	Payload *buffer.Buffer
}

// New wraps already-read payload bytes into a Message.
func New(opcode byte, size int, payload []byte) *Message {
	return &Message{Opcode: opcode, Size: size, Payload: buffer.Wrap(payload)}
}
