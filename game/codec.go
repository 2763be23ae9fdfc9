// Package game implements the post-login frame codec: opcode
// encryption on encode, and the incremental, ISAAC-keyed decode state
// machine driven by the fixed 256-entry length table.
package game

import (
	"encoding/binary"
	"fmt"

	"github.com/lare96/rsbotgroup/boterr"
	"github.com/lare96/rsbotgroup/buffer"
	"github.com/lare96/rsbotgroup/isaac"
	"github.com/lare96/rsbotgroup/message"
)

// EncodeOpcode offsets raw's first byte by the encryptor's next
// keystream word, in place, consuming exactly one ISAAC word. raw
// must already contain the fully-built frame (opcode, any length
// prefix, and payload) produced by buffer.Message/VarMessage.
func EncodeOpcode(raw []byte, encryptor *isaac.Cipher) {
	if len(raw) == 0 {
		return
	}
	raw[0] = byte(uint32(raw[0]) + encryptor.Next())
}

// BuildFrame serializes msg (opcode, any length prefix implied by
// msg.Size, and payload) into wire bytes, opcode not yet encrypted.
// Callers apply an opcode-encoding strategy (EncodeOpcode, or a
// caller-supplied MessageEncoder) before writing the result to a
// socket.
func BuildFrame(msg *message.Message) []byte {
	payload := msg.Payload.Bytes()
	buf := buffer.New(len(payload) + 3)

	switch msg.Size {
	case message.LengthVarByte:
		buf.VarMessage(msg.Opcode)
		buf.PutBytes(payload)
		buf.EndVarMessage()
	case message.LengthVarShort:
		buf.VarShortMessage(msg.Opcode)
		buf.PutBytes(payload)
		buf.EndVarShortMessage()
	default:
		buf.Message(msg.Opcode)
		buf.PutBytes(payload)
	}

	return buf.Bytes()
}

// Decoder maintains incremental frame-parsing state across reactor
// read iterations: an opcode once read stays pending until its full
// length and body are available, at which point a Message is emitted
// and the parser resets.
type Decoder struct {
	decryptor *isaac.Cipher

	opcodeSet  bool
	opcode     byte
	lengthKind int // 0 once resolved; LengthVarByte/LengthVarShort while pending
	length     int
}

// NewDecoder returns a Decoder keyed by decryptor. decryptor must be
// non-nil: the game codec is only ever invoked once a session has
// reached LOGGED_IN, at which point ISAAC is always seeded — this is
// enforced structurally by requiring the cipher at construction,
// rather than by a runtime "has ISAAC" check.
func NewDecoder(decryptor *isaac.Cipher) *Decoder {
	return &Decoder{decryptor: decryptor}
}

// Decode consumes as much of data as currently forms complete frames,
// returning every Message fully assembled and the number of bytes
// consumed. Bytes left over (an incomplete opcode, length prefix, or
// body) are not consumed; the caller must retain them and call Decode
// again once more bytes arrive.
func (d *Decoder) Decode(data []byte) ([]*message.Message, int, error) {
	var out []*message.Message
	pos := 0

	for {
		if !d.opcodeSet {
			if pos >= len(data) {
				break
			}
			raw := data[pos]
			pos++
			d.opcode = byte(uint32(raw) - d.decryptor.Next())
			d.opcodeSet = true

			tableLen := PacketLengths[d.opcode]
			switch {
			case tableLen >= 0:
				d.length = tableLen
				d.lengthKind = 0
			case tableLen == LengthVarByte, tableLen == LengthVarShort:
				d.lengthKind = tableLen
			default:
				return out, pos, boterr.New(boterr.KindProtocol, "",
					fmt.Errorf("unrecognized packet length table entry %d for opcode %d", tableLen, d.opcode))
			}
		}

		if d.lengthKind == LengthVarByte {
			if pos >= len(data) {
				break
			}
			d.length = int(data[pos])
			pos++
			d.lengthKind = 0
		} else if d.lengthKind == LengthVarShort {
			if pos+2 > len(data) {
				break
			}
			d.length = int(binary.LittleEndian.Uint16(data[pos : pos+2]))
			pos += 2
			d.lengthKind = 0
		}

		if pos+d.length > len(data) {
			break
		}

		payload := append([]byte(nil), data[pos:pos+d.length]...)
		pos += d.length
		out = append(out, message.New(d.opcode, d.length, payload))

		d.opcodeSet = false
		d.length = 0
	}

	return out, pos, nil
}
