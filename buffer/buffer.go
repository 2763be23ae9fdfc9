// Package buffer implements the growable byte buffer used to build and
// parse RuneScape 317 protocol frames: byte transforms, the four wire
// endiannesses, bit-level packing, variable-length message framing, and
// the RSA block writer used by the login handshake.
package buffer

import "fmt"

// ByteType is a per-byte arithmetic transform applied on write and
// reversed on read.
type ByteType int

const (
	Normal ByteType = iota
	A
	C
	S
)

// ByteOrder is the endianness used to lay out a multi-byte value.
type ByteOrder int

const (
	Big ByteOrder = iota
	Little
	Middle
	InverseMiddle
)

// Buffer is a growable byte sequence with independent write and read
// cursors. It is not safe for concurrent use; callers own exclusive
// access to a given instance for the lifetime of one frame.
type Buffer struct {
	data     []byte
	writePos int
	readPos  int

	bitPos   int
	inBits   bool
	varIndex int
	inVar    bool
}

// New returns an empty Buffer with the given initial capacity.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Wrap returns a Buffer whose contents are already-written bytes,
// positioned for reading from the start.
func Wrap(data []byte) *Buffer {
	return &Buffer{data: data, writePos: len(data)}
}

// Bytes returns the written portion of the buffer, [0, writePos).
func (b *Buffer) Bytes() []byte {
	return b.data[:b.writePos]
}

// WritePos returns the current write cursor.
func (b *Buffer) WritePos() int {
	return b.writePos
}

// ReadPos returns the current read cursor.
func (b *Buffer) ReadPos() int {
	return b.readPos
}

// Remaining returns the number of unread bytes between the read cursor
// and the write cursor.
func (b *Buffer) Remaining() int {
	return b.writePos - b.readPos
}

func (b *Buffer) ensure(extra int) {
	needed := b.writePos + extra
	if needed <= len(b.data) {
		return
	}
	grown := len(b.data) * 2
	if grown < needed {
		grown = needed
	}
	next := make([]byte, grown)
	copy(next, b.data[:b.writePos])
	b.data = next
}

func transformWrite(v byte, t ByteType) byte {
	switch t {
	case A:
		return v + 128
	case C:
		return -v
	case S:
		return 128 - v
	default:
		return v
	}
}

func transformRead(v byte, t ByteType) byte {
	switch t {
	case A:
		return v - 128
	case C:
		return -v
	case S:
		return 128 - v
	default:
		return v
	}
}

// Put writes a single byte with the given transform applied.
func (b *Buffer) Put(v byte, t ByteType) {
	b.ensure(1)
	b.data[b.writePos] = transformWrite(v, t)
	b.writePos++
}

// PutBytes writes raw bytes with no transform.
func (b *Buffer) PutBytes(v []byte) {
	b.ensure(len(v))
	copy(b.data[b.writePos:], v)
	b.writePos += len(v)
}

// orderedBytes returns the big-endian byte slice of v (width bytes),
// then reorders it per the requested ByteOrder. Only Big and Little are
// valid for 16- and 64-bit widths; Middle and InverseMiddle are 32-bit only.
func orderedBytes(v uint64, width int, order ByteOrder) ([]byte, error) {
	if (order == Middle || order == InverseMiddle) && width != 4 {
		return nil, fmt.Errorf("buffer: %d-byte order is only valid for 32-bit values", order)
	}
	raw := make([]byte, width)
	for i := 0; i < width; i++ {
		raw[width-1-i] = byte(v >> (8 * i))
	}
	switch order {
	case Big:
		return raw, nil
	case Little:
		out := make([]byte, width)
		for i, c := range raw {
			out[width-1-i] = c
		}
		return out, nil
	case Middle:
		// [B1, B0, B3, B2]
		return []byte{raw[2], raw[3], raw[0], raw[1]}, nil
	case InverseMiddle:
		// [B2, B3, B0, B1]
		return []byte{raw[1], raw[0], raw[3], raw[2]}, nil
	default:
		return nil, fmt.Errorf("buffer: unknown byte order %d", order)
	}
}

// putMulti writes width bytes of v in the given order, applying t to the
// byte that holds the value's least-significant byte (B0) and Normal to
// every other byte.
func (b *Buffer) putMulti(v uint64, width int, t ByteType, order ByteOrder) error {
	out, err := orderedBytes(v, width, order)
	if err != nil {
		return err
	}
	b.ensure(width)
	for i, c := range out {
		if isB0(i, width, order) {
			b.data[b.writePos] = transformWrite(c, t)
		} else {
			b.data[b.writePos] = c
		}
		b.writePos++
	}
	return nil
}

// isB0 reports whether output position i carries the source value's
// least-significant byte for the given order.
func isB0(i, width int, order ByteOrder) bool {
	switch order {
	case Big:
		return i == width-1
	case Little:
		return i == 0
	case Middle:
		return i == 1
	case InverseMiddle:
		return i == 2
	default:
		return false
	}
}

// PutShort writes a 16-bit value.
func (b *Buffer) PutShort(v uint16, t ByteType, order ByteOrder) error {
	return b.putMulti(uint64(v), 2, t, order)
}

// PutInt writes a 32-bit value.
func (b *Buffer) PutInt(v uint32, t ByteType, order ByteOrder) error {
	return b.putMulti(uint64(v), 4, t, order)
}

// PutLong writes a 64-bit value.
func (b *Buffer) PutLong(v uint64, t ByteType, order ByteOrder) error {
	return b.putMulti(v, 8, t, order)
}

// PutString writes the raw bytes of s followed by the 0x0A terminator.
func (b *Buffer) PutString(s string) {
	b.PutBytes([]byte(s))
	b.Put(0x0A, Normal)
}

// Get reads a single byte with the given transform reversed.
func (b *Buffer) Get(t ByteType) byte {
	v := b.data[b.readPos]
	b.readPos++
	return transformRead(v, t)
}

// GetBytes reads n raw bytes with no transform.
func (b *Buffer) GetBytes(n int) []byte {
	v := b.data[b.readPos : b.readPos+n]
	b.readPos += n
	return v
}

// getMulti is the exact inverse of putMulti: it reads width wire bytes,
// reverses the per-order transform on the byte carrying B0, then
// un-permutes the wire order back into a big-endian raw representation.
func (b *Buffer) getMulti(width int, t ByteType, order ByteOrder) (uint64, error) {
	if (order == Middle || order == InverseMiddle) && width != 4 {
		return 0, fmt.Errorf("buffer: %d-byte order is only valid for 32-bit values", order)
	}
	wire := make([]byte, width)
	copy(wire, b.data[b.readPos:b.readPos+width])
	b.readPos += width

	for i := range wire {
		if isB0(i, width, order) {
			wire[i] = transformRead(wire[i], t)
		}
	}

	raw := make([]byte, width)
	switch order {
	case Big:
		copy(raw, wire)
	case Little:
		for i := range wire {
			raw[i] = wire[width-1-i]
		}
	case Middle:
		raw[0], raw[1], raw[2], raw[3] = wire[2], wire[3], wire[0], wire[1]
	case InverseMiddle:
		raw[0], raw[1], raw[2], raw[3] = wire[1], wire[0], wire[3], wire[2]
	default:
		return 0, fmt.Errorf("buffer: unknown byte order %d", order)
	}

	var v uint64
	for _, c := range raw {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// GetShort reads a 16-bit value.
func (b *Buffer) GetShort(t ByteType, order ByteOrder) (uint16, error) {
	v, err := b.getMulti(2, t, order)
	return uint16(v), err
}

// GetInt reads a 32-bit value.
func (b *Buffer) GetInt(t ByteType, order ByteOrder) (uint32, error) {
	v, err := b.getMulti(4, t, order)
	return uint32(v), err
}

// GetLong reads a 64-bit value.
func (b *Buffer) GetLong(t ByteType, order ByteOrder) (uint64, error) {
	return b.getMulti(8, t, order)
}

// GetString reads bytes up to, but excluding, the next 0x0A terminator.
func (b *Buffer) GetString() string {
	start := b.readPos
	for b.data[b.readPos] != 0x0A {
		b.readPos++
	}
	s := string(b.data[start:b.readPos])
	b.readPos++ // consume terminator
	return s
}

// StartBitAccess begins a bit-packing run at the current write position.
func (b *Buffer) StartBitAccess() {
	b.bitPos = b.writePos * 8
	b.inBits = true
}

// EndBitAccess closes a bit-packing run, advancing the byte write
// cursor past every byte touched by PutBits/PutBit.
func (b *Buffer) EndBitAccess() {
	b.writePos = (b.bitPos + 7) / 8
	b.inBits = false
}

// StartBitReadAccess begins unpacking bits at the current byte read
// position. Symmetric counterpart to StartBitAccess for decoding
// bit-packed fields (e.g. movement queues) the source packs with
// putBits.
func (b *Buffer) StartBitReadAccess() {
	b.bitPos = b.readPos * 8
	b.inBits = true
}

// EndBitReadAccess closes a bit-unpacking run, advancing the byte read
// cursor past every byte touched by GetBits/GetBit.
func (b *Buffer) EndBitReadAccess() {
	b.readPos = (b.bitPos + 7) / 8
	b.inBits = false
}

var bitMask = [33]uint32{}

func init() {
	for i := 1; i <= 32; i++ {
		if i == 32 {
			bitMask[i] = 0xFFFFFFFF
		} else {
			bitMask[i] = (1 << uint(i)) - 1
		}
	}
}

// PutBits writes the low n bits of v, most-significant bit first,
// starting at the current bit cursor. n must be in [1, 32].
func (b *Buffer) PutBits(n int, v uint32) error {
	if n < 1 || n > 32 {
		return fmt.Errorf("buffer: PutBits width %d out of range [1,32]", n)
	}
	v &= bitMask[n]

	bytePos := b.bitPos >> 3
	bitOffset := 8 - (b.bitPos & 7)
	b.bitPos += n

	endByte := (b.bitPos + 7) / 8
	if endByte > len(b.data) {
		grown := len(b.data) * 2
		if grown < endByte {
			grown = endByte
		}
		next := make([]byte, grown)
		copy(next, b.data)
		b.data = next
	}

	for n > bitOffset {
		b.data[bytePos] &^= byte(bitMask[bitOffset])
		b.data[bytePos] |= byte((v >> uint(n-bitOffset)) & bitMask[bitOffset])
		bytePos++
		n -= bitOffset
		bitOffset = 8
	}
	if n == bitOffset {
		b.data[bytePos] &^= byte(bitMask[n])
		b.data[bytePos] |= byte(v & bitMask[n])
	} else {
		b.data[bytePos] &^= byte(bitMask[n] << uint(bitOffset-n))
		b.data[bytePos] |= byte((v & bitMask[n]) << uint(bitOffset-n))
	}
	return nil
}

// PutBit writes a single flag bit.
func (b *Buffer) PutBit(flag bool) error {
	if flag {
		return b.PutBits(1, 1)
	}
	return b.PutBits(1, 0)
}

// GetBits reads the next n packed bits, most-significant bit first.
// n must be in [1, 32].
func (b *Buffer) GetBits(n int) (uint32, error) {
	if n < 1 || n > 32 {
		return 0, fmt.Errorf("buffer: GetBits width %d out of range [1,32]", n)
	}

	bytePos := b.bitPos >> 3
	bitOffset := 8 - (b.bitPos & 7)
	b.bitPos += n

	var v uint32
	remaining := n
	for remaining > bitOffset {
		v += uint32(b.data[bytePos]&byte(bitMask[bitOffset])) << uint(remaining-bitOffset)
		bytePos++
		remaining -= bitOffset
		bitOffset = 8
	}
	if remaining == bitOffset {
		v += uint32(b.data[bytePos] & byte(bitMask[remaining]))
	} else {
		v += uint32((b.data[bytePos] >> uint(bitOffset-remaining)) & byte(bitMask[remaining]))
	}
	return v, nil
}

// GetBit reads a single flag bit.
func (b *Buffer) GetBit() (bool, error) {
	v, err := b.GetBits(1)
	return v == 1, err
}

// Message writes a fixed-length frame's opcode byte.
func (b *Buffer) Message(opcode byte) {
	b.Put(opcode, Normal)
}

// VarMessage writes a variable-length frame's opcode byte and reserves
// a one-byte length placeholder, to be finalized by EndVarMessage.
func (b *Buffer) VarMessage(opcode byte) {
	b.Put(opcode, Normal)
	b.varIndex = b.writePos
	b.inVar = true
	b.Put(0, Normal)
}

// EndVarMessage rewrites the placeholder reserved by VarMessage with
// the number of bytes written since.
func (b *Buffer) EndVarMessage() {
	length := b.writePos - b.varIndex - 1
	b.data[b.varIndex] = byte(length)
	b.inVar = false
}

// VarShortMessage writes a variable-length frame's opcode byte and
// reserves a two-byte big-endian length placeholder.
func (b *Buffer) VarShortMessage(opcode byte) {
	b.Put(opcode, Normal)
	b.varIndex = b.writePos
	b.inVar = true
	b.PutShort(0, Normal, Big)
}

// EndVarShortMessage rewrites the placeholder reserved by
// VarShortMessage with the number of bytes written since.
func (b *Buffer) EndVarShortMessage() {
	length := b.writePos - b.varIndex - 2
	b.data[b.varIndex] = byte(length >> 8)
	b.data[b.varIndex+1] = byte(length)
	b.inVar = false
}

// RSAEncoder computes m^e mod n for the given exponent and modulus.
// A rsakey.KeyPair's public parts satisfy this minimal shape, avoiding
// a dependency cycle between buffer and rsakey.
type RSAEncoder interface {
	Encrypt(plaintext []byte) []byte
}

// EncodeRSA treats the bytes written so far as a big-endian integer,
// applies key (if non-nil) to produce a ciphertext, and replaces the
// buffer's contents with a one-byte length prefix followed by the
// ciphertext. If key is nil the plaintext bytes are kept as-is behind
// the same length prefix, matching the source's "RSA step is identity"
// behavior when no public key was configured.
func (b *Buffer) EncodeRSA(key RSAEncoder) error {
	plaintext := append([]byte(nil), b.data[:b.writePos]...)

	var result []byte
	if key == nil {
		result = plaintext
	} else {
		result = key.Encrypt(plaintext)
	}
	if len(result) > 255 {
		return fmt.Errorf("buffer: RSA-encoded block too large (%d bytes)", len(result))
	}

	b.writePos = 0
	b.Put(byte(len(result)), Normal)
	b.PutBytes(result)
	return nil
}
