// Package bot implements the per-connection state a single simulated
// player carries: its socket, read buffer, outbound queue, connection
// state, cipher pair, and login future.
package bot

import (
	"net"
	"sync"

	"github.com/lare96/rsbotgroup/game"
	"github.com/lare96/rsbotgroup/isaac"
	"github.com/lare96/rsbotgroup/login"
	"github.com/lare96/rsbotgroup/message"
)

// minReadBufSize is the minimum read buffer capacity a Connection is
// constructed with, per spec.md's "direct, capacity 256 min."
const minReadBufSize = 256

// Connection owns one socket and all protocol state for one username.
// Every field except the outbound queue and state are only ever read
// or written from the reactor goroutine that owns this Connection's
// group; the outbound queue and State are safe for concurrent use so
// that a caller on any goroutine can call Write/State/Close.
type Connection struct {
	Username string
	conn     net.Conn

	readBuf []byte
	pending int // bytes of readBuf currently holding undecoded data

	Handshake *login.Handshake
	Future    *login.Future

	encryptor *isaac.Cipher
	decryptor *isaac.Cipher
	decoder   *game.Decoder

	outbound outboundQueue

	mu    sync.Mutex
	state login.ConnState
}

// New constructs a Connection in state Registered, not yet dialed.
func New(username string, handshake *login.Handshake, readBufSize int) *Connection {
	if readBufSize < minReadBufSize {
		readBufSize = minReadBufSize
	}
	return &Connection{
		Username:  username,
		readBuf:   make([]byte, readBufSize),
		Handshake: handshake,
		Future:    handshake.Future,
		state:     login.Registered,
	}
}

// State returns the current connection state.
func (c *Connection) State() login.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState updates the connection state. Only the reactor goroutine
// that owns this Connection calls this.
func (c *Connection) SetState(s login.ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// UsernameHash returns the base37 encoding of Username, used by group
// as a fast pre-check before the authoritative string-keyed lookup.
func (c *Connection) UsernameHash() uint64 {
	return login.Base37(c.Username)
}

// SetCiphers installs the session's encryptor/decryptor pair, seeded
// once at the INITIAL_RESPONSE -> FINAL_RESPONSE transition.
func (c *Connection) SetCiphers(encryptor, decryptor *isaac.Cipher) {
	c.encryptor = encryptor
	c.decryptor = decryptor
}

// Decryptor returns the connection's inbound cipher, or nil before the
// handshake has seeded it.
func (c *Connection) Decryptor() *isaac.Cipher {
	return c.decryptor
}

// Encryptor returns the connection's outbound cipher, or nil before the
// handshake has seeded it.
func (c *Connection) Encryptor() *isaac.Cipher {
	return c.encryptor
}

// Decoder returns the connection's game-frame decoder, or nil before
// LOGGED_IN has installed one via SetDecoder.
func (c *Connection) Decoder() *game.Decoder {
	return c.decoder
}

// SetDecoder installs the game-frame decoder, created once the
// handshake reaches LOGGED_IN and the decryptor cipher is seeded.
func (c *Connection) SetDecoder(d *game.Decoder) {
	c.decoder = d
}

// BindConn attaches the dialed socket, enabling TCP_NODELAY when
// possible. Called by the reactor once net.Dial succeeds.
func (c *Connection) BindConn(conn net.Conn) {
	c.conn = conn
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}

// Conn returns the underlying socket, or nil before connect completes.
func (c *Connection) Conn() net.Conn {
	return c.conn
}

// ReadBuf returns the connection's fixed read buffer and the number of
// bytes of undecoded data currently held at its start.
func (c *Connection) ReadBuf() ([]byte, int) {
	return c.readBuf, c.pending
}

// SetPending records how many bytes at the start of ReadBuf still hold
// undecoded data, after the reactor has consumed a prefix of it.
func (c *Connection) SetPending(n int) {
	c.pending = n
}

// GrowReadBuf doubles the read buffer when an incoming frame (most
// commonly a var-short game message) cannot fit in the current
// capacity, preserving the pending bytes at the front.
func (c *Connection) GrowReadBuf(minCapacity int) {
	if minCapacity <= len(c.readBuf) {
		return
	}
	newCap := len(c.readBuf) * 2
	if newCap < minCapacity {
		newCap = minCapacity
	}
	grown := make([]byte, newCap)
	copy(grown, c.readBuf[:c.pending])
	c.readBuf = grown
}

// Write enqueues msg for outbound delivery. Per spec.md §4.5, this is a
// silent no-op unless the connection is LOGGED_IN.
func (c *Connection) Write(msg *message.Message) {
	if c.State() != login.LoggedIn {
		return
	}
	c.outbound.push(msg)
}

// WriteRaw writes raw login-frame bytes directly to the socket,
// bypassing the outbound queue — used only by the login handshake,
// which runs synchronously on the reactor goroutine.
func (c *Connection) WriteRaw(data []byte) error {
	_, err := c.conn.Write(data)
	return err
}

// DrainOutbound removes and returns every message currently queued,
// in enqueue order, for the reactor's WRITE dispatch to encode and
// flush.
func (c *Connection) DrainOutbound() []*message.Message {
	return c.outbound.drainAll()
}

// Close closes the underlying socket and marks the connection
// LOGGED_OUT. A login future that has not resolved yet is resolved
// with false, releasing its waiters. Safe to call more than once.
func (c *Connection) Close() error {
	c.SetState(login.LoggedOut)
	if c.Future != nil {
		c.Future.Resolve(false)
	}
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// outboundQueue is a mutex-guarded FIFO slice standing in for a
// lock-free MPSC queue (Go's stdlib has none); many goroutines may
// push concurrently via Connection.Write, while only the reactor
// goroutine ever drains it.
type outboundQueue struct {
	mu    sync.Mutex
	items []*message.Message
}

func (q *outboundQueue) push(msg *message.Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
}

func (q *outboundQueue) drainAll() []*message.Message {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}
