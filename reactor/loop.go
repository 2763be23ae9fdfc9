// Package reactor implements the single-goroutine event loop that
// multiplexes connect, read, and write activity for every Connection
// in a group. It is the Go-channel translation of the Java NIO
// selector design described in SPEC_FULL.md's Reactor Design Decision:
// a dedicated goroutine per connection performs the blocking read and
// forwards raw bytes over a channel, while exactly one goroutine (the
// loop itself) owns every mutable protocol state transition.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lare96/rsbotgroup/bot"
	"github.com/lare96/rsbotgroup/boterr"
	"github.com/lare96/rsbotgroup/game"
	"github.com/lare96/rsbotgroup/isaac"
	"github.com/lare96/rsbotgroup/login"
)

// readChunkSize is the local buffer each per-connection reader
// goroutine reads into before forwarding a copy to the loop.
const readChunkSize = 4096

// MessageEncoder offsets an already-built frame's opcode by the
// encryptor's next keystream word. game.EncodeOpcode is the revision
// 317 strategy; it is a variable here, not a hard dependency, per
// spec.md §9's "message encoder" strategy role.
type MessageEncoder func(raw []byte, encryptor *isaac.Cipher)

// DecoderFactory builds a fresh game-frame decoder for a
// newly-seeded decryptor. game.NewDecoder is the revision 317
// strategy.
type DecoderFactory func(decryptor *isaac.Cipher) *game.Decoder

type connectResult struct {
	id   uint64
	conn net.Conn
	err  error
}

type readResult struct {
	id   uint64
	data []byte
	err  error
}

// Loop is one group's single-threaded reactor. All connect/read/write
// dispatch and every Handshake/game-codec state transition happen
// exclusively on the goroutine running Loop.run, per spec.md §5.
type Loop struct {
	connectAddr string
	encode      MessageEncoder
	newDecoder  DecoderFactory
	onException func(*boterr.Error)
	// onMessage receives every decoded game message; a nil onMessage
	// is the default "drop" hook from spec.md §4.6 — decoding opcode
	// payloads beyond framing is an explicit Non-goal.
	onMessage func(username string, opcode byte, payload []byte)

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	eg        *errgroup.Group

	mu     sync.Mutex
	conns  map[uint64]*entry
	nextID uint64

	connectEvents chan connectResult
	readEvents    chan readResult
	writeReady    chan uint64
}

type entry struct {
	username string
	conn     *bot.Connection
}

// NewLoop constructs a Loop. onException is invoked, exactly once per
// fault, from the reactor goroutine. onMessage is invoked for every
// decoded game message.
func NewLoop(connectAddr string, encode MessageEncoder, newDecoder DecoderFactory,
	onException func(*boterr.Error), onMessage func(username string, opcode byte, payload []byte)) *Loop {
	return &Loop{
		connectAddr:   connectAddr,
		encode:        encode,
		newDecoder:    newDecoder,
		onException:   onException,
		onMessage:     onMessage,
		conns:         make(map[uint64]*entry),
		connectEvents: make(chan connectResult, 16),
		readEvents:    make(chan readResult, 64),
		writeReady:    make(chan uint64, 256),
	}
}

// ensureStarted lazily launches the reactor goroutine on first use,
// per spec.md §4.6 ("started lazily on first add").
func (l *Loop) ensureStarted() {
	l.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		l.ctx = ctx
		l.cancel = cancel
		eg, egCtx := errgroup.WithContext(ctx)
		l.eg = eg
		eg.Go(func() error {
			return l.run(egCtx)
		})
	})
}

// Register adds a connection and begins dialing it. It returns the
// internal connection ID, used by Remove.
func (l *Loop) Register(username string, conn *bot.Connection) uint64 {
	l.ensureStarted()

	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.conns[id] = &entry{username: username, conn: conn}
	l.mu.Unlock()

	l.eg.Go(func() error {
		c, err := net.Dial("tcp", l.connectAddr)
		select {
		case l.connectEvents <- connectResult{id: id, conn: c, err: err}:
		case <-l.ctx.Done():
			if c != nil {
				_ = c.Close()
			}
		}
		return nil
	})
	return id
}

// Remove closes id's connection and drops it from the loop's
// bookkeeping. Safe to call from any goroutine.
func (l *Loop) Remove(id uint64) {
	l.mu.Lock()
	e, ok := l.conns[id]
	delete(l.conns, id)
	l.mu.Unlock()
	if ok {
		_ = e.conn.Close()
	}
}

// RequestWrite wakes the reactor to drain id's outbound queue. A
// non-blocking send: a second wakeup while one is already pending is
// a harmless duplicate, exactly mirroring "arm OP_WRITE" semantics.
func (l *Loop) RequestWrite(id uint64) {
	select {
	case l.writeReady <- id:
	default:
	}
}

// Stop terminates the loop, closing every registered connection. The
// group that owns this Loop becomes inoperable afterward, per
// spec.md §7's FatalLoopError policy.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	if l.eg != nil {
		_ = l.eg.Wait()
	}
}

func (l *Loop) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case cr := <-l.connectEvents:
			l.handleConnect(cr)
		case rr := <-l.readEvents:
			l.handleRead(rr)
		case id := <-l.writeReady:
			l.handleWrite(id)
		}
	}
}

func (l *Loop) shutdown() {
	l.mu.Lock()
	ids := make([]*entry, 0, len(l.conns))
	for _, e := range l.conns {
		ids = append(ids, e)
	}
	l.conns = make(map[uint64]*entry)
	l.mu.Unlock()

	for _, e := range ids {
		_ = e.conn.Close()
	}
	slog.Warn("reactor loop stopped, group is now inoperable")
}

func (l *Loop) lookup(id uint64) (*entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.conns[id]
	return e, ok
}

func (l *Loop) fault(id uint64, username string, kind boterr.Kind, err error) {
	l.Remove(id)
	if l.onException != nil {
		l.onException(boterr.New(kind, username, err))
	}
}

func (l *Loop) handleConnect(cr connectResult) {
	e, ok := l.lookup(cr.id)
	if !ok {
		if cr.conn != nil {
			_ = cr.conn.Close()
		}
		return
	}
	if cr.err != nil {
		l.fault(cr.id, e.username, boterr.KindIO, fmt.Errorf("dialing %s: %w", l.connectAddr, cr.err))
		return
	}

	conn := e.conn
	conn.BindConn(cr.conn)
	conn.SetState(login.InitialRequest)

	out := conn.Handshake.EmitInitialRequest()
	conn.SetState(conn.Handshake.State)
	if err := conn.WriteRaw(out); err != nil {
		l.fault(cr.id, e.username, boterr.KindIO, fmt.Errorf("writing stage-1 request: %w", err))
		return
	}

	l.spawnReader(cr.id, cr.conn)
	slog.Info("bot connected", "bot", e.username, "addr", l.connectAddr)
}

func (l *Loop) spawnReader(id uint64, netConn net.Conn) {
	l.eg.Go(func() error {
		buf := make([]byte, readChunkSize)
		for {
			n, err := netConn.Read(buf)
			var data []byte
			if n > 0 {
				data = append([]byte(nil), buf[:n]...)
			}
			select {
			case l.readEvents <- readResult{id: id, data: data, err: err}:
			case <-l.ctx.Done():
				return nil
			}
			if err != nil {
				return nil
			}
		}
	})
}

func (l *Loop) handleRead(rr readResult) {
	e, ok := l.lookup(rr.id)
	if !ok {
		return
	}
	if rr.err != nil {
		l.fault(rr.id, e.username, boterr.KindIO, fmt.Errorf("reading from %s: %w", e.username, rr.err))
		return
	}
	if len(rr.data) == 0 {
		return
	}

	conn := e.conn
	buf, pending := conn.ReadBuf()
	needed := pending + len(rr.data)
	conn.GrowReadBuf(needed)
	buf, pending = conn.ReadBuf()
	copy(buf[pending:needed], rr.data)
	conn.SetPending(needed)

	if err := l.processBuffer(rr.id, e.username, conn); err != nil {
		// processBuffer's callees (the login handshake in particular)
		// already classify their failures as a *boterr.Error — e.g.
		// KindLoginRejected for a bad stage-2/stage-3 status byte.
		// Forward that kind instead of flattening everything to
		// KindProtocol, so the exception handler sees the real cause.
		var typed *boterr.Error
		if errors.As(err, &typed) {
			l.fault(rr.id, e.username, typed.Kind, typed.Err)
			return
		}
		l.fault(rr.id, e.username, boterr.KindProtocol, err)
	}
}

// processBuffer drives the login handshake and, once LOGGED_IN, the
// game decoder over whatever bytes are currently buffered, leaving
// any incomplete trailing frame in place for the next read.
func (l *Loop) processBuffer(id uint64, username string, conn *bot.Connection) error {
	buf, pending := conn.ReadBuf()
	cursor := 0

	for conn.State() != login.LoggedIn && conn.State() != login.LoggedOut && cursor < pending {
		consumed, outbound, err := conn.Handshake.Step(buf[cursor:pending])
		if err != nil {
			return err
		}
		if consumed == 0 {
			break
		}
		cursor += consumed

		if outbound != nil {
			if werr := conn.WriteRaw(outbound); werr != nil {
				return fmt.Errorf("writing handshake response: %w", werr)
			}
		}
		conn.SetState(conn.Handshake.State)

		if conn.Handshake.State == login.LoggedIn {
			encryptor := isaac.New(conn.Handshake.EncryptorSeed)
			decryptor := isaac.New(conn.Handshake.DecryptorSeed)
			conn.SetCiphers(encryptor, decryptor)
			conn.SetDecoder(l.newDecoder(decryptor))
			slog.Info("bot logged in", "bot", username)
		}
	}

	if conn.State() == login.LoggedIn {
		msgs, n, err := conn.Decoder().Decode(buf[cursor:pending])
		if err != nil {
			return err
		}
		cursor += n
		for _, msg := range msgs {
			if l.onMessage != nil {
				l.onMessage(username, msg.Opcode, msg.Payload.Bytes())
			}
		}
	}

	remaining := pending - cursor
	if remaining > 0 && cursor > 0 {
		copy(buf, buf[cursor:pending])
	}
	conn.SetPending(remaining)
	return nil
}

func (l *Loop) handleWrite(id uint64) {
	e, ok := l.lookup(id)
	if !ok {
		return
	}
	conn := e.conn
	if conn.State() != login.LoggedIn {
		return
	}

	encryptor := conn.Encryptor()
	for _, msg := range conn.DrainOutbound() {
		raw := game.BuildFrame(msg)
		l.encode(raw, encryptor)
		if err := conn.WriteRaw(raw); err != nil {
			l.fault(id, e.username, boterr.KindIO, fmt.Errorf("flushing outbound message: %w", err))
			return
		}
	}
}
