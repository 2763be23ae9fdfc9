package reactor

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/lare96/rsbotgroup/bot"
	"github.com/lare96/rsbotgroup/boterr"
	"github.com/lare96/rsbotgroup/game"
	"github.com/lare96/rsbotgroup/isaac"
	"github.com/lare96/rsbotgroup/login"
	"github.com/lare96/rsbotgroup/message"
)

func newTestListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln
}

// driveHandshake accepts one connection and plays the server side of
// the three-stage handshake with an RSA-absent secure block, then
// returns the connection for further reads/writes (e.g. game frames).
// It runs on its own goroutine in every caller, so failures are
// reported via t.Errorf (safe from any goroutine) rather than
// t.Fatalf/FailNow, which must only be called from the test goroutine.
func driveHandshake(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		t.Errorf("Accept: %v", err)
		return nil
	}

	stage1 := make([]byte, 2)
	if _, err := io.ReadFull(conn, stage1); err != nil {
		t.Errorf("reading stage 1: %v", err)
		return nil
	}

	resp := make([]byte, 17)
	binary.BigEndian.PutUint32(resp[9:13], 11)
	binary.BigEndian.PutUint32(resp[13:17], 22)
	if _, err := conn.Write(resp); err != nil {
		t.Errorf("writing stage 2 response: %v", err)
		return nil
	}

	prefix := make([]byte, 42)
	if _, err := io.ReadFull(conn, prefix); err != nil {
		t.Errorf("reading client-info prefix: %v", err)
		return nil
	}
	secure := make([]byte, int(prefix[1])-40)
	if _, err := io.ReadFull(conn, secure); err != nil {
		t.Errorf("reading secure block: %v", err)
		return nil
	}

	if _, err := conn.Write([]byte{2, 0, 0}); err != nil {
		t.Errorf("writing stage 3 response: %v", err)
		return nil
	}
	return conn
}

func newTestLoop(onException func(*boterr.Error), onMessage func(string, byte, []byte)) *Loop {
	return NewLoop("", game.EncodeOpcode, game.NewDecoder, onException, onMessage)
}

func TestLoopHandshakeReachesLoggedIn(t *testing.T) {
	ln := newTestListener(t)
	loop := newTestLoop(nil, nil)
	loop.connectAddr = ln.Addr().String()

	handshake := login.NewHandshake("bot", "pw", nil)
	conn := bot.New("bot", handshake, 0)

	go driveHandshake(t, ln)
	loop.Register("bot", conn)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn.State() == login.LoggedIn {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if conn.State() != login.LoggedIn {
		t.Fatalf("expected LOGGED_IN, got %s", conn.State())
	}
	if conn.Encryptor() == nil || conn.Decryptor() == nil {
		t.Error("expected both ciphers to be seeded")
	}
	if conn.Decoder() == nil {
		t.Error("expected a game decoder to be installed")
	}
}

func TestLoopDeliversWrittenMessageToServer(t *testing.T) {
	ln := newTestListener(t)
	loop := newTestLoop(nil, nil)
	loop.connectAddr = ln.Addr().String()

	handshake := login.NewHandshake("bot", "pw", nil)
	conn := bot.New("bot", handshake, 0)

	serverConnCh := make(chan net.Conn, 1)
	go func() { serverConnCh <- driveHandshake(t, ln) }()

	id := loop.Register("bot", conn)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && conn.State() != login.LoggedIn {
		time.Sleep(5 * time.Millisecond)
	}
	if conn.State() != login.LoggedIn {
		t.Fatal("handshake did not complete")
	}

	serverConn := <-serverConnCh
	defer serverConn.Close()

	// Opcode 4 is fixed-length 6 in the packet-length table.
	conn.Write(message.New(4, 6, make([]byte, 6)))
	loop.RequestWrite(id)

	serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	raw := make([]byte, 7)
	if _, err := io.ReadFull(serverConn, raw); err != nil {
		t.Fatalf("reading delivered frame: %v", err)
	}

	verify := isaac.New(handshake.EncryptorSeed)
	want := byte(4 + verify.Next())
	if raw[0] != want {
		t.Errorf("opcode byte: got %d want %d", raw[0], want)
	}
}

func TestLoopReportsIOErrorAndRemovesConnection(t *testing.T) {
	ln := newTestListener(t)

	var reported *boterr.Error
	done := make(chan struct{})
	loop := newTestLoop(func(err *boterr.Error) {
		reported = err
		close(done)
	}, nil)
	loop.connectAddr = ln.Addr().String()

	handshake := login.NewHandshake("bot", "pw", nil)
	conn := bot.New("bot", handshake, 0)

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		c.Close() // close immediately, before any handshake bytes
	}()

	id := loop.Register("bot", conn)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an IO error to be reported")
	}

	if reported == nil || reported.Kind != boterr.KindIO {
		t.Errorf("expected a KindIO error, got %+v", reported)
	}
	if _, ok := loop.lookup(id); ok {
		t.Error("expected the faulted connection to be removed from the loop")
	}
}

func TestLoopPreservesLoginRejectedKind(t *testing.T) {
	ln := newTestListener(t)

	var reported *boterr.Error
	done := make(chan struct{})
	loop := newTestLoop(func(err *boterr.Error) {
		reported = err
		close(done)
	}, nil)
	loop.connectAddr = ln.Addr().String()

	handshake := login.NewHandshake("bot", "pw", nil)
	conn := bot.New("bot", handshake, 0)

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()

		stage1 := make([]byte, 2)
		if _, err := io.ReadFull(c, stage1); err != nil {
			return
		}

		// A non-zero stage-2 status byte (offset 8) makes login.Step
		// return a *boterr.Error tagged KindLoginRejected.
		resp := make([]byte, 17)
		resp[8] = 3
		c.Write(resp)
	}()

	loop.Register("bot", conn)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a login-rejected error to be reported")
	}

	if reported == nil || reported.Kind != boterr.KindLoginRejected {
		t.Errorf("expected KindLoginRejected to survive out of handleRead, got %+v", reported)
	}
}

func TestLoopStopClosesRegisteredConnections(t *testing.T) {
	ln := newTestListener(t)
	loop := newTestLoop(nil, nil)
	loop.connectAddr = ln.Addr().String()

	handshake := login.NewHandshake("bot", "pw", nil)
	conn := bot.New("bot", handshake, 0)

	go driveHandshake(t, ln)
	loop.Register("bot", conn)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && conn.State() != login.LoggedIn {
		time.Sleep(5 * time.Millisecond)
	}

	loop.Stop()
	if conn.State() != login.LoggedOut {
		t.Errorf("expected LOGGED_OUT after Stop, got %s", conn.State())
	}
}
