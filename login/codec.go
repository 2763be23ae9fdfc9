// Package login implements the three-stage RuneScape 317 login
// handshake: base37 username packing, the INITIAL_REQUEST/
// INITIAL_RESPONSE/FINAL_RESPONSE state machine, and the one-shot
// login barrier signalled at LOGGED_IN.
package login

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/lare96/rsbotgroup/boterr"
	"github.com/lare96/rsbotgroup/buffer"
	"github.com/lare96/rsbotgroup/rsakey"
)

const (
	clientUID         = 455437 // placeholder client UID the source hard-codes
	clientVariant     = 0xFF
	loginTypeStandard = 0x10
	stage2RequestLen  = 17
	stage3ResponseLen = 3
)

// Handshake drives one connection's login state machine. It holds no
// socket of its own: the reactor feeds it buffered inbound bytes and
// writes back whatever outbound bytes it produces.
type Handshake struct {
	Username string
	Password string

	// RSAKey is the reference server's public key. A nil RSAKey makes
	// the secure block's RSA step an identity transform, per the
	// "RSA key is absent" configuration rule.
	RSAKey *rsakey.KeyPair

	State  ConnState
	Future *Future

	// EncryptorSeed/DecryptorSeed are populated once stage 2 completes;
	// the caller seeds its isaac.Cipher pair from them.
	EncryptorSeed [4]uint32
	DecryptorSeed [4]uint32
}

// NewHandshake returns a Handshake ready to emit stage 1.
func NewHandshake(username, password string, key *rsakey.KeyPair) *Handshake {
	return &Handshake{
		Username: username,
		Password: password,
		RSAKey:   key,
		State:    Registered,
		Future:   NewFuture(),
	}
}

// EmitInitialRequest produces the two-byte stage-1 frame and
// transitions the handshake to INITIAL_RESPONSE. Called once, by the
// reactor, immediately after a successful non-blocking connect.
func (h *Handshake) EmitInitialRequest() []byte {
	h.State = InitialRequest
	hash := Base37(h.Username)
	out := []byte{0x0E, byte((hash >> 16) & 0x1F)}
	h.State = InitialResponse
	return out
}

// Step consumes as much of data as the current stage needs. It
// returns the number of bytes consumed (0 means "not enough data
// yet — try again after more bytes arrive") and any bytes that must
// be written back to the socket. Step must only be called while
// State is INITIAL_RESPONSE or FINAL_RESPONSE.
func (h *Handshake) Step(data []byte) (consumed int, outbound []byte, err error) {
	switch h.State {
	case InitialResponse:
		return h.stepInitialResponse(data)
	case FinalResponse:
		return h.stepFinalResponse(data)
	default:
		return 0, nil, boterr.New(boterr.KindProtocol, h.Username,
			fmt.Errorf("login.Step called in state %s", h.State))
	}
}

func (h *Handshake) stepInitialResponse(data []byte) (int, []byte, error) {
	if len(data) < stage2RequestLen {
		return 0, nil, nil
	}
	buf := buffer.Wrap(data[:stage2RequestLen])
	buf.GetBytes(8) // discarded per the wire format

	status := buf.Get(buffer.Normal)
	if status != 0 {
		return stage2RequestLen, nil, boterr.New(boterr.KindLoginRejected, h.Username,
			fmt.Errorf("stage-2 status byte: got %d want 0", status))
	}

	s2, err := buf.GetInt(buffer.Normal, buffer.Big)
	if err != nil {
		return stage2RequestLen, nil, boterr.New(boterr.KindProtocol, h.Username, err)
	}
	s3, err := buf.GetInt(buffer.Normal, buffer.Big)
	if err != nil {
		return stage2RequestLen, nil, boterr.New(boterr.KindProtocol, h.Username, err)
	}

	s0, s1, err := randomSeedPair()
	if err != nil {
		return stage2RequestLen, nil, boterr.New(boterr.KindProtocol, h.Username, err)
	}

	clientInfo, err := h.buildClientInfo(s0, s1, s2, s3)
	if err != nil {
		return stage2RequestLen, nil, boterr.New(boterr.KindProtocol, h.Username, err)
	}

	h.EncryptorSeed = [4]uint32{s0, s1, s2, s3}
	h.DecryptorSeed = [4]uint32{s0 + 50, s1 + 50, s2 + 50, s3 + 50}
	h.State = FinalResponse

	return stage2RequestLen, clientInfo, nil
}

func (h *Handshake) buildClientInfo(s0, s1, s2, s3 uint32) ([]byte, error) {
	secure := buffer.New(64)
	secure.Put(0x0A, buffer.Normal)
	_ = secure.PutInt(s0, buffer.Normal, buffer.Big)
	_ = secure.PutInt(s1, buffer.Normal, buffer.Big)
	_ = secure.PutInt(s2, buffer.Normal, buffer.Big)
	_ = secure.PutInt(s3, buffer.Normal, buffer.Big)
	_ = secure.PutInt(clientUID, buffer.Normal, buffer.Big)
	secure.PutString(h.Username)
	secure.PutString(h.Password)

	var encoder buffer.RSAEncoder
	if h.RSAKey != nil {
		encoder = h.RSAKey
	}
	if err := secure.EncodeRSA(encoder); err != nil {
		return nil, fmt.Errorf("encoding secure block: %w", err)
	}
	secureBytes := secure.Bytes()

	info := buffer.New(64 + len(secureBytes))
	info.Put(loginTypeStandard, buffer.Normal)
	// The size byte is the RSA-encoded secure block's write position
	// (length prefix + ciphertext) plus 40, computed after EncodeRSA
	// has already run — see the handshake's stage-2 design notes.
	info.Put(byte(len(secureBytes)+40), buffer.Normal)
	info.Put(clientVariant, buffer.Normal)
	if err := info.PutShort(317, buffer.Normal, buffer.Big); err != nil {
		return nil, err
	}
	info.Put(0x00, buffer.Normal)

	for range 9 {
		word, err := randomWord()
		if err != nil {
			return nil, err
		}
		if err := info.PutInt(word, buffer.Normal, buffer.Big); err != nil {
			return nil, err
		}
	}

	info.PutBytes(secureBytes)
	return info.Bytes(), nil
}

func (h *Handshake) stepFinalResponse(data []byte) (int, []byte, error) {
	if len(data) < stage3ResponseLen {
		return 0, nil, nil
	}
	status := data[0]
	if status != 2 {
		return stage3ResponseLen, nil, boterr.New(boterr.KindLoginRejected, h.Username,
			fmt.Errorf("stage-3 status byte: got %d want 2", status))
	}
	h.State = LoggedIn
	h.Future.Resolve(true)
	return stage3ResponseLen, nil, nil
}

func randomWord() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("generating random word: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func randomSeedPair() (uint32, uint32, error) {
	s0, err := randomWord()
	if err != nil {
		return 0, 0, err
	}
	s1, err := randomWord()
	if err != nil {
		return 0, 0, err
	}
	return s0, s1, nil
}
