package group

import (
	"net"
	"strconv"

	"github.com/lare96/rsbotgroup/boterr"
	"github.com/lare96/rsbotgroup/config"
	"github.com/lare96/rsbotgroup/game"
	"github.com/lare96/rsbotgroup/login"
	"github.com/lare96/rsbotgroup/reactor"
	"github.com/lare96/rsbotgroup/rsakey"
)

// Option configures a Group at construction, mirroring both the
// source's RsBotGroupBuilder and the teacher's ServerOption pattern.
type Option func(*options)

type options struct {
	cfg          config.GroupConfig
	rsaKey       *rsakey.KeyPair
	rsaKeyPEM    []byte
	encode       reactor.MessageEncoder
	newDecoder   reactor.DecoderFactory
	newHandshake func(username, password string, key *rsakey.KeyPair) *login.Handshake
	handler      boterr.ExceptionHandler
}

func defaultOptions() *options {
	return &options{
		cfg:          config.DefaultGroupConfig(),
		encode:       game.EncodeOpcode,
		newDecoder:   game.NewDecoder,
		newHandshake: login.NewHandshake,
		handler:      boterr.SlogExceptionHandler{},
	}
}

// WithConfig sets every file-configurable setting at once (connect
// address, client revision, buffer size, login wait timeout).
func WithConfig(cfg config.GroupConfig) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConnectAddress overrides the configured "host:port" target.
func WithConnectAddress(addr string) Option {
	return func(o *options) {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return
		}
		o.cfg.ConnectHost = host
		o.cfg.ConnectPort = port
	}
}

// WithMessageEncoder overrides the outbound opcode-encoding strategy.
// game.EncodeOpcode (revision 317) is the default.
func WithMessageEncoder(encode reactor.MessageEncoder) Option {
	return func(o *options) { o.encode = encode }
}

// WithMessageDecoder overrides the inbound frame-decoding strategy.
// game.NewDecoder (revision 317) is the default.
func WithMessageDecoder(newDecoder reactor.DecoderFactory) Option {
	return func(o *options) { o.newDecoder = newDecoder }
}

// WithLoginCodec overrides the handshake strategy. login.NewHandshake
// (revision 317) is the default.
func WithLoginCodec(newHandshake func(username, password string, key *rsakey.KeyPair) *login.Handshake) Option {
	return func(o *options) { o.newHandshake = newHandshake }
}

// WithRSAKey sets the reference server's public key. Absent, the
// secure block's RSA step is an identity transform.
func WithRSAKey(key *rsakey.KeyPair) Option {
	return func(o *options) { o.rsaKey = key }
}

// WithRSAKeyPEM sets the reference server's public key from a
// PEM-encoded PKIX block (as published in a server's configuration),
// parsed once at New via rsakey.ParsePublicPEM. Overridden by
// WithRSAKey if both are given.
func WithRSAKeyPEM(pemBytes []byte) Option {
	return func(o *options) { o.rsaKeyPEM = pemBytes }
}

// WithExceptionHandler overrides the default slog-based handler.
func WithExceptionHandler(h boterr.ExceptionHandler) Option {
	return func(o *options) { o.handler = h }
}
