// Package group implements the bot fleet container: a username-keyed
// map of Connections, the codec strategies shared by every bot in the
// group, and the lazily-started reactor loop that drives them all.
package group

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/lare96/rsbotgroup/bot"
	"github.com/lare96/rsbotgroup/boterr"
	"github.com/lare96/rsbotgroup/config"
	"github.com/lare96/rsbotgroup/login"
	"github.com/lare96/rsbotgroup/message"
	"github.com/lare96/rsbotgroup/reactor"
	"github.com/lare96/rsbotgroup/rsakey"
)

// Group owns at most one Connection per username and the single
// reactor loop shared by all of them, started on the first Login.
type Group struct {
	cfg    config.GroupConfig
	rsaKey *rsakey.KeyPair

	newHandshake func(username, password string, key *rsakey.KeyPair) *login.Handshake
	handler      boterr.ExceptionHandler

	loop *reactor.Loop

	mu   sync.RWMutex
	bots map[string]*entry
}

type entry struct {
	conn *bot.Connection
	id   uint64
}

// New builds a Group from DefaultGroupConfig plus any Options,
// resolving an RSA key (literal or PEM) synchronously — a
// KindConfiguration failure here is returned, not routed to the
// exception handler, per spec.md §7.
func New(opts ...Option) (*Group, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	rsaKey := o.rsaKey
	if rsaKey == nil && len(o.rsaKeyPEM) > 0 {
		parsed, err := rsakey.ParsePublicPEM(o.rsaKeyPEM)
		if err != nil {
			return nil, boterr.New(boterr.KindConfiguration, "", fmt.Errorf("parsing RSA key PEM: %w", err))
		}
		rsaKey = parsed
	}
	if rsaKey != nil {
		slog.Info("rsa key configured", "fingerprint", rsaKey.Fingerprint())
	}

	g := &Group{
		cfg:          o.cfg,
		rsaKey:       rsaKey,
		newHandshake: o.newHandshake,
		handler:      o.handler,
		bots:         make(map[string]*entry),
	}

	g.loop = reactor.NewLoop(o.cfg.Addr(), o.encode, o.newDecoder, g.onException, nil)
	return g, nil
}

func (g *Group) onException(err *boterr.Error) {
	if err.Bot != "" {
		g.mu.Lock()
		delete(g.bots, err.Bot)
		g.mu.Unlock()
	}
	if g.handler != nil {
		g.handler.Handle(err)
	}
}

// Login registers username (with password) as a new bot and begins
// connecting it, per spec.md §3's "at most one BC per username"
// invariant. It returns the bot's login future, which resolves once
// the handshake completes or fails.
func (g *Group) Login(username, password string) (*login.Future, error) {
	g.mu.Lock()
	if _, exists := g.bots[username]; exists {
		g.mu.Unlock()
		return nil, boterr.New(boterr.KindConfiguration, username, fmt.Errorf("username %q already registered", username))
	}

	handshake := g.newHandshake(username, password, g.rsaKey)
	conn := bot.New(username, handshake, g.cfg.ReadBufferSize)

	// Fast pre-check: the map is already keyed on the authoritative
	// username string, but two distinct strings can share a base37
	// hash, so a colliding pair is logged rather than silently merged.
	if other := g.hashCollision(conn.UsernameHash()); other != "" {
		slog.Warn("base37 username hash collision", "username", username, "collidesWith", other)
	}

	g.bots[username] = &entry{conn: conn}
	g.mu.Unlock()

	id := g.loop.Register(username, conn)

	g.mu.Lock()
	g.bots[username].id = id
	g.mu.Unlock()

	return handshake.Future, nil
}

// hashCollision returns the username of an existing entry whose base37
// hash matches hash, or "" if none collides. Callers must hold g.mu.
func (g *Group) hashCollision(hash uint64) string {
	for existing, e := range g.bots {
		if e.conn.UsernameHash() == hash {
			return existing
		}
	}
	return ""
}

// Logout closes username's connection and removes it from the group.
// A no-op if username is not present.
func (g *Group) Logout(username string) {
	g.mu.Lock()
	e, ok := g.bots[username]
	delete(g.bots, username)
	g.mu.Unlock()
	if ok {
		g.loop.Remove(e.id)
	}
}

// LogoutAll closes and removes every bot currently in the group.
func (g *Group) LogoutAll() {
	g.mu.Lock()
	entries := g.bots
	g.bots = make(map[string]*entry)
	g.mu.Unlock()

	for _, e := range entries {
		g.loop.Remove(e.id)
	}
}

// Contains reports whether username currently has a registered
// Connection, without the stale-entry eviction Get performs.
func (g *Group) Contains(username string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.bots[username]
	return ok
}

// Get returns username's Connection. If the Connection is present but
// has reached LOGGED_OUT, it is evicted from the group first and Get
// reports false — mirroring RsBotGroup.get's stale-entry eviction.
func (g *Group) Get(username string) (*bot.Connection, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.bots[username]
	if !ok {
		return nil, false
	}
	if e.conn.State() == login.LoggedOut {
		delete(g.bots, username)
		return nil, false
	}
	return e.conn, true
}

// Snapshot returns an immutable copy of every Connection currently in
// the group, matching RsBotGroup's immutable-iterator semantics.
func (g *Group) Snapshot() []*bot.Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*bot.Connection, 0, len(g.bots))
	for _, e := range g.bots {
		out = append(out, e.conn)
	}
	return out
}

// Write enqueues msg for delivery to username's connection, if
// present and LOGGED_IN, and wakes the reactor to flush it.
func (g *Group) Write(username string, msg *message.Message) {
	g.mu.RLock()
	e, ok := g.bots[username]
	g.mu.RUnlock()
	if !ok {
		return
	}
	e.conn.Write(msg)
	g.loop.RequestWrite(e.id)
}

// Close logs out every bot and stops the reactor loop. The Group is
// unusable afterward, per spec.md §7's FatalLoopError policy applying
// equally to an intentional shutdown.
func (g *Group) Close() {
	g.LogoutAll()
	g.loop.Stop()
}
