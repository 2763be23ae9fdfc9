// Command demo-bot logs a single bot into a 317 server and reports
// whether the handshake succeeded, mirroring the teacher's small
// flag-driven cmd/test-* diagnostic tools.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/lare96/rsbotgroup/config"
	"github.com/lare96/rsbotgroup/group"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:43594", "game server host:port")
	username := flag.String("user", "demo", "bot username")
	password := flag.String("pass", "password", "bot password")
	timeout := flag.Duration("timeout", 10*time.Second, "login wait timeout")
	flag.Parse()

	cfg := config.DefaultGroupConfig()
	g, err := group.New(group.WithConfig(cfg), group.WithConnectAddress(*addr))
	if err != nil {
		log.Fatalf("building group: %v", err)
	}
	defer g.Close()

	future, err := g.Login(*username, *password)
	if err != nil {
		log.Fatalf("login: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if !future.Wait(ctx) {
		slog.Error("login did not succeed", "username", *username, "addr", *addr)
		return
	}

	conn, ok := g.Get(*username)
	if !ok {
		slog.Error("bot logged in but vanished from the group", "username", *username)
		return
	}

	fmt.Printf("%s reached state %s (usernameHash=%d)\n", *username, conn.State(), conn.UsernameHash())
}
