package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/NordCoder/Crabiner/internal/client/agent"
	"github.com/NordCoder/Crabiner/internal/obs"
	"go.uber.org/zap"
)

const usage = `usage: authctl [flags] <command> [args]

commands:
  login <subject>   start a session through the internal bridge endpoint
  status            restore the stored session and print the signed-in identity
  get <path>        send an authenticated GET, refreshing once on 401
  logout            revoke the stored session
  events            tail auth events from kafka
`

func main() {
	server := flag.String("server", envOr("CRABINER_URL", "http://localhost:8080"), "auth-api base URL")
	store := flag.String("store", defaultStorePath(), "local credential store (sqlite)")
	internalKey := flag.String("internal-key", os.Getenv("CRABINER_INTERNAL_KEY"), "key for /internal/sessions; prompted if empty")
	brokers := flag.String("brokers", envOr("KAFKA_BROKERS", "localhost:9092"), "comma separated kafka brokers")
	topic := flag.String("topic", "crabiner.auth.events", "auth events topic")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	l, err := obs.NewLogger(obs.LogConfig{Level: level, Pretty: true, App: "crabiner/authctl"})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if args[0] == "events" {
		if err := tailEvents(ctx, splitList(*brokers), *topic, os.Stdout, l); err != nil && ctx.Err() == nil {
			l.Fatal("events", zap.Error(err))
		}
		return
	}

	if err := ensureDir(*store); err != nil {
		l.Fatal("credential store dir", zap.Error(err))
	}
	secrets, err := agent.OpenSQLiteSecretStore(ctx, *store)
	if err != nil {
		l.Fatal("open credential store", zap.Error(err))
	}
	defer func() { _ = secrets.Close() }()

	a := agent.New(agent.Options{BaseURL: *server, Secrets: secrets, Logger: l})
	a.Subscribe(func(ev agent.Event) {
		if ev.Kind == agent.EventSignedOut && ev.Err != nil {
			fmt.Fprintln(os.Stderr, "signed out:", ev.Err)
		}
	})

	c := &cli{agent: a, server: *server, out: os.Stdout}
	switch args[0] {
	case "login":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		key, kerr := resolveInternalKey(*internalKey)
		if kerr != nil {
			l.Fatal("internal key", zap.Error(kerr))
		}
		err = c.login(ctx, args[1], key)
	case "status":
		err = c.status(ctx)
	case "get":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		err = c.get(ctx, args[1])
	case "logout":
		err = a.Logout(ctx)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "authctl.db"
	}
	return filepath.Join(dir, "crabiner", "authctl.db")
}
